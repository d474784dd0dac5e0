package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// ReadJsonConfig decodes a json object file into T using the mapstructure tags of T.
func ReadJsonConfig[T any](filePath string) (*T, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", filePath, err)
	}
	var cfg T
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config from %s: %w", filePath, err)
	}
	return &cfg, nil
}

// ReadJsonArrayConfig decodes a json array file into []T, one viper instance per element.
func ReadJsonArrayConfig[T any](filePath string) ([]T, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", filePath, err)
	}
	var items []map[string]any
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", filePath, err)
	}
	configs := make([]T, 0, len(items))
	for i, item := range items {
		v := viper.New()
		if err := v.MergeConfigMap(item); err != nil {
			return nil, fmt.Errorf("error merging item %d of %s: %w", i, filePath, err)
		}
		var cfg T
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling item %d of %s: %w", i, filePath, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
