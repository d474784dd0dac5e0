package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	APP_NAME = "cosmos-gmp-relayer"

	DEFAULT_FEE_AMOUNT        = 1000
	DEFAULT_GAS_LIMIT         = 500000
	DEFAULT_MAX_RETRIES       = 10
	DEFAULT_RETRY_DELAY       = 3000
	DEFAULT_TX_POLL_INTERVAL  = 2000
	DEFAULT_TX_POLL_MAX       = 30
	DEFAULT_BATCH_POLL_DELAY  = 3000
	DEFAULT_BATCH_POLL_MAX    = 100
	DEFAULT_CONFIRM_POLL      = 10000
	DEFAULT_CONFIRM_POLL_MAX  = 10
	DEFAULT_WS_MAX_RETRIES    = 10
	DEFAULT_WS_TIMEOUT        = 30000
	DEFAULT_EVM_GAS_LIMIT     = 3000000
	DEFAULT_EVM_MAX_RETRIES   = 3
	DEFAULT_EVM_RETRY_DELAY   = 5000
	DEFAULT_RECEIPT_POLL      = 1000
	DEFAULT_RECEIPT_POLL_MAX  = 300
	DEFAULT_EVENT_BUFFER_SIZE = 64
	DEFAULT_API_PORT          = 3000
)

type AxelarConfig struct {
	ChainID             string  `mapstructure:"chain_id" validate:"required"`
	RPCUrl              string  `mapstructure:"rpc_url" validate:"required,url"`
	WsUrl               string  `mapstructure:"ws_url"`
	GrpcUrl             string  `mapstructure:"grpc_url"`
	LCDUrl              string  `mapstructure:"lcd_url"`
	Denom               string  `mapstructure:"denom" validate:"required"`
	GasPrice            float64 `mapstructure:"gas_price"`
	GasLimit            uint64  `mapstructure:"gas_limit"`
	FeeAmount           int64   `mapstructure:"fee_amount"`
	Bip44Path           string  `mapstructure:"bip44_path"`
	BroadcastMode       string  `mapstructure:"broadcast_mode" validate:"omitempty,oneof=sync async block"`
	Mnemonic            string  `mapstructure:"mnemonic" validate:"required"`
	MaxRetries          int     `mapstructure:"max_retries"`
	RetryDelay          int64   `mapstructure:"retry_delay_ms"`
	TxPollInterval      int64   `mapstructure:"tx_poll_interval_ms"`
	TxPollMax           int     `mapstructure:"tx_poll_max"`
	BatchPollInterval   int64   `mapstructure:"batch_poll_interval_ms"`
	BatchPollMax        int     `mapstructure:"batch_poll_max"`
	ConfirmPollInterval int64   `mapstructure:"confirm_poll_interval_ms"`
	ConfirmPollMax      int     `mapstructure:"confirm_poll_max"`
	WsMaxRetries        int     `mapstructure:"ws_max_retries"`
	WsTimeout           int64   `mapstructure:"ws_timeout_ms"`
}

func (c *AxelarConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

func (c *AxelarConfig) GetTxPollInterval() time.Duration {
	return time.Duration(c.TxPollInterval) * time.Millisecond
}

func (c *AxelarConfig) GetBatchPollInterval() time.Duration {
	return time.Duration(c.BatchPollInterval) * time.Millisecond
}

func (c *AxelarConfig) GetConfirmPollInterval() time.Duration {
	return time.Duration(c.ConfirmPollInterval) * time.Millisecond
}

func (c *AxelarConfig) GetWsTimeout() time.Duration {
	return time.Duration(c.WsTimeout) * time.Millisecond
}

func (c *AxelarConfig) setDefaults() {
	if c.FeeAmount == 0 {
		c.FeeAmount = DEFAULT_FEE_AMOUNT
	}
	if c.GasLimit == 0 {
		c.GasLimit = DEFAULT_GAS_LIMIT
	}
	if c.BroadcastMode == "" {
		c.BroadcastMode = "sync"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DEFAULT_MAX_RETRIES
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DEFAULT_RETRY_DELAY
	}
	if c.TxPollInterval == 0 {
		c.TxPollInterval = DEFAULT_TX_POLL_INTERVAL
	}
	if c.TxPollMax == 0 {
		c.TxPollMax = DEFAULT_TX_POLL_MAX
	}
	if c.BatchPollInterval == 0 {
		c.BatchPollInterval = DEFAULT_BATCH_POLL_DELAY
	}
	if c.BatchPollMax == 0 {
		c.BatchPollMax = DEFAULT_BATCH_POLL_MAX
	}
	if c.ConfirmPollInterval == 0 {
		c.ConfirmPollInterval = DEFAULT_CONFIRM_POLL
	}
	if c.ConfirmPollMax == 0 {
		c.ConfirmPollMax = DEFAULT_CONFIRM_POLL_MAX
	}
	if c.WsMaxRetries == 0 {
		c.WsMaxRetries = DEFAULT_WS_MAX_RETRIES
	}
	if c.WsTimeout == 0 {
		c.WsTimeout = DEFAULT_WS_TIMEOUT
	}
	if c.WsUrl == "" {
		c.WsUrl = c.RPCUrl
	}
}

type EvmNetworkConfig struct {
	ID         string `mapstructure:"id" validate:"required"`
	ChainID    uint64 `mapstructure:"chain_id" validate:"required"`
	Name       string `mapstructure:"name"`
	RPCUrl     string `mapstructure:"rpc_url" validate:"required"`
	Gateway    string `mapstructure:"gateway" validate:"required"`
	Finality   int    `mapstructure:"finality"`
	PrivateKey string `mapstructure:"private_key" validate:"required"`
	GasLimit   uint64 `mapstructure:"gas_limit"`
	MaxRetries int    `mapstructure:"max_retries"`
	RetryDelay int64  `mapstructure:"retry_delay_ms"`

	// receipt wait after a submission, receipt_poll_max attempts receipt_poll_interval_ms apart
	ReceiptPollInterval int64 `mapstructure:"receipt_poll_interval_ms"`
	ReceiptPollMax      int   `mapstructure:"receipt_poll_max"`
}

func (c *EvmNetworkConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

func (c *EvmNetworkConfig) GetReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollInterval) * time.Millisecond
}

func (c *EvmNetworkConfig) setDefaults() {
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Finality <= 0 {
		c.Finality = 1
	}
	if c.GasLimit == 0 {
		c.GasLimit = DEFAULT_EVM_GAS_LIMIT
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DEFAULT_EVM_MAX_RETRIES
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DEFAULT_EVM_RETRY_DELAY
	}
	if c.ReceiptPollInterval == 0 {
		c.ReceiptPollInterval = DEFAULT_RECEIPT_POLL
	}
	if c.ReceiptPollMax == 0 {
		c.ReceiptPollMax = DEFAULT_RECEIPT_POLL_MAX
	}
}

type CosmosNetworkConfig struct {
	ID      string `mapstructure:"id" validate:"required"`
	ChainID string `mapstructure:"chain_id" validate:"required"`
	RPCUrl  string `mapstructure:"rpc_url"`
	WsUrl   string `mapstructure:"ws_url"`
	Denom   string `mapstructure:"denom"`
}

type DatabaseConfig struct {
	URL           string `mapstructure:"url" validate:"required"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type ApiConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Port            int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	HermesMetricUrl string `mapstructure:"hermes_metric_url"`
}

type Config struct {
	Environment    string                `mapstructure:"env"`
	ConfigPath     string                `mapstructure:"config_path"`
	IsDev          bool                  `mapstructure:"is_dev"`
	IsTestnetLive  bool                  `mapstructure:"is_testnet_live"`
	ChainEnv       string                `mapstructure:"chain_env"`
	EventBuffer    int                   `mapstructure:"event_buffer"`
	OtelEndpoint   string                `mapstructure:"otel_endpoint"`
	DevRecipient   string                `mapstructure:"dev_recipient"`
	Axelar         AxelarConfig          `validate:"required"`
	EvmNetworks    []EvmNetworkConfig    `validate:"dive"`
	CosmosNetworks []CosmosNetworkConfig `validate:"dive"`
	Database       DatabaseConfig
	Api            ApiConfig
}

// LoadEnv reads a .env file, when present, into the process environment and binds it to viper.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("file", file).Msg("[Config] [LoadEnv] env file not found, skipping")
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	viper.AutomaticEnv()
	return nil
}

// Load reads the json network configs under configPath and the secrets from the environment.
func Load(environment string, configPath string) (*Config, error) {
	if configPath == "" {
		configPath = fmt.Sprintf("data/%s", environment)
	}
	cfg := &Config{
		Environment:   environment,
		ConfigPath:    configPath,
		IsDev:         viper.GetBool("IS_DEV"),
		IsTestnetLive: viper.GetBool("IS_TESTNET_LIVE"),
		ChainEnv:      viper.GetString("CHAIN_ENV"),
		EventBuffer:   viper.GetInt("EVENT_BUFFER"),
		OtelEndpoint:  viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DevRecipient:  viper.GetString("DEV_RECIPIENT"),
	}
	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = DEFAULT_EVENT_BUFFER_SIZE
	}
	axelarConfig, err := ReadJsonConfig[AxelarConfig](fmt.Sprintf("%s/axelar.json", configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read axelar config: %w", err)
	}
	if mnemonic := viper.GetString("AXELAR_MNEMONIC"); mnemonic != "" {
		axelarConfig.Mnemonic = mnemonic
	}
	axelarConfig.setDefaults()
	cfg.Axelar = *axelarConfig

	evmConfigs, err := ReadJsonArrayConfig[EvmNetworkConfig](fmt.Sprintf("%s/evm.json", configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read evm configs: %w", err)
	}
	for i := range evmConfigs {
		injectEvmPrivateKey(&evmConfigs[i])
		evmConfigs[i].setDefaults()
	}
	cfg.EvmNetworks = evmConfigs

	cosmosPath := fmt.Sprintf("%s/cosmos.json", configPath)
	if _, err := os.Stat(cosmosPath); err == nil {
		cosmosConfigs, err := ReadJsonArrayConfig[CosmosNetworkConfig](cosmosPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read cosmos configs: %w", err)
		}
		cfg.CosmosNetworks = cosmosConfigs
	}

	cfg.Database = DatabaseConfig{
		URL:           viper.GetString("DATABASE_URL"),
		MongoURI:      viper.GetString("MONGODB_URI"),
		MongoDatabase: viper.GetString("MONGODB_DATABASE"),
	}
	cfg.Api = ApiConfig{
		Enabled:         !viper.IsSet("API_ENABLED") || viper.GetBool("API_ENABLED"),
		Port:            viper.GetInt("API_PORT"),
		HermesMetricUrl: viper.GetString("HERMES_METRIC_URL"),
	}
	if cfg.Api.Port == 0 {
		cfg.Api.Port = DEFAULT_API_PORT
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	log.Info().Str("env", environment).Str("configPath", configPath).
		Int("evmNetworks", len(cfg.EvmNetworks)).
		Int("cosmosNetworks", len(cfg.CosmosNetworks)).
		Msg("[Config] [Load] configuration loaded")
	return cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// EVM_PRIVATE_KEY_<ID> overrides the private key of the evm network with id <ID>.
func injectEvmPrivateKey(cfg *EvmNetworkConfig) {
	key := fmt.Sprintf("EVM_PRIVATE_KEY_%s", strings.ToUpper(strings.ReplaceAll(cfg.ID, "-", "_")))
	if value := viper.GetString(key); value != "" {
		cfg.PrivateKey = value
	}
	cfg.PrivateKey = strings.TrimPrefix(cfg.PrivateKey, "0x")
}

func (c *Config) FindEvmNetwork(id string) (*EvmNetworkConfig, bool) {
	for i := range c.EvmNetworks {
		if strings.EqualFold(c.EvmNetworks[i].ID, id) {
			return &c.EvmNetworks[i], true
		}
	}
	return nil, false
}

// ObservedDestinationChains lists the chain ids this relayer instance delivers to.
func (c *Config) ObservedDestinationChains() []string {
	chains := make([]string, 0, len(c.CosmosNetworks)+1)
	for _, network := range c.CosmosNetworks {
		chains = append(chains, network.ID)
	}
	return chains
}
