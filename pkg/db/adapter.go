package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrRecordNotFound    = gorm.ErrRecordNotFound
	ErrNotConnected      = errors.New("database client is not connected")
	ErrInvalidTransition = errors.New("invalid relay status transition")
)

// DatabaseAdapter owns the postgres client and the optional audit archive.
// After Reset the postgres client is re-opened on the next call.
type DatabaseAdapter struct {
	dsn            string
	mutex          sync.Mutex
	postgresClient *gorm.DB
	Archive        *Archive
}

func NewDatabaseAdapter(ctx context.Context, cfg *config.DatabaseConfig) (*DatabaseAdapter, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("database url is not set")
	}
	postgresClient, err := NewPostgresClient(cfg.URL)
	if err != nil {
		return nil, err
	}
	adapter := &DatabaseAdapter{
		dsn:            cfg.URL,
		postgresClient: postgresClient,
	}
	if cfg.MongoURI != "" {
		archive, err := NewArchive(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		adapter.Archive = archive
	}
	return adapter, nil
}

// NewDatabaseAdapterWithClient wraps an already opened and migrated client.
func NewDatabaseAdapterWithClient(client *gorm.DB) *DatabaseAdapter {
	return &DatabaseAdapter{postgresClient: client}
}

func NewPostgresClient(dsn string) (*gorm.DB, error) {
	client, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err = RunMigrations(client); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return client, nil
}

func RunMigrations(client *gorm.DB) error {
	return client.AutoMigrate(
		&models.RelayData{},
		&models.CallContract{},
		&models.CallContractWithToken{},
	)
}

func (da *DatabaseAdapter) client() (*gorm.DB, error) {
	da.mutex.Lock()
	defer da.mutex.Unlock()
	if da.postgresClient != nil {
		return da.postgresClient, nil
	}
	if da.dsn == "" {
		return nil, ErrNotConnected
	}
	log.Info().Msg("[DatabaseAdapter] reconnecting to postgres")
	client, err := NewPostgresClient(da.dsn)
	if err != nil {
		return nil, err
	}
	da.postgresClient = client
	return client, nil
}

// Reset drops the current connection pool, the next operation reconnects.
func (da *DatabaseAdapter) Reset() error {
	da.mutex.Lock()
	defer da.mutex.Unlock()
	if da.postgresClient == nil || da.dsn == "" {
		return nil
	}
	client := da.postgresClient
	da.postgresClient = nil
	sqlDB, err := client.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (da *DatabaseAdapter) Ping(ctx context.Context) error {
	client, err := da.client()
	if err != nil {
		return err
	}
	sqlDB, err := client.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (da *DatabaseAdapter) Close(ctx context.Context) {
	da.mutex.Lock()
	if da.postgresClient != nil {
		if sqlDB, err := da.postgresClient.DB(); err == nil {
			sqlDB.Close()
		}
		da.postgresClient = nil
	}
	da.mutex.Unlock()
	if da.Archive != nil {
		da.Archive.Close(ctx)
	}
}

// IsConnectionError reports whether err comes from a lost or refused database connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, ErrNotConnected) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "failed to connect")
}
