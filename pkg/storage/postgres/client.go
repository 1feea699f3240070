package postgres

import (
	"context"
	"fmt"
	"time"

	"marketstream/config"
	"marketstream/pkg/storage"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type PostgresClient struct {
	DB *gorm.DB
}

func NewClient(dsn string) (*PostgresClient, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresClient{DB: db}, nil
}

// NewClientFromConfig connects with cfg and applies its pool limits.
func NewClientFromConfig(cfg config.PostgresConfig, env string) (*PostgresClient, error) {
	client, err := NewClient(cfg.DSN(env))
	if err != nil {
		return nil, err
	}

	sqlDB, err := client.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return client, nil
}

const bootstrapTimeout = 30 * time.Second

// InitializeAndMigrate connects to Postgres, optionally creates the DB, and runs AutoMigrate.
func InitializeAndMigrate(cfg config.PostgresConfig, env string, createDB bool) (*PostgresClient, error) {
	if createDB {
		ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
		err := EnsureDatabase(ctx, cfg, env)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	client, err := NewClientFromConfig(cfg, env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.AutoMigrate(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

// EnsureDatabase creates cfg.DBName through the maintenance database unless
// it is already present.
func EnsureDatabase(ctx context.Context, cfg config.PostgresConfig, env string) error {
	admin, err := NewClient(cfg.AdminDSN(env))
	if err != nil {
		return fmt.Errorf("ensure database %s: %w", cfg.DBName, err)
	}
	defer admin.Close()

	db := admin.DB.WithContext(ctx)
	var found int64
	if err := db.Raw("SELECT count(*) FROM pg_database WHERE datname = ?", cfg.DBName).Scan(&found).Error; err != nil {
		return fmt.Errorf("ensure database %s: lookup: %w", cfg.DBName, err)
	}
	if found > 0 {
		return nil
	}
	if err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.DBName)).Error; err != nil {
		return fmt.Errorf("ensure database %s: create: %w", cfg.DBName, err)
	}
	return nil
}

// AutoMigrate creates or updates every event table.
func (p *PostgresClient) AutoMigrate() error {
	if err := p.DB.AutoMigrate(allRecords()...); err != nil {
		return fmt.Errorf("auto-migrate event tables: %w", err)
	}
	return nil
}

func (p *PostgresClient) IsHealthy(ctx context.Context) bool {
	db, err := p.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (p *PostgresClient) Close() error {
	db, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}

var _ storage.Store = (*PostgresClient)(nil)
