package database

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/noomo-ai/noomo-backend/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Client wraps the shared GORM connection
type Client struct {
	Gorm *gorm.DB
}

// NewClient connects to Postgres and runs schema migration
func NewClient(databaseURL string) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, err
	}

	log.Println("✅ Database connected")

	return &Client{Gorm: conn}, nil
}

// Migrate applies the schema for all persisted entities
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Profile{}, &models.StudySet{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping verifies the datasource is reachable
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections
func (c *Client) Close() error {
	sqlDB, err := c.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
