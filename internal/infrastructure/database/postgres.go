package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

func NewPostgresDB(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectWithRetry keeps calling connect until it succeeds, the attempts run
// out or ctx is cancelled.
func ConnectWithRetry(
	ctx context.Context,
	connect func(context.Context) (*sql.DB, error),
	maxRetries int,
	retryDelay time.Duration,
	logger *zap.Logger,
) (*sql.DB, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := connect(ctx)
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database")
			return db, nil
		}
		lastErr = err
		logger.Warn("Failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_in", retryDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, lastErr)
}
