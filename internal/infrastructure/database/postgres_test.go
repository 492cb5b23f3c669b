package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDSN(t *testing.T) {
	t.Parallel()

	cfg := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "events"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=events sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestConnectWithRetry(t *testing.T) {
	t.Parallel()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	calls := 0
	connect := func(context.Context) (*sql.DB, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return db, nil
	}

	got, err := ConnectWithRetry(context.Background(), connect, 5, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.Equal(t, 3, calls)
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	connect := func(context.Context) (*sql.DB, error) { return nil, refused }

	_, err := ConnectWithRetry(context.Background(), connect, 2, time.Millisecond, zap.NewNop())
	require.ErrorIs(t, err, refused)
}

func TestConnectWithRetry_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	connect := func(context.Context) (*sql.DB, error) {
		cancel()
		return nil, errors.New("connection refused")
	}

	_, err := ConnectWithRetry(ctx, connect, 10, time.Hour, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)
}
