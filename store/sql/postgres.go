package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// PostgresOptions configures the production database client.
type PostgresOptions struct {
	DSN             string
	Debug           bool
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	OtelIdentifier  string
}

type postgresPersistenceConfig struct {
	opts PostgresOptions
}

func (c postgresPersistenceConfig) GetDebug() bool { return c.opts.Debug }
func (c postgresPersistenceConfig) GetDriver() string { return "postgres" }
func (c postgresPersistenceConfig) GetServer() string { return c.opts.DSN }

func (c postgresPersistenceConfig) GetPingTimeout() time.Duration {
	if c.opts.PingTimeout > 0 {
		return c.opts.PingTimeout
	}
	return 5 * time.Second
}

func (c postgresPersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.opts.OtelIdentifier) != "" {
		return c.opts.OtelIdentifier
	}
	return "ghlmp"
}

// NewPostgresPersistence opens the production Postgres database and wraps it
// in a persistence client ready for BuildStores. The caller still registers
// and runs migrations.
func NewPostgresPersistence(opts PostgresOptions) (*persistence.Client, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}

	sqlDB, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	client, err := persistence.New(postgresPersistenceConfig{opts: opts}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}
