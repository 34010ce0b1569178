package main

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/kelseyhightower/envconfig"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Config holds the runtime configuration of accessctl.
type Config struct {
	DSN          string        `envconfig:"DB_DSN" default:"file:access.db?cache=shared&_fk=1"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string        `envconfig:"LOG_FORMAT" default:"text"`
	Manifest     string        `envconfig:"MANIFEST"`
	SyncSchedule string        `envconfig:"SYNC_SCHEDULE" default:"15 3 * * *"`
	SyncTimeout  time.Duration `envconfig:"SYNC_TIMEOUT" default:"5m"`
	MetricsAddr  string        `envconfig:"METRICS_ADDR" default:":9464"`
	EventQueue   int           `envconfig:"EVENT_QUEUE" default:"0"`
	AuditLog     bool          `envconfig:"AUDIT_LOG" default:"true"`
}

// LoadConfig reads ACCESS_* environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("access", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) isPostgres() bool {
	return strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://")
}

// OpenDB opens the database named by the DSN. postgres:// DSNs use pgx,
// anything else is treated as a SQLite DSN.
func (c *Config) OpenDB() (*bun.DB, error) {
	if c.isPostgres() {
		sqldb, err := sql.Open("pgx", c.DSN)
		if err != nil {
			return nil, err
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, c.DSN)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
