package config

import (
	"strings"

	"github.com/Skyrin/go-migrate/migration"
	"github.com/Skyrin/go-migrate/sql"
)

// Environments, each selects the env file read before the process environment
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config settings of a migration run, built once by Load
type Config struct {
	Env           string
	DatabaseURL   string
	Driver        string
	Schema        string
	Dir           string
	Table         string
	IDPolicy      string
	IDSeparator   string
	Lock          bool
	Transactional bool
	PingRetries   int

	// Connection parts, used when DatabaseURL is empty
	DBHost  string
	DBPort  string
	DBUser  string
	DBPass  string
	DBName  string
	SSLMode string
}

// EnvFile returns the env file name of the environment
func EnvFile(env string) string {
	switch env {
	case EnvTest:
		return ".env.test"
	case EnvProduction:
		return ".env.production"
	}
	return ".env"
}

// ConnParam returns the connection params of the config. The schema becomes the
// search path, so migrated objects are created in it.
func (c *Config) ConnParam() *sql.ConnParam {
	cp := &sql.ConnParam{
		Driver:   c.Driver,
		URL:      c.DatabaseURL,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPass,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,

		PingRetries: c.PingRetries,
	}

	if !strings.EqualFold(c.Driver, sql.DriverSQLite) {
		cp.SearchPath = c.Schema
	}

	return cp
}

// MigratorConfig returns the migrator settings of the config
func (c *Config) MigratorConfig() migration.Config {
	mc := migration.DefaultConfig(c.Dir)
	mc.Schema = c.Schema
	mc.Table = c.Table
	mc.IDPolicy = migration.IDPolicy{
		Kind:      migration.IDKind(c.IDPolicy),
		Separator: c.IDSeparator,
	}
	mc.Lock = c.Lock
	mc.Transactional = c.Transactional

	return mc
}
