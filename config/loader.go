package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skyrin/go-migrate/e"
	"github.com/Skyrin/go-migrate/migration"
	"github.com/Skyrin/go-migrate/sql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ECode030101 = e.Code0301 + "01"
	ECode030102 = e.Code0301 + "02"
	ECode030103 = e.Code0301 + "03"
	ECode030104 = e.Code0301 + "04"
	ECode030105 = e.Code0301 + "05"
	ECode030106 = e.Code0301 + "06"
	ECode030107 = e.Code0301 + "07"
	ECode030108 = e.Code0301 + "08"
	ECode030109 = e.Code0301 + "09"
	ECode03010A = e.Code0301 + "0A"
	ECode03010B = e.Code0301 + "0B"
	ECode03010C = e.Code0301 + "0C"

	EnvPrefix = "MIGRATION"
)

// keys read from the environment with the MIGRATION_ prefix
var prefixedKeys = []string{
	"database_url",
	"driver",
	"schema",
	"dir",
	"table",
	"id_policy",
	"id_separator",
	"lock",
	"transactional",
	"ping_retries",
}

// connection part keys, read without prefix
var partKeys = []string{
	"dbhost",
	"dbport",
	"dbuser",
	"dbpass",
	"dbname",
	"sslmode",
}

// LoadOptions controls where the configuration is read from
type LoadOptions struct {
	Env        string         // development (default), test or production
	ConfigFile string         // Optional YAML file
	EnvDir     string         // Directory holding the env files, defaults to the working directory
	Flags      *pflag.FlagSet // Optional, a changed "dir" flag overrides the environment
}

// Load reads the configuration. Lowest to highest precedence: defaults, the
// config file, the env file of the environment, the process environment.
func Load(opt LoadOptions) (cfg *Config, err error) {
	if opt.Env == "" {
		opt.Env = EnvDevelopment
	}
	switch opt.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return nil, e.NK(e.KindConfig, ECode030101,
			fmt.Sprintf("%s: %s", e.MsgConfigEnvInvalid, opt.Env))
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range partKeys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, e.WK(err, e.KindConfig, ECode030102, e.MsgConfigReadFailed, k)
		}
	}

	if opt.Flags != nil {
		if f := opt.Flags.Lookup("dir"); f != nil {
			if err := v.BindPFlag("dir", f); err != nil {
				return nil, e.WK(err, e.KindConfig, ECode030103, e.MsgConfigReadFailed)
			}
		}
	}

	if opt.ConfigFile != "" {
		v.SetConfigFile(opt.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, e.WK(err, e.KindConfig, ECode030104, e.MsgConfigReadFailed, opt.ConfigFile)
		}
		log.Debug().Msgf("using config file: %s", v.ConfigFileUsed())
	}

	if err := loadEnvFile(v, filepath.Join(opt.EnvDir, EnvFile(opt.Env))); err != nil {
		return nil, e.W(err, ECode030105)
	}

	cfg = &Config{
		Env:           opt.Env,
		DatabaseURL:   v.GetString("database_url"),
		Driver:        strings.ToLower(v.GetString("driver")),
		Schema:        v.GetString("schema"),
		Dir:           v.GetString("dir"),
		Table:         v.GetString("table"),
		IDPolicy:      strings.ToLower(v.GetString("id_policy")),
		IDSeparator:   v.GetString("id_separator"),
		Lock:          v.GetBool("lock"),
		Transactional: v.GetBool("transactional"),
		PingRetries:   v.GetInt("ping_retries"),
		DBHost:        v.GetString("dbhost"),
		DBPort:        v.GetString("dbport"),
		DBUser:        v.GetString("dbuser"),
		DBPass:        v.GetString("dbpass"),
		DBName:        v.GetString("dbname"),
		SSLMode:       v.GetString("sslmode"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, e.W(err, ECode030106)
	}

	return cfg, nil
}

// Validate checks the config can be used for a run
func (c *Config) Validate() (err error) {
	if _, err := sql.DialectForDriver(c.Driver); err != nil {
		return e.W(err, ECode030107, c.Driver)
	}

	if _, err := migration.ParseIDKind(c.IDPolicy); err != nil {
		return e.W(err, ECode030109, c.IDPolicy)
	}

	if c.DatabaseURL == "" && (c.DBHost == "" || strings.EqualFold(c.Driver, sql.DriverSQLite)) {
		return e.NK(e.KindConfig, ECode030108, e.MsgConfigDatabaseURLMissing)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so viper knows about it
	for _, k := range append(append([]string{}, prefixedKeys...), partKeys...) {
		v.SetDefault(k, "")
	}

	v.SetDefault("driver", sql.DriverPostgres)
	v.SetDefault("schema", "public")
	v.SetDefault("dir", migration.DefaultDir)
	v.SetDefault("table", "migrations")
	v.SetDefault("id_policy", string(migration.IDFullFilename))
	v.SetDefault("id_separator", migration.DefaultIDSeparator)
	v.SetDefault("lock", true)
	v.SetDefault("transactional", true)
	v.SetDefault("ping_retries", 3)
}

// loadEnvFile merges the env file into the config layer, so the process
// environment still wins. A missing file is not an error.
func loadEnvFile(v *viper.Viper, file string) (err error) {
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return e.WK(err, e.KindConfig, ECode03010A, e.MsgConfigReadFailed, file)
	}

	ev := viper.New()
	ev.SetConfigFile(file)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return e.WK(err, e.KindConfig, ECode03010B, e.MsgConfigReadFailed, file)
	}

	prefix := strings.ToLower(EnvPrefix) + "_"
	m := make(map[string]interface{})
	for _, k := range ev.AllKeys() {
		switch {
		case strings.HasPrefix(k, prefix) && contains(prefixedKeys, strings.TrimPrefix(k, prefix)):
			m[strings.TrimPrefix(k, prefix)] = ev.Get(k)
		case contains(partKeys, k):
			m[k] = ev.Get(k)
		}
	}

	if err := v.MergeConfigMap(m); err != nil {
		return e.WK(err, e.KindConfig, ECode03010C, e.MsgConfigReadFailed, file)
	}
	log.Debug().Msgf("using env file: %s", file)

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
