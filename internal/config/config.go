// Package config provides Viper-based configuration loading for the case
// opening service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-request read timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-request write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// PityRuleConfig is one tier's guarantee range.
type PityRuleConfig struct {
	// Tier is the guaranteed rarity tier: "rare", "epic", or "legendary".
	Tier string `mapstructure:"tier"`
	// MinThreshold and MaxThreshold bound the redrawn guarantee threshold.
	MinThreshold int `mapstructure:"min_threshold"`
	MaxThreshold int `mapstructure:"max_threshold"`
}

// SpinConfig shapes the decorative spin sequences.
type SpinConfig struct {
	// Length is the number of slots in a spin sequence.
	Length int `mapstructure:"length"`
	// WinSlotMin and WinSlotMax bound the winning slot (inclusive).
	WinSlotMin int `mapstructure:"win_slot_min"`
	WinSlotMax int `mapstructure:"win_slot_max"`
}

// GameConfig holds the case-opening game knobs.
type GameConfig struct {
	// CasesDir is the directory of case-definition YAML files.
	CasesDir string `mapstructure:"cases_dir"`
	// MaxOpenings bounds the opening count of a single session.
	MaxOpenings int `mapstructure:"max_openings"`
	// SellBackRate is the fraction of item value credited on sell.
	SellBackRate float64 `mapstructure:"sell_back_rate"`
	// DecisionTimeout is how long an outcome may await a decision before
	// the sweep settles it as Keep.
	DecisionTimeout time.Duration `mapstructure:"decision_timeout"`
	// SweepInterval is how often the auto-keep sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// PityScope is "case" (per-case counters) or "global".
	PityScope string `mapstructure:"pity_scope"`
	// Pity lists the guarantee rules, one per tier above common.
	Pity []PityRuleConfig `mapstructure:"pity"`
	// Spin shapes the decorative spin sequences.
	Spin SpinConfig `mapstructure:"spin"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout must not be negative")
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.CasesDir == "" {
		errs = append(errs, "game.cases_dir must not be empty")
	}
	if g.MaxOpenings < 1 {
		errs = append(errs, fmt.Sprintf("game.max_openings must be >= 1, got %d", g.MaxOpenings))
	}
	if g.SellBackRate <= 0 || g.SellBackRate > 1 {
		errs = append(errs, fmt.Sprintf("game.sell_back_rate must be in (0, 1], got %g", g.SellBackRate))
	}
	if g.DecisionTimeout <= 0 {
		errs = append(errs, "game.decision_timeout must be > 0")
	}
	if g.SweepInterval <= 0 {
		errs = append(errs, "game.sweep_interval must be > 0")
	}
	if g.PityScope != "case" && g.PityScope != "global" {
		errs = append(errs, fmt.Sprintf("game.pity_scope must be one of [case, global], got %q", g.PityScope))
	}
	if len(g.Pity) == 0 {
		errs = append(errs, "game.pity must list at least one guarantee rule")
	}
	for i, rule := range g.Pity {
		if rule.Tier == "" {
			errs = append(errs, fmt.Sprintf("game.pity[%d].tier must not be empty", i))
		}
		if rule.MinThreshold < 1 {
			errs = append(errs, fmt.Sprintf("game.pity[%d].min_threshold must be >= 1, got %d", i, rule.MinThreshold))
		}
		if rule.MinThreshold > rule.MaxThreshold {
			errs = append(errs, fmt.Sprintf("game.pity[%d].min_threshold (%d) must not exceed max_threshold (%d)", i, rule.MinThreshold, rule.MaxThreshold))
		}
	}
	if g.Spin.Length < 1 {
		errs = append(errs, fmt.Sprintf("game.spin.length must be >= 1, got %d", g.Spin.Length))
	}
	if g.Spin.WinSlotMin < 0 || g.Spin.WinSlotMax < g.Spin.WinSlotMin || g.Spin.WinSlotMax >= g.Spin.Length {
		errs = append(errs, fmt.Sprintf("game.spin winning slot range [%d, %d] must sit inside [0, %d]",
			g.Spin.WinSlotMin, g.Spin.WinSlotMax, g.Spin.Length-1))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DROPFORGE_ prefix
	v.SetEnvPrefix("DROPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dropforge")
	v.SetDefault("database.password", "dropforge")
	v.SetDefault("database.name", "dropforge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.cases_dir", "content/cases")
	v.SetDefault("game.max_openings", 5)
	v.SetDefault("game.sell_back_rate", 0.8)
	v.SetDefault("game.decision_timeout", "10m")
	v.SetDefault("game.sweep_interval", "30s")
	v.SetDefault("game.pity_scope", "case")
	v.SetDefault("game.pity", []map[string]any{
		{"tier": "rare", "min_threshold": 5, "max_threshold": 15},
		{"tier": "epic", "min_threshold": 20, "max_threshold": 60},
		{"tier": "legendary", "min_threshold": 100, "max_threshold": 200},
	})
	v.SetDefault("game.spin.length", 50)
	v.SetDefault("game.spin.win_slot_min", 20)
	v.SetDefault("game.spin.win_slot_max", 29)
}
