// Package config loads server settings from the environment and an
// optional config file.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port   string `mapstructure:"port"`
	DBPath string `mapstructure:"db_path"`

	// Empty disables token verification; clients then self-assert
	// identity on join (development mode).
	AuthSecret string `mapstructure:"auth_secret"`

	HistoryLimit int `mapstructure:"history_limit"`

	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	KeepAutoVersions int           `mapstructure:"keep_auto_versions"`

	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`
}

// Load reads QUILLBOARD_* environment variables over defaults, plus a
// YAML file when QUILLBOARD_CONFIG points at one.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUILLBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "./data/quillboard.db")
	v.SetDefault("auth_secret", "")
	v.SetDefault("history_limit", 200)
	v.SetDefault("snapshot_interval", 2*time.Minute)
	v.SetDefault("keep_auto_versions", 10)
	v.SetDefault("messages_per_second", 100.0)
	v.SetDefault("message_burst", 200)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
