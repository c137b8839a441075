package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries everything main needs to wire the coordinator. Values are
// layered: defaults, then an optional config file, then WATCHPARTY_*
// environment variables (a .env file is honored when present), then
// command line flags on top.
type Config struct {
	APIListenAddr string `mapstructure:"api_listen_addr"`
	WSListenAddr  string `mapstructure:"ws_listen_addr"`
	LogLevel      string `mapstructure:"log_level"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ChatTail      int    `mapstructure:"chat_tail"`
	PersistQueue  int    `mapstructure:"persist_queue"`
}

func Load(path string) (*Config, error) {
	// best effort, local development convenience
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("api_listen_addr", ":8080")
	v.SetDefault("ws_listen_addr", ":8888")
	v.SetDefault("log_level", "debug")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("chat_tail", 300)
	v.SetDefault("persist_queue", 512)

	v.SetEnvPrefix("WATCHPARTY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
