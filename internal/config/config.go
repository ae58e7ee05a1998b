package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// StreamingConfig targets the external streaming-production application.
type StreamingConfig struct {
	Address         string        `mapstructure:"address"`
	Port            int           `mapstructure:"port"`
	Password        string        `mapstructure:"password"`
	TextSource      string        `mapstructure:"text_source"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	OverlayInterval time.Duration `mapstructure:"overlay_interval"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ReconcileConfig struct {
	PollSpec string `mapstructure:"poll_spec"`
}

func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("streaming.address", "localhost")
	viper.SetDefault("streaming.port", 4444)
	viper.SetDefault("streaming.password", "")
	viper.SetDefault("streaming.text_source", "AuctionOverlay")
	viper.SetDefault("streaming.call_timeout", 10*time.Second)
	viper.SetDefault("streaming.reconnect_delay", 5*time.Second)
	viper.SetDefault("streaming.overlay_interval", time.Second)
	viper.SetDefault("backend.base_url", "http://localhost:8080")
	viper.SetDefault("backend.timeout", 10*time.Second)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("mysql.dsn", "console_user:console_pass@tcp(localhost:3306)/broadcast_db?parseTime=true")
	viper.SetDefault("mysql.max_open_conns", 25)
	viper.SetDefault("mysql.max_idle_conns", 10)
	viper.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("reconcile.poll_spec", "@every 5s")

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/broadcast-console/")

	// Environment variable support
	viper.AutomaticEnv()

	// Environment variable mappings
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("streaming.address", "STREAMING_ADDRESS")
	viper.BindEnv("streaming.port", "STREAMING_PORT")
	viper.BindEnv("streaming.password", "STREAMING_PASSWORD")
	viper.BindEnv("streaming.text_source", "STREAMING_TEXT_SOURCE")
	viper.BindEnv("backend.base_url", "BACKEND_BASE_URL")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	viper.BindEnv("reconcile.poll_spec", "RECONCILE_POLL_SPEC")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Streaming: %s:%d, Backend: %s, Redis: %s",
		c.Server.Host,
		c.Server.Port,
		c.Streaming.Address,
		c.Streaming.Port,
		c.Backend.BaseURL,
		c.Redis.Address,
	)
}
