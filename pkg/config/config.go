package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// App holds application configuration.
type App struct {
	Name    string `mapstructure:"name" default:"market-insight-pipeline"`
	Env     string `mapstructure:"env" default:"development"`
	Version string `mapstructure:"version"`
}

// Logger holds logger configuration.
type Logger struct {
	Level    string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Encoding string `mapstructure:"encoding" default:"json" validate:"oneof=json console"`
}

// Database holds database configuration.
type Database struct {
	Host            string `mapstructure:"host" default:"localhost"`
	Port            int    `mapstructure:"port" default:"5432"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode" default:"disable"`
	TimeZone        string `mapstructure:"time_zone" default:"UTC"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" default:"5"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" default:"20"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime" default:"30m"`
	LogLevel        string `mapstructure:"log_level" default:"warn"`
}

// Redis holds Redis configuration.
type Redis struct {
	Host         string `mapstructure:"host" default:"localhost"`
	Port         int    `mapstructure:"port" default:"6379"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size" default:"10"`
	StreamMaxLen int64  `mapstructure:"stream_max_len" default:"10000"`
}

// ClickHouse holds the optional analytical store configuration.
type ClickHouse struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port" default:"9000"`
	User        string `mapstructure:"user" default:"default"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database" default:"default"`
	DialTimeout string `mapstructure:"dial_timeout" default:"5s"`
	ReadTimeout string `mapstructure:"read_timeout" default:"10s"`
}

// API holds API server configuration.
type API struct {
	Host string `mapstructure:"host" default:"0.0.0.0"`
	Port int    `mapstructure:"port" default:"8080" validate:"gt=0"`
}

var validate = validator.New()

// Load loads configuration from a file into the given config struct,
// fills unset fields from `default` tags and validates `validate` tags.
// A fresh viper instance is used per call so the file can be re-read on reload.
func Load(path string, config interface{}) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Println("Failed to read config file, falling back to environment variables")
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("apply config defaults: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}
