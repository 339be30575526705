package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config.yaml file in the working directory. Environment variables take
// precedence over values from the config file, which takes precedence over
// defaults. Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file; absence is fine, a malformed file is not.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// LOCALBROWSER_SERVER_PORT overrides server.port, and so on.
	v.SetEnvPrefix("LOCALBROWSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every setting so a bare environment
// still yields a runnable configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.api_key", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tasks.db")

	v.SetDefault("worker.poll_interval", "5s")
	v.SetDefault("worker.max_concurrent", 2)
	v.SetDefault("worker.worker_id", "")

	v.SetDefault("callback.base_url", "")
	v.SetDefault("callback.secret", "")
	v.SetDefault("callback.timeout", "10s")
	v.SetDefault("callback.max_retries", 3)
	v.SetDefault("callback.retry_delay", "1s")

	v.SetDefault("maintenance.stuck_check_interval", "5m")
	v.SetDefault("maintenance.stuck_threshold_minutes", 30)
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.retention_days", 7)

	v.SetDefault("browser.service_url", "http://localhost:3000")
	v.SetDefault("browser.navigation_timeout", "30s")

	v.SetDefault("lighthouse.binary", "lighthouse")
}
