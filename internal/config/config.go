package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Worker      WorkerConfig      `mapstructure:"worker" validate:"required"`
	Callback    CallbackConfig    `mapstructure:"callback"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" validate:"required"`
	Browser     BrowserConfig     `mapstructure:"browser" validate:"required"`
	Lighthouse  LighthouseConfig  `mapstructure:"lighthouse"`
}

// ServerConfig contains the ingestion HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// APIKey authenticates incoming enqueue requests. Empty disables the check,
	// which is only acceptable when the service is not network-reachable.
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig selects and configures the task store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (embedded, the default) or "postgres".
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	// DSN is the driver-specific connection string: a file path (or :memory:)
	// for sqlite, a connection URL for postgres.
	DSN string `mapstructure:"dsn" validate:"required"`
}

// WorkerConfig contains the task processor settings.
type WorkerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"required,gt=0"`
	// WorkerID identifies this process in task rows and result callbacks.
	// Defaults to "worker-<hostname>" when empty.
	WorkerID string `mapstructure:"worker_id"`
}

// CallbackConfig configures result delivery to the consuming service.
// An empty BaseURL disables submission entirely.
type CallbackConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"omitempty,url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=1"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
}

// MaintenanceConfig configures the background sweeps.
type MaintenanceConfig struct {
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"required,gt=0"`
	StuckThresholdMin  int           `mapstructure:"stuck_threshold_minutes" validate:"required,gt=0"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval" validate:"required,gt=0"`
	RetentionDays      int           `mapstructure:"retention_days" validate:"required,gt=0"`
}

// BrowserConfig configures the browser-automation collaborator.
type BrowserConfig struct {
	// ServiceURL is the base URL of the local browser-automation service.
	ServiceURL string `mapstructure:"service_url" validate:"required,url"`
	// NavigationTimeout is the default page navigation timeout forwarded to
	// the service when a task payload does not specify one.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"required,gt=0"`
}

// LighthouseConfig configures the optional page-quality analysis tool.
type LighthouseConfig struct {
	// Binary is the lighthouse executable name or path. The runner probes it
	// once at startup; an absent binary degrades lighthouse tasks gracefully.
	Binary string `mapstructure:"binary"`
}
