package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Environment variables are the
// source of truth; an optional YAML file named by CONFIG_FILE overlays the
// tunable subset on top and can be reloaded at runtime (see Watcher).
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	IndexName     string // GSI1 - user-level history queries
	EventBusName  string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool

	// Tunables is the runtime-adjustable subset.
	Tunables Tunables

	// ConfigFile is the overlay path, empty when none is configured.
	ConfigFile string
}

// Tunables are the settings worth changing without a redeploy. They load
// from env like everything else and may be overridden by the overlay file.
type Tunables struct {
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	QueryCacheTTL      time.Duration `yaml:"query_cache_ttl"`
	StalenessCacheTTL  time.Duration `yaml:"staleness_cache_ttl"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// UnmarshalYAML accepts Go duration strings ("90s", "2m") for the TTL and
// timeout fields, which yaml.v3 does not decode into time.Duration itself.
func (t *Tunables) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RateLimitPerMinute *int    `yaml:"rate_limit_per_minute"`
		RateLimitBurst     *int    `yaml:"rate_limit_burst"`
		QueryCacheTTL      *string `yaml:"query_cache_ttl"`
		StalenessCacheTTL  *string `yaml:"staleness_cache_ttl"`
		RequestTimeout     *string `yaml:"request_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.RateLimitPerMinute != nil {
		t.RateLimitPerMinute = *raw.RateLimitPerMinute
	}
	if raw.RateLimitBurst != nil {
		t.RateLimitBurst = *raw.RateLimitBurst
	}
	for _, field := range []struct {
		src *string
		dst *time.Duration
	}{
		{raw.QueryCacheTTL, &t.QueryCacheTTL},
		{raw.StalenessCacheTTL, &t.StalenessCacheTTL},
		{raw.RequestTimeout, &t.RequestTimeout},
	} {
		if field.src == nil {
			continue
		}
		d, err := time.ParseDuration(*field.src)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", *field.src, err)
		}
		*field.dst = d
	}
	return nil
}

// LoadConfig loads configuration from environment variables and, when
// CONFIG_FILE is set, overlays the tunables from that file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "stash")),
		IndexName:     getEnv("INDEX_NAME", "UserHistoryIndex"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "stash-events"),

		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "stash-backend"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		Tunables: Tunables{
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
			QueryCacheTTL:      getEnvDuration("QUERY_CACHE_TTL", 30*time.Second),
			StalenessCacheTTL:  getEnvDuration("STALENESS_CACHE_TTL", 5*time.Second),
			RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 29*time.Second),
		},

		ConfigFile: getEnv("CONFIG_FILE", ""),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyOverlay(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

// applyOverlay reads the YAML overlay and replaces any tunable the file
// names. Fields absent from the file keep their current value.
func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config overlay %s: %w", path, err)
	}

	merged := c.Tunables
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("failed to parse config overlay %s: %w", path, err)
	}
	c.Tunables = merged
	return nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}
	if c.Tunables.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive")
	}
	if c.Tunables.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
