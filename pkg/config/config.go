// Package config loads the catalog configuration from defaults, a config file, an optional
// secrets file, environment variables and command-line flags.
package config

import "time"

// Database type constants
const (
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL = "mysql"
	// DatabaseTypeMongoDB represents MongoDB database
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypeDynamoDB represents AWS DynamoDB
	DatabaseTypeDynamoDB = "dynamodb"
	// DatabaseTypeMemory keeps documents in process memory
	DatabaseTypeMemory = "memory"
)

// DefaultEnvPrefix prefixes every environment variable read by the loader.
const DefaultEnvPrefix = "CATALOG"

// Config is the root configuration structure
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig configures the product store.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"` // postgres, mysql, mongodb, dynamodb, memory
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	DatabaseName    string        `mapstructure:"database_name"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token"`

	// Collection is the table (relational, dynamodb) or collection (mongodb) holding products.
	Collection string `mapstructure:"collection"`
	// FallbackPartitionKey is used for document writes of entities without a partition key.
	FallbackPartitionKey string `mapstructure:"fallback_partition_key"`
}

// CatalogConfig configures query defaults.
type CatalogConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// Cache type constants
const (
	// CacheTypeNone disables the projection cache
	CacheTypeNone = "none"
	// CacheTypeRedis caches in Redis
	CacheTypeRedis = "redis"
	// CacheTypeMemcached caches in one or more memcached servers
	CacheTypeMemcached = "memcached"
)

// CacheConfig configures the cache of the distinct brand and type lists.
type CacheConfig struct {
	Type             string        `mapstructure:"type"` // none, redis, memcached
	URL              string        `mapstructure:"url"`
	Addresses        []string      `mapstructure:"addresses"` // memcached servers, host:port
	MaxConns         int           `mapstructure:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	TTL              time.Duration `mapstructure:"ttl"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"` // json, text
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`

	TracingEndpoint   string  `mapstructure:"tracing_endpoint"` // OTLP gRPC collector, host:port
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "catalog",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Type:                 DatabaseTypeMemory,
			MaxOpenConns:         25,
			MaxIdleConns:         5,
			ConnMaxLifetime:      5 * time.Minute,
			ConnMaxIdleTime:      2 * time.Minute,
			QueryTimeout:         10 * time.Second,
			ConnectTimeout:       5 * time.Second,
			Collection:           "products",
			FallbackPartitionKey: "_global",
		},
		Catalog: CatalogConfig{
			DefaultPageSize: 6,
			MaxPageSize:     50,
		},
		Cache: CacheConfig{
			Type:             CacheTypeNone,
			MaxConns:         10,
			OperationTimeout: 500 * time.Millisecond,
			TTL:              5 * time.Minute,
			KeyPrefix:        "catalog:",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEndpoint:   "localhost:4317",
			TracingSampleRate: 1.0,
		},
	}
}
