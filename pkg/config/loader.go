package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// flagKeys maps command-line flags to configuration keys. Flags only override when set.
var flagKeys = map[string]string{
	"log-level":  "observability.log_level",
	"log-format": "observability.log_format",
	"db-type":    "database.type",
	"db-url":     "database.url",
	"collection": "database.collection",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to CATALOG)
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds the known command-line flags present in flags. Changed flags take
// precedence over every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load(false)
	return cfg, err
}

// LoadWithSecrets is Load with a secrets file merged over the config file.
// Precedence: flags > ENV > secrets file > config file > defaults.
// It also returns the raw secrets settings so callers can redact them.
func (l *ViperLoader) LoadWithSecrets() (*Config, map[string]any, error) {
	return l.load(true)
}

func (l *ViperLoader) load(withSecrets bool) (*Config, map[string]any, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only fail when the file was explicitly specified.
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets map[string]any
	if withSecrets {
		secretsFile, err := l.discoverSecretsFile()
		if err != nil {
			return nil, nil, err
		}
		if secretsFile != "" {
			sv := viper.New()
			sv.SetConfigFile(secretsFile)
			if err := sv.ReadInConfig(); err != nil {
				return nil, nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
			}
			secrets = sv.AllSettings()
			if err := v.MergeConfigMap(secrets); err != nil {
				return nil, nil, fmt.Errorf("failed to merge secrets: %w", err)
			}
		}
	}

	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, secrets, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	v.BindEnv("database.max_open_conns", l.prefixedEnv("DB_MAX_OPEN_CONNS"))
	v.BindEnv("database.max_idle_conns", l.prefixedEnv("DB_MAX_IDLE_CONNS"))
	v.BindEnv("database.conn_max_lifetime", l.prefixedEnv("DB_CONN_MAX_LIFETIME"))
	v.BindEnv("database.conn_max_idle_time", l.prefixedEnv("DB_CONN_MAX_IDLE_TIME"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))
	v.BindEnv("database.database_name", l.prefixedEnv("DB_DATABASE_NAME"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	v.BindEnv("database.region", l.prefixedEnv("DB_REGION"))
	v.BindEnv("database.endpoint", l.prefixedEnv("DB_ENDPOINT"))
	v.BindEnv("database.access_key_id", l.prefixedEnv("DB_ACCESS_KEY_ID"))
	v.BindEnv("database.secret_access_key", l.prefixedEnv("DB_SECRET_ACCESS_KEY"))
	v.BindEnv("database.session_token", l.prefixedEnv("DB_SESSION_TOKEN"))
	v.BindEnv("database.collection", l.prefixedEnv("DB_COLLECTION"))
	v.BindEnv("database.fallback_partition_key", l.prefixedEnv("DB_FALLBACK_PARTITION_KEY"))

	// Catalog
	v.BindEnv("catalog.default_page_size", l.prefixedEnv("CATALOG_DEFAULT_PAGE_SIZE"))
	v.BindEnv("catalog.max_page_size", l.prefixedEnv("CATALOG_MAX_PAGE_SIZE"))

	// Cache
	v.BindEnv("cache.type", l.prefixedEnv("CACHE_TYPE"))
	v.BindEnv("cache.url", l.prefixedEnv("CACHE_URL"))
	v.BindEnv("cache.addresses", l.prefixedEnv("CACHE_ADDRESSES"))
	v.BindEnv("cache.max_conns", l.prefixedEnv("CACHE_MAX_CONNS"))
	v.BindEnv("cache.operation_timeout", l.prefixedEnv("CACHE_OPERATION_TIMEOUT"))
	v.BindEnv("cache.ttl", l.prefixedEnv("CACHE_TTL"))
	v.BindEnv("cache.key_prefix", l.prefixedEnv("CACHE_KEY_PREFIX"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("OBSERVABILITY_LOG_LEVEL"), l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("OBSERVABILITY_LOG_FORMAT"))
	v.BindEnv("observability.metrics_enabled", l.prefixedEnv("OBSERVABILITY_METRICS_ENABLED"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("OBSERVABILITY_TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("OBSERVABILITY_TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("OBSERVABILITY_TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", cfg.Database.ConnMaxIdleTime)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.region", cfg.Database.Region)
	v.SetDefault("database.endpoint", cfg.Database.Endpoint)
	v.SetDefault("database.access_key_id", cfg.Database.AccessKeyID)
	v.SetDefault("database.secret_access_key", cfg.Database.SecretAccessKey)
	v.SetDefault("database.session_token", cfg.Database.SessionToken)
	v.SetDefault("database.collection", cfg.Database.Collection)
	v.SetDefault("database.fallback_partition_key", cfg.Database.FallbackPartitionKey)

	v.SetDefault("catalog.default_page_size", cfg.Catalog.DefaultPageSize)
	v.SetDefault("catalog.max_page_size", cfg.Catalog.MaxPageSize)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.url", cfg.Cache.URL)
	v.SetDefault("cache.addresses", cfg.Cache.Addresses)
	v.SetDefault("cache.max_conns", cfg.Cache.MaxConns)
	v.SetDefault("cache.operation_timeout", cfg.Cache.OperationTimeout)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.key_prefix", cfg.Cache.KeyPrefix)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
}

var (
	validDatabaseTypes = []string{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeMongoDB, DatabaseTypeDynamoDB, DatabaseTypeMemory}
	validCacheTypes    = []string{CacheTypeNone, CacheTypeRedis, CacheTypeMemcached}
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"json", "text"}
)

// Validate validates the configuration and returns every problem found, joined.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	if !slices.Contains(validDatabaseTypes, cfg.Database.Type) {
		errs = append(errs, fmt.Errorf("invalid database.type: %q (must be one of: %v)", cfg.Database.Type, validDatabaseTypes))
	}

	switch cfg.Database.Type {
	case DatabaseTypePostgres, DatabaseTypeMySQL:
		if cfg.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for %s", cfg.Database.Type))
		}
		if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns && cfg.Database.MaxOpenConns > 0 {
			errs = append(errs, errors.New("database.max_idle_conns cannot exceed database.max_open_conns"))
		}
	case DatabaseTypeMongoDB:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for mongodb"))
		}
		if cfg.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for mongodb"))
		}
	case DatabaseTypeDynamoDB:
		if cfg.Database.Region == "" {
			errs = append(errs, errors.New("database.region is required for dynamodb"))
		}
		if (cfg.Database.AccessKeyID == "") != (cfg.Database.SecretAccessKey == "") {
			errs = append(errs, errors.New("database.access_key_id and database.secret_access_key must be set together"))
		}
	}

	if strings.TrimSpace(cfg.Database.Collection) == "" {
		errs = append(errs, errors.New("database.collection is required"))
	} else if isRelational(cfg.Database.Type) && !sqlIdentifier.MatchString(cfg.Database.Collection) {
		errs = append(errs, fmt.Errorf("database.collection %q is not a valid SQL table name", cfg.Database.Collection))
	}
	if cfg.Database.QueryTimeout < 0 {
		errs = append(errs, errors.New("database.query_timeout cannot be negative"))
	}
	if strings.TrimSpace(cfg.Database.FallbackPartitionKey) == "" {
		errs = append(errs, errors.New("database.fallback_partition_key cannot be empty"))
	}

	if cfg.Catalog.DefaultPageSize <= 0 {
		errs = append(errs, errors.New("catalog.default_page_size must be positive"))
	}
	if cfg.Catalog.MaxPageSize < cfg.Catalog.DefaultPageSize {
		errs = append(errs, errors.New("catalog.max_page_size must be at least catalog.default_page_size"))
	}

	cfg.Cache.Type = strings.ToLower(strings.TrimSpace(cfg.Cache.Type))
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = CacheTypeNone
	}
	switch cfg.Cache.Type {
	case CacheTypeNone:
	case CacheTypeRedis:
		if cfg.Cache.URL == "" {
			errs = append(errs, errors.New("cache.url is required for redis"))
		}
	case CacheTypeMemcached:
		if len(cfg.Cache.Addresses) == 0 {
			errs = append(errs, errors.New("cache.addresses is required for memcached"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cache.type: %q (must be one of: %v)", cfg.Cache.Type, validCacheTypes))
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl cannot be negative"))
	}

	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	if !slices.Contains(validLogLevels, cfg.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %q (must be one of: %v)", cfg.Observability.LogLevel, validLogLevels))
	}
	cfg.Observability.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Observability.LogFormat))
	if !slices.Contains(validLogFormats, cfg.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %q (must be one of: %v)", cfg.Observability.LogFormat, validLogFormats))
	}
	if cfg.Observability.TracingEnabled && strings.TrimSpace(cfg.Observability.TracingEndpoint) == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// sqlIdentifier is the table name form accepted for relational stores, where the name is
// written into queries unquoted.
var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isRelational(databaseType string) bool {
	return databaseType == DatabaseTypePostgres || databaseType == DatabaseTypeMySQL
}
