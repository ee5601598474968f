package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/catalog/pkg/catalog"
	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/configschema"
	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/observability/metrics"
	"github.com/nimburion/catalog/pkg/observability/tracing"
	"github.com/nimburion/catalog/pkg/schema"
	"github.com/nimburion/catalog/pkg/store"
	"github.com/nimburion/catalog/pkg/version"
)

const (
	policiesAnnotationPrefix = "policies."
	defaultPolicyContext     = "run"
	schemaPolicyContext      = "schema"
)

// CommandPolicy defines the supported command policy values.
type CommandPolicy string

const (
	PolicyAlways    CommandPolicy = "always"
	PolicyProvision CommandPolicy = "provision"
	PolicyRun       CommandPolicy = "run"
	PolicyOnce      CommandPolicy = "once"
	PolicyOnDemand  CommandPolicy = "on_demand"
)

// AdapterFactory opens the storage adapter named by the database configuration.
type AdapterFactory func(cfg config.DatabaseConfig, log logger.Logger) (store.Adapter, error)

// CatalogCommandOptions configures the catalog command tree.
type CatalogCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	// Optional: called with the resolved path to the configuration file after flags are parsed.
	ConfigPathResolved func(string)
	EnvPrefix          string

	// Optional: overrides store.NewStorageAdapter (tests share one in-memory store).
	NewAdapter AdapterFactory

	// Optional: custom config validation, run after the built-in validation
	ValidateConfig func(cfg *config.Config) error

	// Optional: additional custom commands
	CustomCommands []*cobra.Command
}

// NewCatalogCommand creates the catalog CLI with products, schema, healthcheck, config
// and version subcommands.
func NewCatalogCommand(opts CatalogCommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "catalog"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}
	if opts.NewAdapter == nil {
		opts.NewAdapter = store.NewStorageAdapter
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	SetCommandPolicies(rootCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	env := &environment{opts: opts}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&env.cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.StringVar(&env.secretFilePath, "secret-file", "", "path to secrets file (sets "+resolveEnvPrefix(opts.EnvPrefix)+"_SECRETS_FILE)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
	flags.String("db-type", "", "storage type (postgres, mysql, mongodb, dynamodb, memory)")
	flags.String("db-url", "", "storage connection URL")
	flags.String("collection", "", "products table or collection")
	flags.StringVar(&env.metricsOut, "metrics-out", "", "write catalog metrics to this file instead of stderr (requires observability.metrics_enabled)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			if info.IsDevelopment() {
				fmt.Fprintln(out, "Channel:    development build")
			}
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			if built, ok := info.ParseBuildTime(); ok {
				fmt.Fprintf(out, "Build Time: %s\n", built.Format(time.RFC3339))
			} else {
				fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			}
			return nil
		},
	}
	SetCommandPolicies(versionCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(newProductsCommand(env))
	rootCmd.AddCommand(newSchemaCommand(env))

	healthCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the product store and the projection cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				result := rt.service.Health(ctx)
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.IsServing() {
					return fmt.Errorf("%s store is %s", rt.cfg.Database.Type, result.Status)
				}
				if !result.IsHealthy() {
					rt.log.Warn("catalog is degraded", "status", string(result.Status))
				}
				return nil
			})
		},
	}
	SetCommandPolicies(healthCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	rootCmd.AddCommand(healthCmd)

	rootCmd.AddCommand(newConfigCommand(env))

	for _, customCmd := range opts.CustomCommands {
		ensureDefaultPolicy(customCmd)
		rootCmd.AddCommand(customCmd)
	}

	return rootCmd
}

// environment holds the persistent flag values shared by every subcommand.
type environment struct {
	opts           CatalogCommandOptions
	cfgPath        string
	secretFilePath string
	metricsOut     string
}

// runtime is everything a catalog subcommand needs, opened from the loaded configuration.
type runtime struct {
	cfg      *config.Config
	log      logger.Logger
	adapter  store.Adapter
	service  *catalog.Service
	registry *metrics.Registry
	tracer   *tracing.TracerProvider
}

func (e *environment) loadConfig(flags *pflag.FlagSet) (*config.Config, map[string]any, error) {
	if err := applySecretFileFlag(e.opts.EnvPrefix, e.secretFilePath); err != nil {
		return nil, nil, err
	}
	if e.opts.ConfigPathResolved != nil {
		e.opts.ConfigPathResolved(e.cfgPath)
	}
	cfg, secrets, err := config.NewViperLoader(e.cfgPath, e.opts.EnvPrefix).
		WithFlags(flags).
		LoadWithSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if e.opts.ValidateConfig != nil {
		if err := e.opts.ValidateConfig(cfg); err != nil {
			return nil, nil, fmt.Errorf("custom validation failed: %w", err)
		}
	}
	return cfg, secrets, nil
}

// open loads the configuration and builds the logger, observability and catalog service.
func (e *environment) open(cmd *cobra.Command) (*runtime, error) {
	cfg, _, err := e.loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logConfigIfDebug(log, cfg)
	log.Debug("catalog command starting", version.Current(cfg.Service.Name).LogFields()...)

	rt := &runtime{cfg: cfg, log: log}

	rt.tracer, err = tracing.NewTracerProvider(cmd.Context(), tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	var repoMetrics *metrics.RepositoryMetrics
	if cfg.Observability.MetricsEnabled {
		rt.registry = metrics.NewRegistry()
		repoMetrics = rt.registry.Repository()
	}

	rt.adapter, err = e.opts.NewAdapter(cfg.Database, log)
	if err != nil {
		_ = rt.tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Type, err)
	}

	cache, err := store.NewCache(cfg.Cache, log)
	if err != nil {
		_ = rt.adapter.Close()
		_ = rt.tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Type, err)
	}

	newRepo, err := catalog.NewRepositoryFactory(cmd.Context(), rt.adapter, cfg.Database, log, repoMetrics)
	if err == nil {
		rt.service, err = catalog.NewService(rt.adapter, newRepo, cfg.Catalog, log,
			catalog.WithProjectionCache(cache, cfg.Cache.TTL, cfg.Cache.KeyPrefix))
	}
	if err != nil {
		_ = rt.adapter.Close()
		if cache != nil {
			_ = cache.Close()
		}
		_ = rt.tracer.Shutdown(context.Background())
		return nil, err
	}

	return rt, nil
}

// run opens a runtime, calls fn and releases the runtime, reporting the first error.
func (e *environment) run(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := e.open(cmd)
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), rt)
	return errors.Join(runErr, e.release(cmd, rt))
}

func (e *environment) release(cmd *cobra.Command, rt *runtime) error {
	var errs []error
	if rt.registry != nil {
		errs = append(errs, e.writeMetrics(cmd.ErrOrStderr(), rt.registry))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs = append(errs, rt.tracer.Shutdown(shutdownCtx))

	if err := rt.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if zl, ok := rt.log.(*logger.ZapLogger); ok {
		_ = zl.Sync()
	}
	return errors.Join(errs...)
}

func (e *environment) writeMetrics(stderr io.Writer, registry *metrics.Registry) error {
	if e.metricsOut == "" {
		return registry.WriteText(stderr)
	}
	f, err := os.Create(filepath.Clean(e.metricsOut))
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := registry.WriteText(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newSchemaCommand(env *environment) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Provision the products table (postgres and mysql)",
	}
	SetCommandPolicies(schemaCmd, map[string]CommandPolicy{schemaPolicyContext: PolicyProvision})

	var timeout time.Duration
	schemaCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "schema operation timeout")

	subcommand := func(use, short string, policy CommandPolicy, fn func(ctx context.Context, cmd *cobra.Command, rt *runtime, p *schema.Provisioner) error) *cobra.Command {
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return env.run(cmd, func(ctx context.Context, rt *runtime) error {
					provisioner, err := catalog.NewSchemaProvisioner(rt.adapter, rt.cfg.Database.Collection, rt.log)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(ctx, timeout)
					defer cancel()
					return fn(ctx, cmd, rt, provisioner)
				})
			},
		}
		SetCommandPolicies(cmd, map[string]CommandPolicy{schemaPolicyContext: policy})
		return cmd
	}

	schemaCmd.AddCommand(
		subcommand("apply", "Create the products table and its indexes when missing", PolicyOnce,
			func(ctx context.Context, cmd *cobra.Command, rt *runtime, p *schema.Provisioner) error {
				executed, err := p.Apply(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements to %s\n", executed, rt.cfg.Database.Collection)
				return err
			}),
		subcommand("check", "Report product columns missing from the products table", PolicyRun,
			func(ctx context.Context, cmd *cobra.Command, rt *runtime, p *schema.Provisioner) error {
				report, err := catalog.CheckProductsTable(ctx, p, rt.cfg.Database.Collection)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.OK() {
					return fmt.Errorf("table %s is missing columns %v", report.Table, report.Missing)
				}
				return nil
			}),
		subcommand("show", "Print the DDL that apply would run", PolicyAlways,
			func(_ context.Context, cmd *cobra.Command, _ *runtime, p *schema.Provisioner) error {
				for _, script := range p.Scripts() {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "-- %s (%s)\n%s\n", script.Name, p.Dialect(), strings.TrimSpace(script.SQL)); err != nil {
						return err
					}
				}
				return nil
			}),
	)
	return schemaCmd
}

func newConfigCommand(env *environment) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	SetCommandPolicies(configCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := env.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
	SetCommandPolicies(validateCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(validateCmd)

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, secrets, err := env.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			settings := cfg.Redacted(secrets)
			if showSecrets {
				settings = cfg.Settings()
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	SetCommandPolicies(showCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(showCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			cfg.Service.Name = env.opts.Name
			schema, err := configschema.Build(cfg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), schema)
		},
	}
	SetCommandPolicies(schemaCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(schemaCmd)

	return configCmd
}

// SetCommandPolicies stores policies as a map[string]string on command annotations using the "policies." prefix.
func SetCommandPolicies(cmd *cobra.Command, policies map[string]CommandPolicy) {
	if cmd == nil {
		return
	}
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	for key := range cmd.Annotations {
		if strings.HasPrefix(key, policiesAnnotationPrefix) {
			delete(cmd.Annotations, key)
		}
	}
	for context, policy := range policies {
		cmd.Annotations[policiesAnnotationPrefix+context] = string(policy)
	}
}

// GetCommandPolicies returns the policies stored on a command, keyed by context.
func GetCommandPolicies(cmd *cobra.Command) map[string]string {
	out := map[string]string{}
	if cmd == nil {
		return out
	}
	for _, key := range policyAnnotationKeys(cmd.Annotations) {
		out[strings.TrimPrefix(key, policiesAnnotationPrefix)] = cmd.Annotations[key]
	}
	return out
}

func ensureDefaultPolicy(cmd *cobra.Command) {
	if len(GetCommandPolicies(cmd)) == 0 {
		SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	}
}

func policyAnnotationKeys(annotations map[string]string) []string {
	keys := make([]string, 0, len(annotations))
	for key := range annotations {
		if strings.HasPrefix(key, policiesAnnotationPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func formatSettings(settings map[string]any) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}

	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}

	log.Debug("effective configuration", "config", cfg.Redacted(nil))
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return config.DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}
