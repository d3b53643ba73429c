package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds the API server's own settings. Store and Sources are shared
// with the collector and register their own flags.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	ClaudeAPIKey          string
	ClaudeModel           string
	SlackWebhookURL       string
	CollectInterval       time.Duration

	Store   StoreConfig
	Sources SourcesConfig
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "comma separated bearer tokens accepted by the API")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for Claude message classification (empty = keyword rules only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-5", "Claude model used to classify messages")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for deadline notices (empty = log only)")
	fs.DurationVar(&c.CollectInterval, "collect-interval", 0, "run every configured check on this interval (0 = never, use the collector)")
	c.Store.RegisterFlags(fs)
	c.Sources.RegisterFlags(fs)
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// the API accepts evidence writes, never run it open
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	// model only matters once a key is set
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if c.CollectInterval < 0 {
		errs = append(errs, fmt.Errorf("invalid COLLECT_INTERVAL %s (must not be negative)", c.CollectInterval))
	}
	if c.CollectInterval > 0 && c.CollectInterval < time.Minute {
		errs = append(errs, fmt.Errorf("COLLECT_INTERVAL %s is below the 1m minimum", c.CollectInterval))
	}
	if c.CollectInterval > 0 && c.Sources.ChecksFile == "" {
		errs = append(errs, errors.New("COLLECT_INTERVAL requires CHECKS_FILE"))
	}

	errs = append(errs, c.Store.Validate(), c.Sources.Validate())
	return errors.Join(errs...)
}

// StoreConfig selects and locates the evidence rollup store.
type StoreConfig struct {
	Backend          string
	EvidenceDir      string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	MergeMaxAttempts int
}

// RegisterFlags binds StoreConfig fields to the given FlagSet with defaults inline
func (c *StoreConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Backend, "store", BackendMemory, "evidence store backend (memory|file|postgres|redis)")
	fs.StringVar(&c.EvidenceDir, "evidence-dir", "evidence", "directory holding one rollup document per category (file store)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (postgres store)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis host:port (redis store)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "Redis password (redis store)")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database number (redis store, 0..15)")
	fs.IntVar(&c.MergeMaxAttempts, "merge-max-attempts", 5, "attempts per evidence merge before a version conflict is reported (1..100)")
}

// Validate checks the selected backend has what it needs.
func (c *StoreConfig) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendMemory:
	case BackendFile:
		if c.EvidenceDir == "" {
			errs = append(errs, errors.New("EVIDENCE_DIR is required for the file store"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis store"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			errs = append(errs, fmt.Errorf("invalid REDIS_DB %d (must be 0..15)", c.RedisDB))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be memory, file, postgres or redis)", c.Backend))
	}

	if c.MergeMaxAttempts < 1 || c.MergeMaxAttempts > 100 {
		errs = append(errs, fmt.Errorf("invalid MERGE_MAX_ATTEMPTS %d (must be 1..100)", c.MergeMaxAttempts))
	}

	return errors.Join(errs...)
}

// SourcesConfig locates the check definitions and the backends they query.
type SourcesConfig struct {
	ChecksFile         string
	PrometheusEndpoint string
	PrometheusTenantID string
	LokiEndpoint       string
	LokiTenantID       string
	Concurrency        int
}

// RegisterFlags binds SourcesConfig fields to the given FlagSet with defaults inline
func (c *SourcesConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ChecksFile, "checks-file", "", "YAML file of evidence checks")
	fs.StringVar(&c.PrometheusEndpoint, "prometheus-endpoint", "", "Prometheus endpoint queried by prometheus checks")
	fs.StringVar(&c.PrometheusTenantID, "prometheus-tenant-id", "", "Prometheus tenant ID for multi-tenant setups")
	fs.StringVar(&c.LokiEndpoint, "loki-endpoint", "", "Loki endpoint queried by loki checks")
	fs.StringVar(&c.LokiTenantID, "loki-tenant-id", "", "Loki tenant ID for multi-tenant setups")
	fs.IntVar(&c.Concurrency, "concurrency", 4, "checks run in parallel (1..64)")
}

// Validate checks all configuration fields for correctness.
func (c *SourcesConfig) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("invalid CONCURRENCY %d (must be 1..64)", c.Concurrency)
	}
	return nil
}
