package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App        AppConfig               `toml:"app"`
	Storage    StorageConfig           `toml:"storage"`
	Schedule   ScheduleConfig          `toml:"schedule"`
	Fetch      FetchConfig             `toml:"fetch"`
	Classifier ClassifierConfig        `toml:"classifier"`
	Limiter    LimiterConfig           `toml:"limiter"`
	Taxonomy   TaxonomyConfig          `toml:"taxonomy"`
	Sources    map[string]SourceConfig `toml:"sources"`
	Summary    SummaryConfig           `toml:"summary"`
	Metrics    MetricsConfig           `toml:"metrics"`
}

type AppConfig struct {
	Name      string `toml:"name"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

type StorageConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

type ScheduleConfig struct {
	FetchInterval      string `toml:"fetch_interval"`
	ClassifyInterval   string `toml:"classify_interval"`
	ReclassifyInterval string `toml:"reclassify_interval"`
	SummaryInterval    string `toml:"summary_interval"`
	RunOnce            bool   `toml:"run_once"`
}

type FetchConfig struct {
	Overlap         string `toml:"overlap"`
	BootstrapWindow string `toml:"bootstrap_window"`
	Limit           int    `toml:"limit"`
	Timeout         string `toml:"timeout"`
	ClassifyAfter   bool   `toml:"classify_after"`
}

type ClassifierConfig struct {
	Backend             string  `toml:"backend"`
	Model               string  `toml:"model"`
	BaseURL             string  `toml:"base_url"`
	APIKeyEnv           string  `toml:"api_key_env"`
	BatchSize           int     `toml:"batch_size"`
	ProcessingLimit     int     `toml:"processing_limit"`
	ConcurrencyLimit    int     `toml:"concurrency_limit"`
	MaxRetries          int     `toml:"max_retries"`
	RetryDelay          string  `toml:"retry_delay"`
	DelayBetweenBatches string  `toml:"delay_between_batches"`
	Timeout             string  `toml:"timeout"`
	Temperature         float64 `toml:"temperature"`
	ClaimLease          string  `toml:"claim_lease"`
	PromptTemplate      string  `toml:"prompt_template"`
}

type LimiterConfig struct {
	Type      string `toml:"type"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	Key       string `toml:"key"`
	Lease     string `toml:"lease"`
}

type TaxonomyConfig struct {
	Allowed         []string `toml:"allowed"`
	Included        []string `toml:"included"`
	Excluded        []string `toml:"excluded"`
	GenericPatterns []string `toml:"generic_patterns"`
}

type SourceConfig struct {
	Type     string                 `toml:"type"`
	Enabled  bool                   `toml:"enabled"`
	Settings map[string]interface{} `toml:"settings"`
}

type SummaryConfig struct {
	Enabled        bool   `toml:"enabled"`
	Window         string `toml:"window"`
	Limit          int    `toml:"limit"`
	DiscordToken   string `toml:"discord_token_env"`
	DiscordChannel string `toml:"discord_channel"`
}

type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Port     string `toml:"port"`
	FeedSize int    `toml:"feed_size"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.App.Name == "" {
		config.App.Name = "newswire"
	}
	if config.App.LogLevel == "" {
		config.App.LogLevel = "info"
	}
	if config.App.LogFormat == "" {
		config.App.LogFormat = "text"
	}

	if config.Storage.Type == "" {
		config.Storage.Type = "sqlite"
	}
	if config.Storage.Path == "" {
		config.Storage.Path = "./newswire.db"
	}

	durations := []struct {
		name  string
		value *string
		def   string
	}{
		{"schedule.fetch_interval", &config.Schedule.FetchInterval, "15m"},
		{"schedule.classify_interval", &config.Schedule.ClassifyInterval, "5m"},
		{"schedule.reclassify_interval", &config.Schedule.ReclassifyInterval, "1h"},
		{"schedule.summary_interval", &config.Schedule.SummaryInterval, "24h"},
		{"fetch.overlap", &config.Fetch.Overlap, "0s"},
		{"fetch.bootstrap_window", &config.Fetch.BootstrapWindow, "24h"},
		{"fetch.timeout", &config.Fetch.Timeout, "30s"},
		{"classifier.retry_delay", &config.Classifier.RetryDelay, "5s"},
		{"classifier.delay_between_batches", &config.Classifier.DelayBetweenBatches, "2s"},
		{"classifier.timeout", &config.Classifier.Timeout, "60s"},
		{"classifier.claim_lease", &config.Classifier.ClaimLease, "10m"},
		{"limiter.lease", &config.Limiter.Lease, "2m"},
		{"summary.window", &config.Summary.Window, "24h"},
	}
	for _, d := range durations {
		if *d.value == "" {
			*d.value = d.def
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed < 0 {
			return fmt.Errorf("invalid %s: must not be negative", d.name)
		}
	}

	if config.Fetch.Limit == 0 {
		config.Fetch.Limit = 300
	}

	if err := validateClassifier(&config.Classifier); err != nil {
		return err
	}

	if config.Limiter.Type == "" {
		config.Limiter.Type = "local"
	}
	switch config.Limiter.Type {
	case "local":
	case "redis":
		if config.Limiter.RedisAddr == "" {
			config.Limiter.RedisAddr = "localhost:6379"
		}
		if config.Limiter.Key == "" {
			config.Limiter.Key = config.App.Name + ":classifier:inflight"
		}
	default:
		return fmt.Errorf("unsupported limiter type: %s", config.Limiter.Type)
	}

	if len(config.Taxonomy.Allowed) == 0 {
		config.Taxonomy = DefaultTaxonomyConfig()
	}
	if len(config.Taxonomy.GenericPatterns) == 0 {
		config.Taxonomy.GenericPatterns = []string{"nobody"}
	}
	if _, err := NewTaxonomy(config.Taxonomy); err != nil {
		return err
	}

	if config.Summary.Limit == 0 {
		config.Summary.Limit = 200
	}

	if config.Metrics.Port == "" {
		config.Metrics.Port = "9090"
	}
	if config.Metrics.FeedSize == 0 {
		config.Metrics.FeedSize = 100
	}

	enabledSources := 0
	for name, src := range config.Sources {
		if !src.Enabled {
			continue
		}
		enabledSources++
		switch src.Type {
		case "finnhub", "finnhub_company", "polygon", "rss":
		default:
			return fmt.Errorf("source %s: unsupported type %q", name, src.Type)
		}
	}
	if enabledSources == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	return nil
}

func validateClassifier(c *ClassifierConfig) error {
	if c.Backend == "" {
		c.Backend = "openai"
	}
	if c.Backend != "openai" && c.Backend != "ollama" {
		return fmt.Errorf("unsupported classifier backend: %s", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("classifier.model is required")
	}
	if c.APIKeyEnv == "" && c.Backend == "openai" {
		c.APIKeyEnv = "LLM_API_KEY"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.ProcessingLimit == 0 {
		c.ProcessingLimit = 20
	}
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.BatchSize < 0 || c.ProcessingLimit < 0 || c.ConcurrencyLimit < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("classifier limits must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("classifier.temperature must be within [0, 2]")
	}
	return nil
}

// Duration parses a value that validateConfig has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func GetString(settings map[string]interface{}, key string, defaultValue string) string {
	if val, ok := settings[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

func GetInt(settings map[string]interface{}, key string, defaultValue int) int {
	if val, ok := settings[key]; ok {
		if i, ok := val.(int64); ok {
			return int(i)
		}
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}

func GetBool(settings map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := settings[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}

func GetStringSlice(settings map[string]interface{}, key string) []string {
	if val, ok := settings[key]; ok {
		if arr, ok := val.([]interface{}); ok {
			result := make([]string, 0, len(arr))
			for _, item := range arr {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			return result
		}
		if arr, ok := val.([]string); ok {
			return arr
		}
	}
	return []string{}
}

func GetDuration(settings map[string]interface{}, key string, defaultValue time.Duration) time.Duration {
	if val, ok := settings[key]; ok {
		if str, ok := val.(string); ok {
			if d, err := time.ParseDuration(str); err == nil {
				return d
			}
		}
	}
	return defaultValue
}

// GetSecret reads the environment variable named by settings[key].
func GetSecret(settings map[string]interface{}, key string, defaultEnv string) string {
	env := GetString(settings, key, defaultEnv)
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}
