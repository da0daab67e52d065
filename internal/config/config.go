package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/regwatch/internal/extract"
)

const (
	DefaultConfigDir        = ".regwatch"
	DefaultConfigFile       = "config.yaml"
	DefaultEnvFile          = ".env"
	DefaultTargetsFile      = "targets.csv"
	DefaultDocumentsDir     = "data/html"
	DefaultDiffsDir         = "data/diffs"
	DefaultKnowledgeDir     = "knowledge_base_data"
	DefaultLedgerPath       = ".regwatch/regwatch.db"
	DefaultRetainDays       = 730
	DefaultFetchTimeout     = 30 * time.Second
	DefaultUserAgent        = "regwatch/1.0 (+https://github.com/ppiankov/regwatch)"
	DefaultMaxBytes         = 20 << 20
	DefaultFeedWindow       = 31 * 24 * time.Hour
	DefaultVariant          = "regulation"
	DefaultTokenLimit       = 10000
	DefaultCostPerMillion   = 0.35
	DefaultFormat           = "terminal"
	DefaultProvider         = "gemini"
	DefaultModel            = "gemini-1.5-flash"
	DefaultSummarizeTimeout = 60 * time.Second
	DefaultLogLevel         = "info"
)

// Providers and formats accepted by Validate.
var (
	Providers = []any{"gemini", "openai", "heuristic"}
	Formats   = []any{"terminal", "markdown", "json"}
	LogLevels = []any{"debug", "info", "warn", "error"}
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Targets   string          `yaml:"targets"`
	Storage   StorageConfig   `yaml:"storage"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Extract   ExtractConfig   `yaml:"extract"`
	Report    ReportConfig    `yaml:"report"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Log       LogConfig       `yaml:"log"`

	// Dir is the directory config.yaml was loaded from.
	Dir string `yaml:"-"`
}

type StorageConfig struct {
	DocumentsDir string `yaml:"documents_dir"`
	DiffsDir     string `yaml:"diffs_dir"`
	KnowledgeDir string `yaml:"knowledge_dir"`
	LedgerPath   string `yaml:"ledger_path"`
	RetainDays   int    `yaml:"retain_days"`
}

type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
	MaxBytes  int64    `yaml:"max_bytes"`

	// Feeds are RSS/Atom feeds announcing amendments (e.g. the Gazette officielle).
	Feeds      []string `yaml:"feeds"`
	FeedWindow Duration `yaml:"feed_window"`
}

type ExtractConfig struct {
	Variant  string                   `yaml:"variant"`
	Variants map[string]VariantConfig `yaml:"variants"`
}

// VariantConfig configures one extraction variant.
type VariantConfig struct {
	Selector        string   `yaml:"selector"`
	HeadingKeywords []string `yaml:"heading_keywords"`
	MinLineLength   int      `yaml:"min_line_length"`
	Redactions      []string `yaml:"redactions"`
}

type ReportConfig struct {
	Keys            []string `yaml:"keys"`
	TokenLimit      int      `yaml:"token_limit"`
	KeepRemoved     *bool    `yaml:"keep_removed"`
	CostPerMillion  float64  `yaml:"cost_per_million"`
	Format          string   `yaml:"format"`
	BatchPrompt     string   `yaml:"batch_prompt"`
	AggregatePrompt string   `yaml:"aggregate_prompt"`
	NoChangeMessage string   `yaml:"no_change_message"`
}

// KeepRemovedLines reports whether removed diff lines are summarized. Defaults to true.
func (r ReportConfig) KeepRemovedLines() bool {
	return r.KeepRemoved == nil || *r.KeepRemoved
}

type SummarizeConfig struct {
	Provider    string   `yaml:"provider"`
	EndpointEnv string   `yaml:"endpoint_env"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`

	// Resolved from env vars at load time.
	Endpoint string `yaml:"-"`
	APIKey   string `yaml:"-"`
}

// Ready reports whether the provider has the credentials it needs.
func (s SummarizeConfig) Ready() error {
	if s.Provider == "heuristic" {
		return nil
	}
	if s.APIKey == "" {
		return fmt.Errorf("summarize: %s api key not set (env %s)", s.Provider, s.APIKeyEnv)
	}
	return nil
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads config.yaml from dir, loads .env files, applies defaults,
// resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	if err := LoadEnv(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Dir = dir

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadEnv loads dir/.env and ./.env when present. Variables already set in
// the environment win.
func LoadEnv(dir string) error {
	for _, path := range []string{filepath.Join(dir, DefaultEnvFile), DefaultEnvFile} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// TargetsPath returns the targets file, relative paths being resolved
// against the config dir.
func (c *Config) TargetsPath() string {
	if filepath.IsAbs(c.Targets) {
		return c.Targets
	}
	return filepath.Join(c.Dir, c.Targets)
}

// ExtractOptions returns the options of the selected extraction variant.
func (c *Config) ExtractOptions(name string) (extract.RegulationOptions, bool) {
	v, ok := c.Extract.Variants[name]
	if !ok {
		return extract.RegulationOptions{}, false
	}
	return v.Options(), true
}

// Options converts v into extractor options.
func (v VariantConfig) Options() extract.RegulationOptions {
	return extract.RegulationOptions{
		Selector:        v.Selector,
		HeadingKeywords: v.HeadingKeywords,
		MinLineLength:   v.MinLineLength,
		Redactions:      v.Redactions,
	}
}

// SlogLevel maps Log.Level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func applyDefaults(cfg *Config) {
	if cfg.Targets == "" {
		cfg.Targets = DefaultTargetsFile
	}
	if cfg.Storage.DocumentsDir == "" {
		cfg.Storage.DocumentsDir = DefaultDocumentsDir
	}
	if cfg.Storage.DiffsDir == "" {
		cfg.Storage.DiffsDir = DefaultDiffsDir
	}
	if cfg.Storage.KnowledgeDir == "" {
		cfg.Storage.KnowledgeDir = DefaultKnowledgeDir
	}
	if cfg.Storage.LedgerPath == "" {
		cfg.Storage.LedgerPath = DefaultLedgerPath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = DefaultFetchTimeout
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = DefaultUserAgent
	}
	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = DefaultMaxBytes
	}
	if cfg.Fetch.FeedWindow.Duration == 0 {
		cfg.Fetch.FeedWindow.Duration = DefaultFeedWindow
	}
	if cfg.Extract.Variant == "" {
		cfg.Extract.Variant = DefaultVariant
	}
	if _, ok := cfg.Extract.Variants[DefaultVariant]; !ok {
		if cfg.Extract.Variants == nil {
			cfg.Extract.Variants = make(map[string]VariantConfig)
		}
		cfg.Extract.Variants[DefaultVariant] = VariantConfig{
			Selector:        extract.DefaultSelector,
			HeadingKeywords: extract.DefaultHeadingKeywords,
			MinLineLength:   extract.DefaultMinLineLength,
			Redactions:      extract.DefaultRedactions,
		}
	}
	if cfg.Report.TokenLimit == 0 {
		cfg.Report.TokenLimit = DefaultTokenLimit
	}
	if cfg.Report.CostPerMillion == 0 {
		cfg.Report.CostPerMillion = DefaultCostPerMillion
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = DefaultFormat
	}
	if cfg.Summarize.Provider == "" {
		cfg.Summarize.Provider = DefaultProvider
	}
	if cfg.Summarize.Timeout.Duration == 0 {
		cfg.Summarize.Timeout.Duration = DefaultSummarizeTimeout
	}
	switch cfg.Summarize.Provider {
	case "gemini":
		if cfg.Summarize.Model == "" {
			cfg.Summarize.Model = DefaultModel
		}
		if cfg.Summarize.APIKeyEnv == "" {
			cfg.Summarize.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Summarize.EndpointEnv == "" {
			cfg.Summarize.EndpointEnv = "GEMINI_API_URL"
		}
	case "openai":
		if cfg.Summarize.Model == "" {
			cfg.Summarize.Model = "gpt-4o-mini"
		}
		if cfg.Summarize.APIKeyEnv == "" {
			cfg.Summarize.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Summarize.APIKeyEnv != "" {
		cfg.Summarize.APIKey = os.Getenv(cfg.Summarize.APIKeyEnv)
	}
	if cfg.Summarize.EndpointEnv != "" {
		cfg.Summarize.Endpoint = os.Getenv(cfg.Summarize.EndpointEnv)
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.DocumentsDir, validation.Required),
		validation.Field(&c.Storage.DiffsDir, validation.Required),
		validation.Field(&c.Storage.KnowledgeDir, validation.Required),
		validation.Field(&c.Storage.LedgerPath, validation.Required),
		validation.Field(&c.Storage.RetainDays, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := validation.ValidateStruct(&c.Fetch,
		validation.Field(&c.Fetch.MaxBytes, validation.Min(int64(1))),
		validation.Field(&c.Fetch.Timeout, validation.By(positiveDuration)),
		validation.Field(&c.Fetch.FeedWindow, validation.By(positiveDuration)),
		validation.Field(&c.Fetch.Feeds, validation.Each(validation.Required, validation.By(httpURL))),
	); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := validation.ValidateStruct(&c.Extract,
		validation.Field(&c.Extract.Variant, validation.Required, validation.By(c.knownVariant)),
	); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for name, v := range c.Extract.Variants {
		if err := validation.ValidateStruct(&v,
			validation.Field(&v.MinLineLength, validation.Min(0)),
		); err != nil {
			return fmt.Errorf("extract.variants.%s: %w", name, err)
		}
		if _, err := extract.NewRegulationPage(extract.RegulationOptions{Redactions: v.Redactions}, nil); err != nil {
			return fmt.Errorf("extract.variants.%s: %w", name, err)
		}
	}
	if err := validation.ValidateStruct(&c.Report,
		validation.Field(&c.Report.TokenLimit, validation.Min(1)),
		validation.Field(&c.Report.CostPerMillion, validation.Min(0.0)),
		validation.Field(&c.Report.Format, validation.In(Formats...)),
	); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := validation.ValidateStruct(&c.Summarize,
		validation.Field(&c.Summarize.Provider, validation.Required, validation.In(Providers...)),
		validation.Field(&c.Summarize.Timeout, validation.By(positiveDuration)),
		validation.Field(&c.Summarize.MaxTokens, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if err := validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.In(LogLevels...)),
	); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *Config) knownVariant(value any) error {
	name, _ := value.(string)
	if _, ok := c.Extract.Variants[name]; !ok {
		return fmt.Errorf("unknown variant %q", name)
	}
	return nil
}

func httpURL(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func positiveDuration(value any) error {
	d, _ := value.(Duration)
	if d.Duration < 0 {
		return errors.New("must not be negative")
	}
	return nil
}
