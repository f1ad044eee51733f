// Package config loads tryon's YAML configuration, applies environment
// overrides, and resolves the Gemini API credential.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/rshade/tryon/internal/engine/job"
)

// CurrentVersion is the config schema version written by config init.
const CurrentVersion = "1.0.0"

// DefaultPrompt asks for a try-on that keeps the person's identity and scene.
const DefaultPrompt = "Generate a high-quality virtual try-on image showing the person wearing the " +
	"clothing from the second image. Preserve all facial features, hairstyle, skin tone, body " +
	"proportions, pose, and background."

// Defaults.
const (
	DefaultOutputDir       = "results"
	DefaultBatchSize       = 10
	DefaultStaggerMS       = 2000
	DefaultCancelWaitMS    = 1000
	DefaultPacingMS        = 2000
	DefaultPollMS          = 100
	DefaultModel           = "gemini-2.0-flash-exp-image-generation"
	DefaultBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTimeoutSeconds  = 120
	DefaultTopK            = 32
	DefaultTopP            = 1.0
	DefaultMaxOutputTokens = 2048
	DefaultCredentialsFile = "api_key.txt"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"

	outputTypeFile = "file"
	maxBatchSize   = 100
)

// Config errors.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnsupportedVersion = errors.New("unsupported config version")
	ErrUnknownKey         = errors.New("unknown config key")
)

// Config is the full tryon configuration.
type Config struct {
	Version     string            `yaml:"version"`
	Output      OutputConfig      `yaml:"output"`
	Batch       BatchConfig       `yaml:"batch"`
	Job         JobConfig         `yaml:"job"`
	Variant     job.VariantConfig `yaml:"variant"`
	Service     ServiceConfig     `yaml:"service"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`

	// path is the file the config was loaded from, if any.
	path string
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// BatchConfig controls batch size and launch spacing.
type BatchConfig struct {
	Size         int `yaml:"size"`
	StaggerMS    int `yaml:"stagger_ms"`
	CancelWaitMS int `yaml:"cancel_wait_ms"`
}

// JobConfig controls per-job pacing and the default prompt.
type JobConfig struct {
	PacingMS int    `yaml:"pacing_ms"`
	PollMS   int    `yaml:"poll_ms"`
	Prompt   string `yaml:"prompt"`
}

// ServiceConfig configures the Gemini client.
type ServiceConfig struct {
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	TopK            int     `yaml:"top_k"`
	TopP            float64 `yaml:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// CredentialsConfig locates the persisted API key.
type CredentialsConfig struct {
	File string `yaml:"file"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a config populated with defaults only.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Output:  OutputConfig{Dir: DefaultOutputDir},
		Batch: BatchConfig{
			Size:         DefaultBatchSize,
			StaggerMS:    DefaultStaggerMS,
			CancelWaitMS: DefaultCancelWaitMS,
		},
		Job: JobConfig{
			PacingMS: DefaultPacingMS,
			PollMS:   DefaultPollMS,
			Prompt:   DefaultPrompt,
		},
		Variant: job.DefaultVariant(),
		Service: ServiceConfig{
			Model:           DefaultModel,
			BaseURL:         DefaultBaseURL,
			TimeoutSeconds:  DefaultTimeoutSeconds,
			TopK:            DefaultTopK,
			TopP:            DefaultTopP,
			MaxOutputTokens: DefaultMaxOutputTokens,
		},
		Credentials: CredentialsConfig{File: DefaultCredentialsFile},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// New loads the config file at ConfigPath over the defaults and applies
// environment overrides. A missing or unreadable file leaves the defaults in
// place; the problem is logged.
func New() *Config {
	cfg := Default()
	path, err := ConfigPath()
	if err == nil {
		if loadErr := cfg.LoadFile(path); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
			cfg = Default()
			log := GetLogger()
			log.Warn().
				Str("component", "config").
				Err(loadErr).
				Str("path", path).
				Msg("failed to load config file, using defaults")
		}
	}
	cfg.ApplyEnv()
	return cfg
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes path into c. Fields absent from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err = CheckVersion(c.Version); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	c.path = path
	return nil
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// Save writes c to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	c.path = path
	return nil
}

// CheckVersion rejects config files written for a different major version.
// An empty version is accepted as current.
func CheckVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsupportedVersion, version, err)
	}
	current := semver.MustParse(CurrentVersion)
	if v.Major() != current.Major() {
		return fmt.Errorf("%w: %s (supported: %d.x)", ErrUnsupportedVersion, v, current.Major())
	}
	return nil
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.Output.Dir) == "" {
		add("output.dir is required")
	}
	if c.Batch.Size < 1 || c.Batch.Size > maxBatchSize {
		add("batch.size must be between 1 and %d, got %d", maxBatchSize, c.Batch.Size)
	}
	if c.Batch.StaggerMS < 0 {
		add("batch.stagger_ms must not be negative")
	}
	if c.Batch.CancelWaitMS <= 0 {
		add("batch.cancel_wait_ms must be positive")
	}
	if c.Job.PacingMS < 0 {
		add("job.pacing_ms must not be negative")
	}
	if c.Job.PollMS <= 0 {
		add("job.poll_ms must be positive")
	}
	if err := c.Variant.Validate(); err != nil {
		add("variant: %v", err)
	}
	if c.Service.Model == "" {
		add("service.model is required")
	}
	if c.Service.TimeoutSeconds <= 0 {
		add("service.timeout_seconds must be positive")
	}
	if c.Service.TopP < 0 || c.Service.TopP > 1 {
		add("service.top_p must be within [0, 1]")
	}
	if c.Credentials.File == "" {
		add("credentials.file is required")
	}
	if err := CheckVersion(c.Version); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stagger returns the launch spacing.
func (c *Config) Stagger() time.Duration {
	return time.Duration(c.Batch.StaggerMS) * time.Millisecond
}

// CancelWait returns the per-job cancel wait.
func (c *Config) CancelWait() time.Duration {
	return time.Duration(c.Batch.CancelWaitMS) * time.Millisecond
}

// Pacing returns the job pacing settings.
func (c *Config) Pacing() job.Pacing {
	return job.Pacing{
		Delay: time.Duration(c.Job.PacingMS) * time.Millisecond,
		Poll:  time.Duration(c.Job.PollMS) * time.Millisecond,
	}
}

// ServiceTimeout returns the HTTP timeout for one generation call.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// Keys returns every dotted key understood by Get, sorted.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.fields()))
	for k := range c.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key such as "batch.size".
func (c *Config) Get(key string) (string, error) {
	get, ok := c.fields()[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return get(), nil
}

func (c *Config) fields() map[string]func() string {
	itoa := strconv.Itoa
	ftoa := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
	return map[string]func() string{
		"version":                   func() string { return c.Version },
		"output.dir":                func() string { return c.Output.Dir },
		"batch.size":                func() string { return itoa(c.Batch.Size) },
		"batch.stagger_ms":          func() string { return itoa(c.Batch.StaggerMS) },
		"batch.cancel_wait_ms":      func() string { return itoa(c.Batch.CancelWaitMS) },
		"job.pacing_ms":             func() string { return itoa(c.Job.PacingMS) },
		"job.poll_ms":               func() string { return itoa(c.Job.PollMS) },
		"job.prompt":                func() string { return c.Job.Prompt },
		"variant.base":              func() string { return ftoa(c.Variant.Base) },
		"variant.step":              func() string { return ftoa(c.Variant.Step) },
		"variant.min":               func() string { return ftoa(c.Variant.Min) },
		"variant.max":               func() string { return ftoa(c.Variant.Max) },
		"service.model":             func() string { return c.Service.Model },
		"service.base_url":          func() string { return c.Service.BaseURL },
		"service.timeout_seconds":   func() string { return itoa(c.Service.TimeoutSeconds) },
		"service.top_k":             func() string { return itoa(c.Service.TopK) },
		"service.top_p":             func() string { return ftoa(c.Service.TopP) },
		"service.max_output_tokens": func() string { return itoa(c.Service.MaxOutputTokens) },
		"credentials.file":          func() string { return c.Credentials.File },
		"logging.level":             func() string { return c.Logging.Level },
		"logging.format":            func() string { return c.Logging.Format },
		"logging.file":              func() string { return c.Logging.File },
	}
}
