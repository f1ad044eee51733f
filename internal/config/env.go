package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvHome       = "TRYON_HOME"
	EnvConfig     = "TRYON_CONFIG"
	EnvProjectDir = "TRYON_PROJECT_DIR"
	EnvAPIKey     = "GEMINI_API_KEY"
	EnvLogLevel   = "TRYON_LOG_LEVEL"
	EnvLogFormat  = "TRYON_LOG_FORMAT"
)

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// into the process environment. Variables already set are not overridden and
// missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TRYON_* variables. Values that fail to parse
// are ignored and logged.
func (c *Config) ApplyEnv() {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log := GetLogger()
			log.Warn().Str("component", "config").Str("env", name).Err(err).Msg("ignoring invalid integer")
			return
		}
		*dst = n
	}
	flt := func(name string, dst *float64) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log := GetLogger()
			log.Warn().Str("component", "config").Str("env", name).Err(err).Msg("ignoring invalid number")
			return
		}
		*dst = f
	}

	str("TRYON_OUTPUT_DIR", &c.Output.Dir)
	num("TRYON_BATCH_SIZE", &c.Batch.Size)
	num("TRYON_STAGGER_MS", &c.Batch.StaggerMS)
	num("TRYON_CANCEL_WAIT_MS", &c.Batch.CancelWaitMS)
	num("TRYON_PACING_MS", &c.Job.PacingMS)
	num("TRYON_POLL_MS", &c.Job.PollMS)
	str("TRYON_PROMPT", &c.Job.Prompt)
	flt("TRYON_TEMPERATURE_BASE", &c.Variant.Base)
	flt("TRYON_TEMPERATURE_STEP", &c.Variant.Step)
	str("TRYON_MODEL", &c.Service.Model)
	str("TRYON_BASE_URL", &c.Service.BaseURL)
	num("TRYON_TIMEOUT_SECONDS", &c.Service.TimeoutSeconds)
	str("TRYON_CREDENTIALS_FILE", &c.Credentials.File)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvLogFormat, &c.Logging.Format)
	str("TRYON_LOG_FILE", &c.Logging.File)
}
