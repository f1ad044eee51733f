package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rshade/tryon/internal/config"
	"github.com/rshade/tryon/internal/logging"
	"github.com/rshade/tryon/internal/storage"
	"github.com/rshade/tryon/pkg/version"
)

// StepStatus represents the outcome of a single setup step.
type StepStatus int

const (
	// StepSuccess indicates the step completed successfully.
	StepSuccess StepStatus = iota
	// StepWarning indicates the step completed with a non-fatal issue.
	StepWarning
	// StepSkipped indicates the step was intentionally skipped via flag.
	StepSkipped
	// StepError indicates the step failed.
	StepError
)

// StepResult describes the outcome of executing a single setup step.
type StepResult struct {
	Name     string
	Status   StepStatus
	Message  string
	Critical bool
	Err      error
}

// SetupOptions holds the configuration for the setup command, derived from CLI flags.
type SetupOptions struct {
	SkipKey        bool
	NonInteractive bool
}

// SetupResult is the aggregate outcome of all setup steps.
type SetupResult struct {
	Steps       []StepResult
	HasErrors   bool
	HasWarnings bool
}

// dirPermBase is the permission mode for the configuration directories.
const dirPermBase = 0o700

// formatStatus returns a status marker appropriate for the output mode.
func formatStatus(status StepStatus, nonInteractive bool) string {
	if nonInteractive {
		switch status {
		case StepSuccess:
			return "[OK]"
		case StepWarning:
			return "[WARN]"
		case StepSkipped:
			return "[SKIP]"
		case StepError:
			return "[ERR]"
		default:
			return "[??]"
		}
	}

	switch status {
	case StepSuccess:
		return "\u2713" // ✓
	case StepWarning:
		return "!"
	case StepSkipped:
		return "-"
	case StepError:
		return "\u2717" // ✗
	default:
		return "?"
	}
}

// NewSetupCmd creates the setup command that prepares a machine for tryon.
func NewSetupCmd() *cobra.Command {
	var opts SetupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare directories, configuration and the API key",
		Long: `Creates the tryon configuration directory, writes a default config file,
checks that the output directory is writable and looks for a Gemini API key.
On a terminal, a missing key is prompted for and saved.

Setup is idempotent: existing configuration and keys are left untouched.`,
		Example: `  # Full setup
  tryon setup

  # CI setup (plain status markers, no prompts)
  tryon setup --non-interactive

  # Skip the API key check
  tryon setup --skip-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NonInteractive, "non-interactive", false,
		"Disable prompts and TTY-dependent output")
	cmd.Flags().BoolVar(&opts.SkipKey, "skip-key", false,
		"Skip the Gemini API key check")

	return cmd
}

// runSetup runs every step and keeps going after failures. It returns an
// error only if a critical step fails.
func runSetup(cmd *cobra.Command, opts *SetupOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.FromContext(ctx)

	in, isFile := cmd.InOrStdin().(*os.File)
	if !opts.NonInteractive && (!isFile || !isTerminal(in)) {
		opts.NonInteractive = true
	}

	result := &SetupResult{}
	record := func(steps ...StepResult) {
		for _, s := range steps {
			printStep(cmd, s, opts.NonInteractive)
			result.Steps = append(result.Steps, s)
		}
	}

	record(stepDisplayVersion())
	record(stepCreateDirectories()...)
	record(stepInitConfig())

	cfg := config.GetGlobalConfig()
	record(stepCheckOutputDir(cfg))

	if opts.SkipKey {
		record(StepResult{Name: "API key", Status: StepSkipped, Message: "Skipped API key check"})
	} else {
		record(stepCheckAPIKey(ctx, cmd, cfg, opts.NonInteractive))
	}

	for _, s := range result.Steps {
		if s.Status == StepError && s.Critical {
			result.HasErrors = true
		}
		if s.Status == StepWarning {
			result.HasWarnings = true
		}
	}

	printSummary(cmd, result)

	if result.HasErrors {
		log.Error().
			Ctx(ctx).
			Str("component", "setup").
			Msg("setup completed with critical errors")
		return errors.New("setup failed: one or more critical steps failed")
	}
	return nil
}

// printStep outputs a single step's status line.
func printStep(cmd *cobra.Command, step StepResult, nonInteractive bool) {
	cmd.Printf("%s %s\n", formatStatus(step.Status, nonInteractive), step.Message)
}

// printSummary outputs the final completion message.
func printSummary(cmd *cobra.Command, result *SetupResult) {
	cmd.Println()
	if result.HasErrors {
		cmd.Println("Setup completed with errors. Review the messages above for remediation steps.")
	} else {
		cmd.Println("Setup complete! Run 'tryon generate --person <image> --clothing <image>' to get started.")
	}
}

func stepDisplayVersion() StepResult {
	return StepResult{
		Name:    "Version display",
		Status:  StepSuccess,
		Message: fmt.Sprintf("tryon v%s (%s)", version.GetVersion(), runtime.Version()),
	}
}

// stepCreateDirectories creates the configuration and log directories.
func stepCreateDirectories() []StepResult {
	baseDir, err := config.GetConfigDir()
	if err != nil {
		return []StepResult{{
			Name:     "Directory creation",
			Status:   StepError,
			Message:  fmt.Sprintf("Cannot locate configuration directory: %v", err),
			Critical: true,
			Err:      err,
		}}
	}

	var results []StepResult
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "logs")} {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			results = append(results, StepResult{
				Name:     "Directory creation",
				Status:   StepSuccess,
				Message:  fmt.Sprintf("Directory exists: %s", dir),
				Critical: true,
			})
			continue
		}

		if mkErr := os.MkdirAll(dir, dirPermBase); mkErr != nil {
			results = append(results, StepResult{
				Name:   "Directory creation",
				Status: StepError,
				Message: fmt.Sprintf(
					"Failed to create %s: %v\n  Try: export %s=/path/to/writable/directory",
					dir, mkErr, config.EnvHome,
				),
				Critical: true,
				Err:      mkErr,
			})
			continue
		}

		results = append(results, StepResult{
			Name:     "Directory creation",
			Status:   StepSuccess,
			Message:  fmt.Sprintf("Created %s", dir),
			Critical: true,
		})
	}
	return results
}

// stepInitConfig writes a default config file if none exists.
func stepInitConfig() StepResult {
	configPath, err := config.ConfigPath()
	if err != nil {
		return StepResult{
			Name:     "Config initialization",
			Status:   StepError,
			Message:  fmt.Sprintf("Cannot locate config file: %v", err),
			Critical: true,
			Err:      err,
		}
	}

	if _, statErr := os.Stat(configPath); statErr == nil {
		return StepResult{
			Name:     "Config initialization",
			Status:   StepSuccess,
			Message:  fmt.Sprintf("Config already exists (%s)", configPath),
			Critical: true,
		}
	}

	if err = config.Default().Save(configPath); err != nil {
		return StepResult{
			Name:     "Config initialization",
			Status:   StepError,
			Message:  fmt.Sprintf("Failed to initialize config: %v", err),
			Critical: true,
			Err:      err,
		}
	}

	return StepResult{
		Name:     "Config initialization",
		Status:   StepSuccess,
		Message:  fmt.Sprintf("Initialized config (%s)", configPath),
		Critical: true,
	}
}

// stepCheckOutputDir makes sure artifacts can be written.
func stepCheckOutputDir(cfg *config.Config) StepResult {
	store, err := storage.NewFileStore(cfg.Output.Dir)
	if err != nil {
		return StepResult{
			Name:    "Output directory",
			Status:  StepWarning,
			Message: fmt.Sprintf("Output directory %s is not usable: %v\n  Try: tryon generate --output <dir>", cfg.Output.Dir, err),
			Err:     err,
		}
	}
	if err = probeWritable(store.BasePath()); err != nil {
		return StepResult{
			Name:    "Output directory",
			Status:  StepWarning,
			Message: fmt.Sprintf("Output directory %s is not writable: %v", store.BasePath(), err),
			Err:     err,
		}
	}
	return StepResult{
		Name:    "Output directory",
		Status:  StepSuccess,
		Message: fmt.Sprintf("Output directory ready (%s)", store.BasePath()),
	}
}

// stepCheckAPIKey reports whether a key is configured and, when interactive,
// prompts for a missing one.
func stepCheckAPIKey(ctx context.Context, cmd *cobra.Command, cfg *config.Config, nonInteractive bool) StepResult {
	key, source, err := cfg.ResolveAPIKey()
	if err == nil {
		where := config.EnvAPIKey
		if source == config.SourceFile {
			where = cfg.CredentialPath()
		}
		return StepResult{
			Name:    "API key",
			Status:  StepSuccess,
			Message: fmt.Sprintf("API key %s found in %s", maskKey(key), where),
		}
	}

	missing := StepResult{
		Name:    "API key",
		Status:  StepWarning,
		Message: fmt.Sprintf("No Gemini API key found\n  Try: export %s=<key>, or: tryon key set", config.EnvAPIKey),
		Err:     err,
	}
	if nonInteractive || !errors.Is(err, config.ErrNoAPIKey) {
		return missing
	}

	key, err = PromptSecret(cmd.OutOrStdout(), cmd.InOrStdin(), "Gemini API key (leave empty to skip)")
	if err != nil || key == "" {
		return missing
	}
	if err = config.WriteAPIKey(cfg.CredentialPath(), key); err != nil {
		logging.FromContext(ctx).Warn().Ctx(ctx).Err(err).Msg("saving API key failed")
		missing.Message = fmt.Sprintf("Could not save API key: %v", err)
		missing.Err = err
		return missing
	}
	return StepResult{
		Name:    "API key",
		Status:  StepSuccess,
		Message: fmt.Sprintf("API key saved to %s", cfg.CredentialPath()),
	}
}

// probeWritable creates and removes a temporary file in dir.
func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".tryon-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
