package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/tryon/internal/config"
	"github.com/rshade/tryon/internal/engine/batch"
	"github.com/rshade/tryon/internal/engine/job"
	"github.com/rshade/tryon/internal/genai"
	"github.com/rshade/tryon/internal/inputs"
	"github.com/rshade/tryon/internal/logging"
	"github.com/rshade/tryon/internal/storage"
	"github.com/rshade/tryon/internal/tui"
)

// Output formats for the batch summary.
const (
	formatTable = "table"
	formatJSON  = "json"
)

// dryRunAPIKey satisfies the credential check when no service is called.
const dryRunAPIKey = "dry-run"

// dryRunLatency approximates a remote call so staggering stays visible.
const dryRunLatency = 1500 * time.Millisecond

// closeTimeout bounds controller shutdown after the batch is over.
const closeTimeout = 5 * time.Second

// GenerateOptions holds the flags of the generate command.
type GenerateOptions struct {
	PersonPath      string
	ClothingPath    string
	Prompt          string
	Count           int
	Stagger         time.Duration
	OutputDir       string
	TemperatureBase float64
	TemperatureStep float64
	Format          string
	DryRun          bool
	NoTUI           bool
}

// Validate checks the flag combination.
func (o *GenerateOptions) Validate() error {
	var errs []error
	if strings.TrimSpace(o.PersonPath) == "" {
		errs = append(errs, errors.New("--person is required"))
	}
	if strings.TrimSpace(o.ClothingPath) == "" {
		errs = append(errs, errors.New("--clothing is required"))
	}
	if o.Count < 0 || o.Count > batch.MaxBatchSize {
		errs = append(errs, fmt.Errorf("--count must be between 1 and %d", batch.MaxBatchSize))
	}
	if o.Stagger < 0 {
		errs = append(errs, errors.New("--stagger must not be negative"))
	}
	switch o.Format {
	case formatTable, formatJSON:
	default:
		errs = append(errs, fmt.Errorf("--format must be %q or %q", formatTable, formatJSON))
	}
	return errors.Join(errs...)
}

// NewGenerateCmd creates the generate command, which runs one batch of
// staggered try-on jobs.
func NewGenerateCmd() *cobra.Command {
	opts := GenerateOptions{Format: formatTable}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of virtual try-on images",
		Long: `Starts a batch of generation jobs, one launched every --stagger, each with
its own temperature. Results are written to the output directory as they
arrive.

On a terminal an interactive view shows every job: press c to cancel the
batch, r to run it again once it is complete, and q to quit. Elsewhere,
progress is logged and a summary is printed; Ctrl+C cancels the batch.`,
		Example: `  tryon generate --person me.jpg --clothing jacket.png
  tryon generate --person me.jpg --clothing jacket.png --count 3 --stagger 500ms
  tryon generate --person me.jpg --clothing jacket.png --dry-run --no-tui --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.PersonPath, "person", "", "path to the person image (required)")
	f.StringVar(&opts.ClothingPath, "clothing", "", "path to the clothing image (required)")
	f.StringVar(&opts.Prompt, "prompt", "", "instruction text (default from job.prompt)")
	f.IntVarP(&opts.Count, "count", "n", 0, "number of jobs in the batch (default from batch.size)")
	f.DurationVar(&opts.Stagger, "stagger", 0, "delay between job launches (default from batch.stagger_ms)")
	f.StringVarP(&opts.OutputDir, "output", "o", "", "artifact directory (default from output.dir)")
	f.Float64Var(&opts.TemperatureBase, "temperature-base", 0, "temperature of job 0 (default from variant.base)")
	f.Float64Var(&opts.TemperatureStep, "temperature-step", 0, "temperature increment per job (default from variant.step)")
	f.StringVar(&opts.Format, "format", formatTable, "summary format: table or json")
	f.BoolVar(&opts.DryRun, "dry-run", false, "render synthetic images instead of calling Gemini")
	f.BoolVar(&opts.NoTUI, "no-tui", false, "disable the interactive view")

	return cmd
}

// applyGenerateOverrides copies explicitly set flags over the config.
func applyGenerateOverrides(cmd *cobra.Command, cfg *config.Config, opts *GenerateOptions) {
	flags := cmd.Flags()
	if flags.Changed("count") {
		cfg.Batch.Size = opts.Count
	}
	if flags.Changed("stagger") {
		cfg.Batch.StaggerMS = int(opts.Stagger / time.Millisecond)
	}
	if flags.Changed("output") {
		cfg.Output.Dir = opts.OutputDir
	}
	if flags.Changed("prompt") {
		cfg.Job.Prompt = opts.Prompt
	}
	if flags.Changed("temperature-base") {
		cfg.Variant.Base = opts.TemperatureBase
	}
	if flags.Changed("temperature-step") {
		cfg.Variant.Step = opts.TemperatureStep
	}
}

// controllerConfig maps the file configuration onto the controller's.
func controllerConfig(cfg *config.Config) batch.ControllerConfig {
	return batch.ControllerConfig{
		BatchSize:       cfg.Batch.Size,
		Stagger:         cfg.Stagger(),
		CancelWait:      cfg.CancelWait(),
		Variant:         cfg.Variant,
		Pacing:          cfg.Pacing(),
		TopK:            cfg.Service.TopK,
		TopP:            cfg.Service.TopP,
		MaxOutputTokens: cfg.Service.MaxOutputTokens,
	}
}

// generatorFactory builds the Gemini client per job, or a synthetic
// generator for dry runs.
func generatorFactory(cfg *config.Config, dryRun bool, log zerolog.Logger) job.GeneratorFactory {
	if dryRun {
		return func(string) (genai.Generator, error) {
			return genai.Synthetic{Latency: dryRunLatency}, nil
		}
	}
	service := cfg.Service
	timeout := cfg.ServiceTimeout()
	return func(apiKey string) (genai.Generator, error) {
		return genai.NewClient(genai.Options{
			APIKey:  apiKey,
			BaseURL: service.BaseURL,
			Model:   service.Model,
			Timeout: timeout,
			Logger:  log,
		})
	}
}

// resolveAPIKey finds the credential. When none is configured and input is
// a terminal, it prompts and saves the answer for next time.
func resolveAPIKey(cmd *cobra.Command, cfg *config.Config, dryRun bool) (string, error) {
	if dryRun {
		return dryRunAPIKey, nil
	}

	key, source, err := cfg.ResolveAPIKey()
	if err == nil {
		logger.Debug().Ctx(cmd.Context()).Str("source", source).Msg("using API key")
		return key, nil
	}
	if !errors.Is(err, config.ErrNoAPIKey) {
		return "", err
	}

	missing := fmt.Errorf("%w: set %s or run 'tryon key set'", job.ErrMissingCredential, config.EnvAPIKey)
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(in) {
		return "", missing
	}

	cmd.PrintErrln("No Gemini API key found.")
	key, err = PromptSecret(cmd.ErrOrStderr(), in, "Gemini API key")
	if err != nil || key == "" {
		return "", missing
	}
	if saveErr := config.WriteAPIKey(cfg.CredentialPath(), key); saveErr != nil {
		cmd.PrintErrf("Warning: could not save API key: %v\n", saveErr)
	} else {
		cmd.PrintErrf("API key saved to %s\n", cfg.CredentialPath())
	}
	return key, nil
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.FromContext(ctx).With().Str("component", "generate").Logger()

	cfg := *config.GetGlobalConfig()
	applyGenerateOverrides(cmd, &cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	apiKey, err := resolveAPIKey(cmd, &cfg, opts.DryRun)
	if err != nil {
		return err
	}

	store, err := storage.NewFileStore(cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("preparing output directory: %w", err)
	}

	useTUI := !opts.NoTUI && isTerminal(os.Stdout) && isTerminal(os.Stdin)
	req := batch.Request{
		Size:         cfg.Batch.Size,
		Prompt:       cfg.Job.Prompt,
		PersonPath:   opts.PersonPath,
		ClothingPath: opts.ClothingPath,
		APIKey:       apiKey,
	}

	var summary *batch.Summary
	if useTUI {
		summary, err = runWithTUI(ctx, &cfg, store, req, opts.DryRun)
	} else {
		deps := batch.ControllerDeps{
			Generators: generatorFactory(&cfg, opts.DryRun, log),
			Loader:     inputs.NewLoader(),
			Store:      store,
			Logger:     log,
		}
		summary, err = runHeadless(ctx, &cfg, deps, req, log)
	}
	if err != nil {
		return err
	}
	if summary == nil {
		cmd.PrintErrln("Batch abandoned before completion")
		return nil
	}

	if err = renderSummary(cmd.OutOrStdout(), *summary, opts.Format); err != nil {
		return err
	}
	return summaryExitError(*summary)
}

// summaryCollector keeps the last completed batch summary.
type summaryCollector struct {
	batch.NopSink
	mu      sync.Mutex
	summary *batch.Summary
}

func (s *summaryCollector) OnBatchComplete(summary batch.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &summary
}

// Summary returns the collected summary, or nil.
func (s *summaryCollector) Summary() *batch.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// runHeadless runs one batch with log output. SIGINT and SIGTERM cancel it.
func runHeadless(
	ctx context.Context,
	cfg *config.Config,
	deps batch.ControllerDeps,
	req batch.Request,
	log zerolog.Logger,
) (*batch.Summary, error) {
	collector := &summaryCollector{}
	deps.Sink = batch.MultiSink{batch.NewLogSink(log), collector}

	ctrl, err := batch.NewController(controllerConfig(cfg), deps)
	if err != nil {
		return nil, err
	}
	defer closeController(ctx, ctrl, log)

	info, err := ctrl.StartBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info().
		Ctx(ctx).
		Str("batch_id", info.ID).
		Int("size", info.Size).
		Str("output_dir", cfg.Output.Dir).
		Msg("batch running, press Ctrl+C to cancel")

	handler := NewSignalHandler(log)
	handler.OnShutdown(func() {
		if cancelErr := ctrl.CancelBatch(context.WithoutCancel(ctx)); cancelErr != nil {
			log.Warn().Err(cancelErr).Msg("cancel failed")
		}
	})
	handler.Start()
	defer handler.Stop()

	if err = ctrl.Wait(ctx); err != nil {
		return nil, err
	}
	return collector.Summary(), nil
}

// runWithTUI runs the interactive view until the user quits. Logs go to a
// file so they do not corrupt the screen.
func runWithTUI(
	ctx context.Context,
	cfg *config.Config,
	store *storage.FileStore,
	req batch.Request,
	dryRun bool,
) (*batch.Summary, error) {
	fileLog := tuiLogger(cfg)
	defer func() { _ = fileLog.Close() }()
	log := logging.ComponentLogger(fileLog.Logger, "generate")

	model := tui.NewBatchModel(ctx, req)
	program := tui.NewProgram(ctx, model, nil, nil)

	ctrl, err := batch.NewController(controllerConfig(cfg), batch.ControllerDeps{
		Generators: generatorFactory(cfg, dryRun, log),
		Loader:     inputs.NewLoader(),
		Store:      store,
		Sink:       batch.MultiSink{tui.NewProgramSink(program), batch.NewLogSink(log)},
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	defer closeController(ctx, ctrl, log)
	model.SetController(ctrl)

	if _, err = program.Run(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("running interactive view: %w", err)
	}
	if model.Summary() == nil && model.Err() != nil {
		return nil, model.Err()
	}
	return model.Summary(), nil
}

// tuiLogger opens the configured log file, or tryon.log in the config
// directory. If neither can be opened, logging is discarded.
func tuiLogger(cfg *config.Config) *logging.LogPathResult {
	file := cfg.Logging.File
	if file == "" {
		if dir, err := config.GetConfigDir(); err == nil {
			file = filepath.Join(dir, "tryon.log")
		}
	}
	result := logging.NewLoggerWithPath(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logging.FormatJSON,
		Output: logging.OutputFile,
		File:   file,
	})
	if !result.UsingFile {
		result.Logger = zerolog.Nop()
	}
	return &result
}

func closeController(ctx context.Context, ctrl *batch.Controller, log zerolog.Logger) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := ctrl.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("controller did not close cleanly")
	}
}

// summaryExitError maps a summary to a non-zero exit when the user
// cancelled or when no job succeeded.
func summaryExitError(s batch.Summary) error {
	switch {
	case s.UserCancelled:
		return &ExitError{Code: ExitUserCancelled, Reason: "batch cancelled"}
	case s.Succeeded == 0 && s.Failed > 0:
		return &ExitError{Code: ExitJobsFailed, Reason: "every job failed"}
	default:
		return nil
	}
}
