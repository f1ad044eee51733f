package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/tryon/internal/config"
)

// NewConfigValidateCmd creates the config validate command for validating configuration.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration: the global file, the project
overlay and TRYON_* environment overrides.

This includes:
- Schema version compatibility
- Batch size and timing bounds
- Temperature range
- Service settings
- Whether a Gemini API key can be found`,
		Example: `  # Validate current configuration
  tryon config validate

  # Validate and show detailed information
  tryon config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, verbose bool) error {
	cfg := config.GetGlobalConfig()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if _, _, err := cfg.ResolveAPIKey(); err != nil {
		if !errors.Is(err, config.ErrNoAPIKey) {
			return err
		}
		cmd.Printf("Warning: no API key found. Set %s or run 'tryon key set'.\n", config.EnvAPIKey)
	}

	cmd.Printf("✅ Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	source := cfg.Path()
	if source == "" {
		source = "(defaults)"
	}
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Loaded from: %s\n", source)
	cmd.Printf("  Output directory: %s\n", cfg.Output.Dir)
	cmd.Printf("  Batch: %d jobs, %s apart\n", cfg.Batch.Size, cfg.Stagger())
	cmd.Printf("  Temperatures: %.2f + %.2f per job, within [%.2f, %.2f]\n",
		cfg.Variant.Base, cfg.Variant.Step, cfg.Variant.Min, cfg.Variant.Max)
	cmd.Printf("  Model: %s\n", cfg.Service.Model)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	if dir := config.GetResolvedProjectDir(); dir != "" {
		cmd.Printf("  Project directory: %s\n", dir)
	}
}
