package cli

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/tryon/internal/config"
	"github.com/rshade/tryon/internal/logging"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the tryon CLI. It loads
// .env and the layered configuration, wires up logging and tracing, and
// registers the generate, key, config, setup and version subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var (
		logResult  *logging.LogPathResult
		projectDir string
	)

	cmd := &cobra.Command{
		Use:           "tryon",
		Short:         "Staggered virtual try-on image generation",
		Long:          "tryon: generate batches of virtual try-on images with the Gemini API, one variant per temperature",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				cmd.PrintErrf("Warning: %v\n", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cwd, _ := os.Getwd()
			resolved := config.ResolveProjectDir(ctx, projectDir, cwd)
			config.SetResolvedProjectDir(resolved)
			config.SetGlobalConfig(config.NewWithProjectDir(ctx, resolved))

			result := setupLogging(cmd)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&projectDir, "project-dir", "",
		"project directory holding .tryon/config.yaml (default: walk up from the working directory)")

	cmd.AddCommand(NewGenerateCmd(), newKeyCmd(), newConfigCmd(), NewSetupCmd(), NewVersionCmd())

	return cmd
}

const rootCmdExample = `  # Generate ten variants, two seconds apart
  tryon generate --person me.jpg --clothing jacket.png

  # Three variants, one second apart, custom prompt
  tryon generate --person me.jpg --clothing jacket.png --count 3 --stagger 1s --prompt "studio lighting"

  # Exercise the pipeline offline
  tryon generate --person me.jpg --clothing jacket.png --dry-run --no-tui

  # Store the Gemini API key
  tryon key set

  # Initialize configuration
  tryon config init`

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(
		NewConfigInitCmd(), NewConfigGetCmd(), NewConfigListCmd(),
		NewConfigPathCmd(), NewConfigValidateCmd(),
	)
	return cmd
}

// newKeyCmd creates the key command group for the Gemini API credential.
func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Gemini API key management"}
	cmd.AddCommand(NewKeySetCmd(), NewKeyPathCmd(), NewKeyStatusCmd())
	return cmd
}
