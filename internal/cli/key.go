package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rshade/tryon/internal/config"
)

// NewKeySetCmd creates the key set command, which stores the Gemini API key.
func NewKeySetCmd() *cobra.Command {
	var (
		force   bool
		fromEnv bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the Gemini API key",
		Long: `Prompts for the Gemini API key and saves it to the credentials file
(credentials.file, default api_key.txt) with owner-only permissions.

The key can also be piped in on standard input.`,
		Example: `  # Prompt for the key (input is hidden)
  tryon key set

  # Pipe the key in
  echo "$KEY" | tryon key set --force

  # Persist the key currently in GEMINI_API_KEY
  tryon key set --from-env`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeySet(cmd, force, fromEnv)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file without asking")
	cmd.Flags().BoolVar(&fromEnv, "from-env", false, "save the key from "+config.EnvAPIKey)

	return cmd
}

func runKeySet(cmd *cobra.Command, force, fromEnv bool) error {
	cfg := config.GetGlobalConfig()
	path := cfg.CredentialPath()
	in := lineReader(cmd.InOrStdin())

	if !force {
		if _, err := os.Stat(path); err == nil {
			answer := Confirm(cmd.OutOrStdout(), in,
				fmt.Sprintf("A key is already stored in %s. Replace it?", path))
			if !answer.Accepted {
				cmd.Println("Key unchanged")
				return nil
			}
		}
	}

	var key string
	if fromEnv {
		key = os.Getenv(config.EnvAPIKey)
		if key == "" {
			return fmt.Errorf("%w: %s is not set", config.ErrNoAPIKey, config.EnvAPIKey)
		}
	} else {
		var err error
		key, err = PromptSecret(cmd.OutOrStdout(), in, "Gemini API key")
		if err != nil {
			return err
		}
	}

	if err := config.WriteAPIKey(path, key); err != nil {
		return err
	}

	logger.Info().Ctx(cmd.Context()).Str("path", path).Msg("API key saved")
	cmd.Printf("API key saved to %s\n", path)
	return nil
}

// NewKeyPathCmd creates the key path command.
func NewKeyPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the credentials file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetGlobalConfig().CredentialPath()
			if abs, absErr := filepath.Abs(path); absErr == nil {
				path = abs
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

// NewKeyStatusCmd creates the key status command. It reports where the key
// would be read from without printing it.
func NewKeyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a Gemini API key is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetGlobalConfig()
			key, source, err := cfg.ResolveAPIKey()
			if errors.Is(err, config.ErrNoAPIKey) {
				cmd.Printf("No API key configured. Set %s or run 'tryon key set'.\n", config.EnvAPIKey)
				return err
			}
			if err != nil {
				return err
			}

			where := config.EnvAPIKey
			if source == config.SourceFile {
				where = cfg.CredentialPath()
			}
			cmd.Printf("API key %s from %s\n", maskKey(key), where)
			return nil
		},
	}
}

// maskKey keeps the last four characters of key.
func maskKey(key string) string {
	const visible = 4
	if len(key) <= visible {
		return "****"
	}
	return "****" + key[len(key)-visible:]
}
