package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rshade/tryon/internal/config"
)

// NewConfigInitCmd creates the config init command for initializing configuration.
// When a project directory is resolved (without --global), it creates a
// project-local .tryon/ directory with config.yaml and .gitignore. Otherwise,
// it creates the global ~/.tryon/config.yaml.
func NewConfigInitCmd() *cobra.Command {
	var (
		force  bool
		global bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates a new configuration file with default values.

Inside a project (--project-dir, TRYON_PROJECT_DIR, or an existing .tryon
directory above the working directory), creates $PROJECT/.tryon/config.yaml
with a .gitignore that keeps the API key, results and logs out of git.
Use --global to force global configuration initialization.`,
		Example: `  # Create project-local configuration
  tryon config init --project-dir .

  # Create global configuration
  tryon config init --global

  # Create configuration, overwriting existing
  tryon config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectDir := config.GetResolvedProjectDir()

			if projectDir != "" && !global {
				return initProjectConfig(cmd, projectDir, force)
			}

			return initGlobalConfig(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	cmd.Flags().BoolVar(&global, "global", false, "force global configuration init even inside a project")

	return cmd
}

// checkWritable refuses to overwrite configPath unless force is set.
func checkWritable(configPath string, force bool) error {
	if force {
		return nil
	}
	_, err := os.Stat(configPath)
	if err == nil {
		return errors.New("configuration file already exists, use --force to overwrite")
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("cannot access config path %s: %w", configPath, err)
	}
	return nil
}

// initProjectConfig creates project-local config at projectDir/config.yaml with .gitignore.
func initProjectConfig(cmd *cobra.Command, projectDir string, force bool) error {
	configPath := filepath.Join(projectDir, "config.yaml")
	if err := checkWritable(configPath, force); err != nil {
		return err
	}

	if err := os.MkdirAll(projectDir, 0o750); err != nil {
		return fmt.Errorf("failed to create project config directory: %w", err)
	}

	if err := config.Default().Save(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	// Never overwrites an existing .gitignore.
	created, err := config.EnsureGitignore(projectDir)
	if err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}

	cmd.Printf("Configuration initialized at %s\n", configPath)
	if created {
		cmd.Printf("Created .gitignore to keep credentials and results out of version control\n")
	}

	return nil
}

// initGlobalConfig creates global config at ~/.tryon/config.yaml.
func initGlobalConfig(cmd *cobra.Command, force bool) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err = checkWritable(configPath, force); err != nil {
		return err
	}

	if err = config.Default().Save(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration initialized successfully\n")
	cmd.Printf("Configuration file: %s\n", configPath)

	return nil
}
