package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rshade/tryon/pkg/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tryon version %s\n", version.GetVersion())
			fmt.Fprintf(out, "commit: %s\n", version.GetGitCommit())
			fmt.Fprintf(out, "built: %s\n", version.GetBuildDate())
			fmt.Fprintf(out, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
