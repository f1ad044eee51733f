// Command tryon generates batches of virtual try-on images.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rshade/tryon/internal/cli"
	"github.com/rshade/tryon/pkg/version"
)

func main() {
	os.Exit(exitCode(run(context.Background(), os.Args[1:]), os.Stderr))
}

func run(ctx context.Context, args []string) error {
	root := cli.NewRootCmd(version.GetVersion())
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// exitCode reports err on w and returns the process exit code.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(w, exitErr.Reason)
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return cli.ExitCode(err)
}
