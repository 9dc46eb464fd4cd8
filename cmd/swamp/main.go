// swamp is a command-line client for the SWAMP software assurance
// service.
//
// It logs in once and keeps the session in a storage backend, so later
// commands can list projects, packages, tools and platforms, upload
// package versions, schedule assessments and download their results.
//
// Supported session and export storage backends:
//   - local: Local filesystem storage
//   - gcs: Google Cloud Storage
//   - s3: S3-compatible object storage
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/data-douser/swamp-go/internal/errdefs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return errdefs.ExitCode(err)
	}
	return 0
}
