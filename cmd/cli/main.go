package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/unloadcopy/internal/app"
	"github.com/specialistvlad/unloadcopy/internal/cli"
	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/report"
)

// main is the entrypoint for the unloadcopy application.
func main() {
	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(report.ExitTaskFailure)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := app.NewApp(outW, appConfig).Run(ctx)
	if err != nil {
		var setupErr *app.SetupError
		if errors.As(err, &setupErr) {
			return &cli.ExitError{Code: report.ExitConfigError, Message: err.Error()}
		}
		return err
	}
	if code := report.ExitCode(result); code != report.ExitSuccess {
		return &cli.ExitError{
			Code: code,
			Message: fmt.Sprintf("migration incomplete: %d failed, %d skipped",
				result.Count(node.StatusFailed), result.Count(node.StatusSkipped)),
		}
	}
	return nil
}
