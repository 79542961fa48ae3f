package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/config"
	"github.com/longevity/longevity-backend/internal/observability"
)

// Exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitNoEvidence = 2
)

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "longevity",
		Short: "Nutrition question answering grounded on a curated knowledge base",
		Long: `longevity answers nutrition questions in Italian from a vector index of
scientific passages. Run "longevity serve" for the HTTP API or
"longevity ask" for a single question from the terminal.`,
		// Always silence usage on errors - users can use --help to see usage
		SilenceUsage: true,
		// Errors are printed by execute so exit-code-only errors stay quiet
		SilenceErrors: true,
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(newServeCmd(), newAskCmd(), newHistoryCmd())
	return cmd
}

func execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)

	err := cmd.Execute()
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return exitCode(err)
}

// bootstrap loads configuration and builds the logger shared by every command
func bootstrap(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
