package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/longevity/longevity-backend/models"
	"github.com/longevity/longevity-backend/repositories/postgres"
	"github.com/longevity/longevity-backend/services/querylog"
)

// queryLogLister reads recent query log entries
type queryLogLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.QueryLog, error)
}

var _ queryLogLister = (*querylog.Service)(nil)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent questions from the query log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if !cfg.Database.IsConfigured() {
				return errors.New("query log history requires DATABASE_URL or DB_HOST")
			}

			db, err := postgres.NewDB(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			logs := querylog.NewService(postgres.NewQueryLogRepository(db, logger), logger, querylog.DefaultConfig())
			return printHistory(ctx, logs, cmd.OutOrStdout(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

func printHistory(ctx context.Context, lister queryLogLister, out io.Writer, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}

	logs, err := lister.ListRecent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list query logs: %w", err)
	}
	if len(logs) == 0 {
		fmt.Fprintln(out, "no queries recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSTATE\tLATENCY\tSOURCES\tQUESTION")
	for _, l := range logs {
		state := l.State
		if l.FailureKind != nil {
			state += " (" + *l.FailureKind + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\t%s\n",
			l.Timestamp.Format(time.RFC3339),
			state,
			l.LatencyMs,
			strings.Join(l.SourceIDs, ","),
			truncate(l.Question, 60),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
