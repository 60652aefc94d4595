package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwygoda/vidbot/internal/adapter/sqlite"
	"github.com/cwygoda/vidbot/internal/domain"
)

const defaultHistoryLimit = 20

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent jobs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			repo, err := sqlite.New(cfg.Paths.DBPath)
			if err != nil {
				return fmt.Errorf("open job ledger: %w", err)
			}
			defer repo.Close()

			records, err := repo.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistory(records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Number of jobs to show")
	return cmd
}

func renderHistory(records []domain.Record) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		result := r.OutputFile
		if r.Error != "" {
			result = truncate(r.Error, 60)
		}
		rows = append(rows, []string{
			shortID(r.ID),
			string(r.State),
			string(r.Method),
			r.Requester,
			r.URL,
			result,
			r.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"ID", "State", "Method", "Requester", "URL", "Result", "Updated"},
		rows,
		nil,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
