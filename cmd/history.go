package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/history"
	"github.com/example/resy-sniper/internal/migrate"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run's attempts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := migrate.Up(ctx, d); err != nil {
				return err
			}
			repo := history.NewRepo(d)

			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid run id: %w", err)
				}
				run, err := repo.Get(ctx, id)
				if db.IsNotFound(err) {
					return fmt.Errorf("run %s not found", id)
				}
				if err != nil {
					return err
				}
				return writeRun(cmd.OutOrStdout(), run)
			}

			runs, err := repo.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			return writeRuns(cmd.OutOrStdout(), runs)
		},
	}

	c.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return c
}

func writeRuns(w io.Writer, runs []history.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVENUE\tDAY\tPARTY\tRELEASE\tRESULT\tBURSTS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%d\n",
			r.ID, r.VenueID, r.Day.Format("2006-01-02"), r.PartySize,
			r.ReleaseAt.Format(time.RFC3339), result(r), r.Bursts)
	}
	return tw.Flush()
}

func writeRun(w io.Writer, r history.Run) error {
	fmt.Fprintf(w, "run %s venue=%s day=%s party=%d release=%s\n",
		r.ID, r.VenueID, r.Day.Format("2006-01-02"), r.PartySize, r.ReleaseAt.Format(time.RFC3339))
	fmt.Fprintf(w, "result: %s\n", result(r))
	if len(r.Risks) > 0 {
		fmt.Fprintf(w, "risks: %s\n", strings.Join(r.Risks, ", "))
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BURST\tIDX\tSTATE\tREASON\tLATENCY\tERROR")
	for _, a := range r.Attempts {
		latency := "-"
		if !a.StartedAt.IsZero() && !a.FinishedAt.IsZero() {
			latency = a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", a.Burst, a.Index, a.State, a.Reason, latency, a.Error)
	}
	return tw.Flush()
}

func result(r history.Run) string {
	if r.Won {
		return "won " + r.Confirmation
	}
	if len(r.Reasons) == 0 {
		return "lost"
	}
	return "lost: " + r.Reasons[len(r.Reasons)-1]
}
