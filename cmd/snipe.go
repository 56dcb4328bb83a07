package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/credentials"
	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/history"
	"github.com/example/resy-sniper/internal/migrate"
	"github.com/example/resy-sniper/internal/sniper"
	"github.com/example/resy-sniper/internal/web"
)

var errLost = errors.New("reservation not secured")

func newSnipeCmd() *cobra.Command {
	var (
		f         targetFlags
		watchAddr string
		noRecord  bool
	)

	c := &cobra.Command{
		Use:   "snipe",
		Short: "Wait for a slot release and claim the best matching slot",
		Long: `Waits for the release instant, resolves the best matching slot and fires
bursts of concurrent booking attempts until one succeeds or the budget runs out.

A rejected auth token is refreshed once per run by re-reading the credentials
file, so a token saved with "resysnipe load" while the run waits is picked up.
A token given only through RESY_AUTH_TOKEN cannot be refreshed: store it with
"resysnipe load" when the run may outlive it.`,
		Example: `  resysnipe snipe --url https://resy.com/cities/ny/venues/carbone \
    --date 2026-11-19 --party-size 2 --times 19:00,19:30 --window 18:00-21:00 \
    --days-out 30 --release-time 10:00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lookupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			client, v, loc, err := venueClient(lookupCtx, cfg, creds, f)
			cancel()
			if err != nil {
				return err
			}

			target, err := f.target(v.ID, loc)
			if err != nil {
				return err
			}
			release, err := f.release(loc)
			if err != nil {
				return err
			}
			engineCfg, err := cfg.Engine()
			if err != nil {
				return err
			}
			auth := credentials.NewProvider(store, cfg.AuthToken)
			if !auth.Refreshable() {
				log.Printf(`credentials: auth token from RESY_AUTH_TOKEN cannot be refreshed; run "resysnipe load" to store a refreshable one`)
			}
			engine, err := sniper.New(client, auth, engineCfg, sniper.WithLogger(engineLogger(os.Stderr)))
			if err != nil {
				return err
			}

			var feed *web.Feed
			if watchAddr == "" {
				watchAddr = cfg.WatchAddr
			}
			if watchAddr != "" {
				feed = web.NewFeed()
				webCtx, stopWeb := context.WithCancel(ctx)
				defer stopWeb()
				go func() {
					if err := web.Start(webCtx, watchAddr, feed.Routes()); err != nil {
						log.Printf("web: %v", err)
					}
				}()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sniping venue=%s day=%s party=%d window=%s-%s release=%s\n",
				target.VenueID, target.DayString(), target.PartySize,
				target.WindowStart.Format("15:04"), target.WindowEnd.Format("15:04"),
				release.Format(time.RFC3339))

			started := time.Now()
			outcome, runErr := engine.Run(ctx, target, release, func(ev sniper.Event) {
				render(out, ev)
				if feed != nil {
					feed.Publish(ev)
				}
			})
			finished := time.Now()

			if !noRecord && cfg.DatabaseURL != "" {
				run := history.FromOutcome(target, release, outcome, started, finished)
				if err := recordRun(cfg, run); err != nil {
					log.Printf("history: record run %s: %v", run.ID, err)
				} else {
					fmt.Fprintf(out, "recorded run %s\n", run.ID)
				}
			}

			if runErr != nil {
				return runErr
			}
			if !outcome.Won {
				return errLost
			}
			fmt.Fprintf(out, "confirmation: %s\n", outcome.Confirmation)
			return nil
		},
	}

	f.bindSnipe(c)
	c.Flags().StringVar(&watchAddr, "watch-addr", "", "serve live progress on this address (defaults to WATCH_ADDR)")
	c.Flags().BoolVar(&noRecord, "no-record", false, "do not record the run even when DATABASE_URL is set")
	_ = c.MarkFlagRequired("date")
	return c
}

// engineLogger timestamps engine messages, which carry their own component
// prefix.
func engineLogger(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

// recordRun writes run with a fresh context so a cancelled snipe is still
// recorded.
func recordRun(cfg config.Config, run history.Run) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := migrate.Up(ctx, d); err != nil {
		return err
	}
	return history.NewRepo(d).Record(ctx, run)
}
