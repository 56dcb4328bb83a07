package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/credentials"
	"github.com/example/resy-sniper/internal/resy"
	"github.com/example/resy-sniper/internal/sniper"
)

func newVenueCmd() *cobra.Command {
	var f targetFlags

	c := &cobra.Command{
		Use:   "venue",
		Short: "Look up a venue and list its open slots for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			client, v, loc, err := venueClient(ctx, cfg, creds, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if v.Name != "" {
				fmt.Fprintf(out, "venue id=%s name=%q neighborhood=%q timezone=%s\n", v.ID, v.Name, v.Neighborhood, loc)
			}
			if f.date == "" {
				return nil
			}

			day, err := f.day(loc)
			if err != nil {
				return err
			}
			slots, err := client.FindSlots(ctx, v.ID, day.Format("2006-01-02"), f.partySize)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Fprintf(out, "no open slots on %s for %d\n", f.date, f.partySize)
				return nil
			}
			return writeSlots(out, slots, loc)
		},
	}

	f.bindVenue(c)
	return c
}

// venueClient looks up the venue named by --venue-id or --url and returns
// a client reading slot times in the venue's timezone.
func venueClient(ctx context.Context, cfg config.Config, creds credentials.Credentials, f targetFlags) (*resy.Client, resy.Venue, *time.Location, error) {
	client, err := newClient(cfg, creds)
	if err != nil {
		return nil, resy.Venue{}, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, resy.Venue{}, nil, err
	}
	if f.venueID != "" {
		return client, resy.Venue{ID: f.venueID}, loc, nil
	}
	if f.venueURL == "" {
		return nil, resy.Venue{}, nil, errors.New("one of --venue-id or --url is required")
	}
	slug, err := venueSlug(f.venueURL)
	if err != nil {
		return nil, resy.Venue{}, nil, err
	}
	v, err := client.Venue(ctx, slug, f.location)
	if err != nil {
		return nil, resy.Venue{}, nil, err
	}
	if v.TimeZone == "" || v.TimeZone == loc.String() {
		return client, v, loc, nil
	}
	vl, err := time.LoadLocation(v.TimeZone)
	if err != nil {
		return client, v, loc, nil
	}
	client, err = newClient(cfg, creds, resy.WithLocation(vl))
	return client, v, vl, err
}

func writeSlots(w io.Writer, slots []sniper.Slot, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTART\tEND\tMIN\tMAX\tQTY\tTABLE\tTOKEN")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Type, s.Start.In(loc).Format("15:04"), s.End.In(loc).Format("15:04"),
			s.MinSize, s.MaxSize, s.Quantity, s.TableID, shorten(s.Token, 24))
	}
	return tw.Flush()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
