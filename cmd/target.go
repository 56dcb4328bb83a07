package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/sniper"
)

// targetFlags are the reservation flags shared by venue and snipe.
type targetFlags struct {
	venueID   string
	venueURL  string
	location  string
	date      string
	partySize int

	times  string
	window string
	types  string

	releaseAt   string
	daysOut     int
	releaseTime string
}

func (f *targetFlags) bindVenue(c *cobra.Command) {
	c.Flags().StringVar(&f.venueID, "venue-id", "", "resy venue id")
	c.Flags().StringVarP(&f.venueURL, "url", "u", "", "resy.com venue url or slug (looked up when --venue-id is empty)")
	c.Flags().StringVar(&f.location, "location", "new-york-ny", "resy location code used for venue lookup")
	c.Flags().StringVarP(&f.date, "date", "d", "", "reservation date YYYY-MM-DD")
	c.Flags().IntVarP(&f.partySize, "party-size", "p", 2, "party size")
}

func (f *targetFlags) bindSnipe(c *cobra.Command) {
	f.bindVenue(c)
	c.Flags().StringVarP(&f.times, "times", "t", "", "preferred start times in order (comma-separated HH:MM)")
	c.Flags().StringVar(&f.window, "window", "", "acceptable start times HH:MM-HH:MM (defaults to the span of --times)")
	c.Flags().StringVar(&f.types, "types", "", "optional reservation types (comma-separated)")
	c.Flags().StringVar(&f.releaseAt, "release-at", "", "release instant YYYY-MM-DD HH:MM in the venue timezone")
	c.Flags().IntVar(&f.daysOut, "days-out", 30, "days in advance when slots open (used without --release-at)")
	c.Flags().StringVar(&f.releaseTime, "release-time", "00:00", "local release time HH:MM (used without --release-at)")
}

func (f targetFlags) day(loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", f.date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date (want YYYY-MM-DD)")
	}
	return d, nil
}

// target builds the engine target for venueID.
func (f targetFlags) target(venueID string, loc *time.Location) (sniper.Target, error) {
	day, err := f.day(loc)
	if err != nil {
		return sniper.Target{}, err
	}
	t := sniper.Target{
		VenueID:   venueID,
		Day:       day,
		PartySize: f.partySize,
		Types:     splitCSV(f.types),
	}
	for _, s := range splitCSV(f.times) {
		at, err := clockOn(day, s)
		if err != nil {
			return sniper.Target{}, fmt.Errorf("invalid --times: %w", err)
		}
		t.Preferred = append(t.Preferred, at)
	}

	switch {
	case f.window != "":
		lo, hi, ok := strings.Cut(f.window, "-")
		if !ok {
			return sniper.Target{}, fmt.Errorf("invalid --window (want HH:MM-HH:MM)")
		}
		if t.WindowStart, err = clockOn(day, lo); err != nil {
			return sniper.Target{}, fmt.Errorf("invalid --window: %w", err)
		}
		if t.WindowEnd, err = clockOn(day, hi); err != nil {
			return sniper.Target{}, fmt.Errorf("invalid --window: %w", err)
		}
	case len(t.Preferred) > 0:
		t.WindowStart, t.WindowEnd = t.Preferred[0], t.Preferred[0]
		for _, p := range t.Preferred[1:] {
			if p.Before(t.WindowStart) {
				t.WindowStart = p
			}
			if p.After(t.WindowEnd) {
				t.WindowEnd = p
			}
		}
	default:
		t.WindowStart = day
		t.WindowEnd = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc)
	}
	return t, t.Validate()
}

// release is the instant the slot opens: --release-at, or --days-out days
// before the reservation at --release-time.
func (f targetFlags) release(loc *time.Location) (time.Time, error) {
	if f.releaseAt != "" {
		for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05", time.RFC3339} {
			if t, err := time.ParseInLocation(layout, f.releaseAt, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid --release-at (want YYYY-MM-DD HH:MM)")
	}
	day, err := f.day(loc)
	if err != nil {
		return time.Time{}, err
	}
	at, err := clockOn(day.AddDate(0, 0, -f.daysOut), f.releaseTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --release-time (want HH:MM): %w", err)
	}
	return at, nil
}

// clockOn places a HH:MM or HH:MM:SS wall clock time on day.
func clockOn(day time.Time, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var (
		c   time.Time
		err error
	)
	if strings.Count(s, ":") == 2 {
		c, err = time.Parse("15:04:05", s)
	} else {
		c, err = time.Parse("15:04", s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not HH:MM", s)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), c.Second(), 0, day.Location()), nil
}
