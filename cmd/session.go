package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/credentials"
	"github.com/example/resy-sniper/internal/resy"
)

var errNoCredentials = errors.New("no Resy credentials: run `resysnipe load` or set RESY_API_KEY and RESY_AUTH_TOKEN")

// loadCredentials reads the sealed store when one is configured and lets
// RESY_API_KEY/RESY_AUTH_TOKEN override it. The store is nil when no keys
// are configured.
func loadCredentials(cfg config.Config) (*credentials.Store, credentials.Credentials, error) {
	var c credentials.Credentials
	store, err := cfg.Store()
	switch {
	case errors.Is(err, credentials.ErrNoKeys):
		store = nil
	case err != nil:
		return nil, c, err
	default:
		c, err = store.Load()
		if err != nil && !errors.Is(err, credentials.ErrNotFound) {
			return nil, c, err
		}
	}
	if cfg.APIKey != "" {
		c.APIKey = cfg.APIKey
	}
	if cfg.AuthToken != "" {
		c.AuthToken = cfg.AuthToken
	}
	return store, c, nil
}

// newClient builds a client for c. opts apply after the configured ones.
func newClient(cfg config.Config, c credentials.Credentials, opts ...resy.Option) (*resy.Client, error) {
	if !c.HasResy() {
		return nil, errNoCredentials
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	base := []resy.Option{
		resy.WithBaseURL(cfg.BaseURL),
		resy.WithLocation(loc),
		resy.WithPollRate(cfg.PollRate, cfg.PollBurst),
		resy.WithPaymentMethod(c.PaymentMethodID),
	}
	return resy.New(resy.Credentials{APIKey: c.APIKey, AuthToken: c.AuthToken}, append(base, opts...)...), nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// venueSlug extracts the slug from a resy.com venue URL such as
// https://resy.com/cities/ny/venues/carbone?date=2026-11-19. A bare slug is
// returned as is.
func venueSlug(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("venue url required")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for i, p := range parts {
		if p == "venues" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("no venue in url %q", raw)
}
