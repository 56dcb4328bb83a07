package credentials

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/example/resy-sniper/internal/sniper"
)

// Provider hands the engine the user's auth token. An override, usually
// RESY_AUTH_TOKEN, is used until the remote rejects it.
type Provider struct {
	store *Store

	mu    sync.Mutex
	token string
}

var _ sniper.AuthSource = (*Provider)(nil)

// ErrNotRefreshable is returned by Refresh when the token came from the
// environment and there is no credentials store to read a newer one from.
var ErrNotRefreshable = errors.New(`credentials: auth token cannot be refreshed without a credentials store (run "resysnipe load" to store a refreshable token)`)

func NewProvider(store *Store, override string) *Provider {
	return &Provider{store: store, token: override}
}

// Refreshable reports whether Refresh can pick up a newer token.
func (p *Provider) Refreshable() bool {
	return p.store != nil
}

func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	if p.store == nil {
		return "", errors.New("credentials: no auth token configured")
	}
	c, err := p.store.Load()
	if err != nil {
		return "", err
	}
	if c.AuthToken == "" {
		return "", errors.New("credentials: stored auth token is empty")
	}
	p.token = c.AuthToken
	return p.token, nil
}

// Refresh re-reads the store, picking up a token saved by `resysnipe load`
// while the run was waiting. Without a store it fails with ErrNotRefreshable.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return "", ErrNotRefreshable
	}
	c, err := p.store.Load()
	if err != nil {
		return "", err
	}
	if c.AuthToken == "" {
		return "", errors.New("credentials: stored auth token is empty")
	}
	if c.AuthToken == p.token {
		log.Printf("credentials: stored auth token unchanged (%s)", Mask(c.AuthToken))
	}
	p.token = c.AuthToken
	return p.token, nil
}
