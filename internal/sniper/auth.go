package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// credential is the auth token shared by resolution and claiming within one
// run. It is refreshed at most once per run.
type credential struct {
	src AuthSource

	mu        sync.Mutex
	token     string
	loaded    bool
	refreshed bool
}

func newCredential(src AuthSource) *credential {
	return &credential{src: src}
}

// get returns the current token, loading it on first use. A nil credential
// yields an empty token so the remote falls back to its own.
func (c *credential) get(ctx context.Context) (string, error) {
	if c == nil || c.src == nil {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.token, nil
	}
	tok, err := c.src.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	c.token, c.loaded = tok, true
	return tok, nil
}

// refresh replaces a rejected token. The second call in a run fails with
// ErrAuthFailure since the refreshed token was rejected too.
func (c *credential) refresh(ctx context.Context) (string, error) {
	if c == nil || c.src == nil {
		return "", fmt.Errorf("%w: no auth source to refresh from", ErrAuthFailure)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshed {
		return "", fmt.Errorf("%w: refreshed token rejected", ErrAuthFailure)
	}
	c.refreshed = true
	tok, err := c.src.Refresh(ctx)
	if err != nil {
		return "", errors.Join(ErrAuthFailure, err)
	}
	c.token, c.loaded = tok, true
	return tok, nil
}
