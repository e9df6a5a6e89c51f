// Package credential provides a lazily initialized, process-lifetime secret cache.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/book-expert/narration-service/internal/core"
)

var (
	// ErrSecretNameEmpty indicates that the cache was built without a secret name.
	ErrSecretNameEmpty = errors.New("secret name cannot be empty")
	// ErrFetcherNil indicates that the cache was built without a secret store.
	ErrFetcherNil = errors.New("secret fetcher cannot be nil")
	// ErrSecretEmpty indicates that the secret store returned an empty value.
	ErrSecretEmpty = errors.New("secret value is empty")
)

// Cache fetches a single secret on first use and returns the stored value on every
// later call. A failed fetch leaves the cache unset so the next call tries again.
//
// Concurrent first calls may each fetch; the last store wins, which is harmless
// because the secret store returns the same value to both.
type Cache struct {
	fetcher core.SecretFetcher
	name    string
	value   atomic.Pointer[string]
}

// New creates a Cache for the secret called name.
func New(fetcher core.SecretFetcher, name string) (*Cache, error) {
	if fetcher == nil {
		return nil, ErrFetcherNil
	}

	if name == "" {
		return nil, ErrSecretNameEmpty
	}

	return &Cache{
		fetcher: fetcher,
		name:    name,
	}, nil
}

// Name returns the secret name the cache is bound to.
func (c *Cache) Name() string {
	return c.name
}

// Get returns the cached secret, fetching it if this is the first successful call.
func (c *Cache) Get(ctx context.Context) (string, error) {
	if cached := c.value.Load(); cached != nil {
		return *cached, nil
	}

	secret, err := c.fetcher.Fetch(ctx, c.name)
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret '%s': %w", c.name, err)
	}

	if secret == "" {
		return "", fmt.Errorf("%w: '%s'", ErrSecretEmpty, c.name)
	}

	c.value.Store(&secret)

	return secret, nil
}
