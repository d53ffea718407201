package token

import (
	"context"
	"strings"
	"sync"
)

// CachingDetailsService remembers the details returned by another DetailsService,
// keyed by lower-cased contract address. Lookups that find nothing are
// remembered too; failures are not.
type CachingDetailsService struct {
	delegate DetailsService

	mu      sync.Mutex
	entries map[string]*Details
}

var _ DetailsService = (*CachingDetailsService)(nil)

func NewCachingDetailsService(delegate DetailsService) *CachingDetailsService {
	return &CachingDetailsService{
		delegate: delegate,
		entries:  make(map[string]*Details),
	}
}

func (c *CachingDetailsService) GetTokenDetails(ctx context.Context, contractAddress string) (*Details, error) {
	key := strings.ToLower(contractAddress)

	c.mu.Lock()
	details, cached := c.entries[key]
	c.mu.Unlock()
	if cached {
		return details, nil
	}

	details, err := c.delegate.GetTokenDetails(ctx, contractAddress)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = details
	c.mu.Unlock()

	return details, nil
}

// Len returns the number of cached contracts.
func (c *CachingDetailsService) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Clear forgets every cached entry.
func (c *CachingDetailsService) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Details)
}
