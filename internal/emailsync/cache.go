package emailsync

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/venuedesk/internal/gmail"
)

// Fetcher retrieves a fully hydrated message.
type Fetcher interface {
	GetFull(ctx context.Context, id string) (*gmail.FullMessage, error)
}

// MessageCache holds hydrated messages by id. Concurrent fetches of the
// same id share one remote call, and a stored id is never fetched again.
// Failed fetches are not stored.
type MessageCache struct {
	fetcher Fetcher

	mu    sync.RWMutex
	items map[string]*gmail.FullMessage
	group singleflight.Group
}

// NewMessageCache creates an empty cache in front of fetcher.
func NewMessageCache(fetcher Fetcher) *MessageCache {
	return &MessageCache{
		fetcher: fetcher,
		items:   make(map[string]*gmail.FullMessage),
	}
}

// Get returns a stored message without fetching.
func (c *MessageCache) Get(id string) (*gmail.FullMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[id]
	return m, ok
}

// Fetch returns the message for id, calling the fetcher at most once per id.
func (c *MessageCache) Fetch(ctx context.Context, id string) (*gmail.FullMessage, error) {
	if m, ok := c.Get(id); ok {
		return m, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		if m, ok := c.Get(id); ok {
			return m, nil
		}
		m, err := c.fetcher.GetFull(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[id] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gmail.FullMessage), nil
}

// Forget drops ids, typically once they are persisted elsewhere.
func (c *MessageCache) Forget(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.items, id)
	}
}

// Len returns the number of stored messages.
func (c *MessageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
