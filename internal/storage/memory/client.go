package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatcore/internal/storage"
)

// Client: скользящее окно в памяти процесса. Подходит для одного инстанса и для тестов.
type Client struct {
	mu    sync.Mutex
	limit storage.Limit
	now   func() time.Time
	times map[string][]time.Time
}

func New(limit storage.Limit) *Client {
	return &Client{limit: limit, now: time.Now, times: make(map[string][]time.Time)}
}

// WithClock подменяет источник времени (для тестов).
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func (c *Client) Close() error { return nil }

func (c *Client) Allow(ctx context.Context, key string) (bool, error) {
	if c.limit.Disabled() {
		return true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cut := now.Add(-c.limit.Window)
	slice := c.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cut) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= c.limit.Max {
		c.times[key] = slice
		return false, nil
	}
	c.times[key] = append(slice, now)
	return true, nil
}

func (c *Client) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.times, key)
	return nil
}
