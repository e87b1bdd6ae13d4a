package storage

import (
	"context"
	"time"
)

// EventLimiter: ограничение частоты событий по ключу (обычно id участника).
// Реализации: redis.Client (общий лимит для нескольких инстансов), memory.Client (без Redis).
type EventLimiter interface {
	// Allow засчитывает одно событие и сообщает, укладывается ли ключ в лимит окна.
	Allow(ctx context.Context, key string) (allowed bool, err error)
	// Reset сбрасывает счётчик ключа (при отключении участника).
	Reset(ctx context.Context, key string) error
	Close() error
}

// Limit: не более Max событий за Window. Max <= 0 отключает ограничение.
type Limit struct {
	Max    int
	Window time.Duration
}

func (l Limit) Disabled() bool { return l.Max <= 0 || l.Window <= 0 }
