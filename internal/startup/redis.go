package startup

import (
	"context"
	"time"

	"github.com/chatcore/internal/logger"
	"github.com/chatcore/internal/storage"
	"github.com/chatcore/internal/storage/memory"
	redisstorage "github.com/chatcore/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
// logPrefix добавляется к сообщениям лога (например "chat: ").
func ConnectRedisWithRetry(ctx context.Context, redisURL string, limit storage.Limit, maxWait time.Duration, logPrefix string) (*redisstorage.Client, error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := redisstorage.New(attemptCtx, redisURL, limit)
		cancel()
		if err == nil {
			return client, nil
		}
		if time.Now().After(deadline) {
			logger.Errorf("%sredis (gave up after %v): %v", logPrefix, maxWait, err)
			return nil, err
		}
		logger.Errorf("%sredis connect failed, retry in %v: %v", logPrefix, backoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// EventLimiter выбирает реализацию лимитера: Redis, если задан URL, иначе память процесса.
func EventLimiter(ctx context.Context, redisURL string, limit storage.Limit, maxWait time.Duration) (storage.EventLimiter, error) {
	if redisURL == "" {
		logger.Info("chat: event limiter in memory (REDIS_URL not set)")
		return memory.New(limit), nil
	}
	return ConnectRedisWithRetry(ctx, redisURL, limit, maxWait, "chat: ")
}
