package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chatcore/internal/storage"
)

// KeyPrefix задаёт ключи счётчиков вида ws_rate:{key}.
const KeyPrefix = "ws_rate:"

// Client: фиксированное окно на INCR+EXPIRE. Лимит общий для всех инстансов,
// подключённых к одному Redis.
type Client struct {
	cli   *redis.Client
	limit storage.Limit
}

func New(ctx context.Context, url string, limit storage.Limit) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli, limit: limit}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Allow увеличивает ws_rate:{key}; первый инкремент в окне ставит TTL.
func (c *Client) Allow(ctx context.Context, key string) (bool, error) {
	if c.limit.Disabled() {
		return true, nil
	}
	k := KeyPrefix + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := c.cli.Expire(ctx, k, c.limit.Window).Err(); err != nil {
			return true, fmt.Errorf("redis expire %s: %w", k, err)
		}
	}
	return n <= int64(c.limit.Max), nil
}

func (c *Client) Reset(ctx context.Context, key string) error {
	return c.cli.Del(ctx, KeyPrefix+key).Err()
}

// FlushDB очищает текущую БД Redis (для тестов).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
