package jobs

import (
	"context"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

// RedisOpt builds the asynq connection for addr, which is either host:port
// or a redis:// URL.
func RedisOpt(addr string) (asynq.RedisConnOpt, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("jobs: empty redis address")
	}
	if strings.Contains(addr, "://") {
		return asynq.ParseRedisURI(addr)
	}
	return asynq.RedisClientOpt{Addr: addr}, nil
}

// enqueueDefaults apply to every ledger task.
var enqueueDefaults = []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}

// Client submits ledger tasks to the default queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq backed client.
func NewClient(redis asynq.RedisConnOpt) (*Client, error) {
	if redis == nil {
		return nil, errors.New("jobs: redis connection required")
	}
	return &Client{client: asynq.NewClient(redis)}, nil
}

// EnqueueIntegrity enqueues a ledger integrity check for the given years.
func (c *Client) EnqueueIntegrity(ctx context.Context, years ...int) (*asynq.TaskInfo, error) {
	task, err := NewIntegrityTask(years...)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, enqueueDefaults...)
}

// EnqueueWarmup enqueues a statement warmup.
func (c *Client) EnqueueWarmup(ctx context.Context, year int, currency string) (*asynq.TaskInfo, error) {
	task, err := NewWarmupTask(year, currency)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, enqueueDefaults...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
