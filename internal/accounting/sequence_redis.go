package accounting

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const sequenceKeyPrefix = "ledger:seq"

// RedisSequencer allocates reference sequences with INCR. Every value is also
// claimed in the store counter, which stays authoritative: when Redis lags
// behind (flushed or restored) the key is moved up to the stored value.
type RedisSequencer struct {
	client *redis.Client
}

// NewRedisSequencer wraps a redis client.
func NewRedisSequencer(client *redis.Client) *RedisSequencer {
	return &RedisSequencer{client: client}
}

// Next returns the next sequence for typ in period.
func (s *RedisSequencer) Next(ctx context.Context, tx TxRepository, typ TransactionType, period Period) (int, error) {
	if s == nil || s.client == nil {
		return StoreSequencer{}.Next(ctx, tx, typ, period)
	}
	key := fmt.Sprintf("%s:%s:%d", sequenceKeyPrefix, typ, period.ID)
	hint, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	seq, err := tx.ClaimSequence(ctx, typ, period.ID, int(hint))
	if err != nil {
		return 0, err
	}
	if int64(seq) > hint {
		// Only ever raise the key; a concurrent INCR may already be past seq.
		if err := raiseKey.Run(ctx, s.client, []string{key}, seq).Err(); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

var raiseKey = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local target = tonumber(ARGV[1])
if target > current then
  redis.call("SET", KEYS[1], target)
  return target
end
return current
`)
