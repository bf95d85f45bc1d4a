package positions

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"BeliefMarket/internal/apperr"
)

// RedisLedger stores share balances in Redis hashes so several service
// instances can share one position view.
//
// Key schema:
//
//	positions:{marketKey}:{user} - hash, field "outcome:{i}" -> share count
type RedisLedger struct {
	rdb *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func positionKey(marketKey, user string) string {
	return fmt.Sprintf("positions:%s:%s", marketKey, user)
}

func (l *RedisLedger) Balance(ctx context.Context, user, marketKey string, outcome uint8) (uint64, error) {
	val, err := l.rdb.HGet(ctx, positionKey(marketKey, user), fieldFor(outcome)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: position balance %s: %w", user, err)
	}
	return val, nil
}

func (l *RedisLedger) Add(ctx context.Context, user, marketKey string, outcome uint8, shares uint64) error {
	if shares > 1<<62 {
		return apperr.ErrArithmeticOverflow
	}
	err := l.rdb.HIncrBy(ctx, positionKey(marketKey, user), fieldFor(outcome), int64(shares)).Err()
	if err != nil {
		return fmt.Errorf("redis: add position %s: %w", user, err)
	}
	return nil
}

// Sub decrements atomically and refuses to go negative. A plain HIncrBy with
// a negative delta could race another decrement past zero, so the
// check-and-decrement runs as a single Lua script.
var subScript = redis.NewScript(`
local bal = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local dec = tonumber(ARGV[2])
if bal < dec then return -1 end
return redis.call('HINCRBY', KEYS[1], ARGV[1], -dec)
`)

func (l *RedisLedger) Sub(ctx context.Context, user, marketKey string, outcome uint8, shares uint64) error {
	if shares > 1<<62 {
		return apperr.ErrArithmeticOverflow
	}
	res, err := subScript.Run(ctx, l.rdb,
		[]string{positionKey(marketKey, user)},
		fieldFor(outcome), int64(shares),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: sub position %s: %w", user, err)
	}
	if res < 0 {
		return apperr.ErrInsufficientShares
	}
	return nil
}
