package custody

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"BeliefMarket/internal/apperr"
)

// RedisVault keeps account balances in Redis so several service instances
// settle against one shared fund view.
//
// Key schema:
//
//	funds:{account} - string, balance in base units
type RedisVault struct {
	rdb *redis.Client
}

func NewRedisVault(rdb *redis.Client) *RedisVault {
	return &RedisVault{rdb: rdb}
}

func fundsKey(account string) string {
	return fmt.Sprintf("funds:%s", account)
}

// transferScript debits and credits in one atomic step, refusing to
// overdraw the source account.
var transferScript = redis.NewScript(`
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if bal < amt then return -1 end
redis.call('DECRBY', KEYS[1], amt)
redis.call('INCRBY', KEYS[2], amt)
return 0
`)

func (v *RedisVault) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if amount > 1<<62 {
		return apperr.ErrArithmeticOverflow
	}
	res, err := transferScript.Run(ctx, v.rdb,
		[]string{fundsKey(from), fundsKey(to)},
		int64(amount),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: transfer %s -> %s: %w", from, to, err)
	}
	if res < 0 {
		return apperr.ErrInsufficientFunds
	}
	return nil
}

// Balance reads one account's balance.
func (v *RedisVault) Balance(ctx context.Context, account string) (uint64, error) {
	val, err := v.rdb.Get(ctx, fundsKey(account)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: balance %s: %w", account, err)
	}
	return val, nil
}

// Deposit credits an account from outside the ledger, used by the funding
// bridge when value enters the system.
func (v *RedisVault) Deposit(ctx context.Context, account string, amount uint64) error {
	if amount > 1<<62 {
		return apperr.ErrArithmeticOverflow
	}
	if err := v.rdb.IncrBy(ctx, fundsKey(account), int64(amount)).Err(); err != nil {
		return fmt.Errorf("redis: deposit %s: %w", account, err)
	}
	return nil
}
