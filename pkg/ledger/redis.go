package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/fleetdrain/pkg/types"
	"github.com/redis/go-redis/v9"
)

const fieldClaimed = "claimed"

// claimScript creates the hash only when the claimed field is absent.
// ARGV: claimed_at, ttl in milliseconds (0 disables expiry)
var claimScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'claimed', '1') == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'claimed_at', ARGV[1])
if tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// setFlagScript sets a flag only on an existing (claimed) hash
var setFlagScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'claimed') == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], '1')
return 1
`)

// RedisOptions configures a RedisLedger
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL, when positive, expires a record that long after its claim
	TTL time.Duration
}

// RedisLedger stores one hash per instance under <prefix>:instances:<id>.
// The claim is HSETNX on the "claimed" field, run in a script together with
// the optional expiry; each flag is its own field.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLedger connects to Redis and verifies the connection
func NewRedisLedger(ctx context.Context, opts RedisOptions) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return NewRedisLedgerWithClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisLedgerWithClient wraps an existing client
func NewRedisLedgerWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "fleetdrain"
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisLedger) key(id string) string {
	return r.prefix + ":instances:" + id
}

func (r *RedisLedger) ClaimIfAbsent(ctx context.Context, id string) (bool, error) {
	if err := checkID("ledger claim", id); err != nil {
		return false, err
	}

	won, err := claimScript.Run(ctx, r.client, []string{r.key(id)},
		time.Now().UTC().Format(time.RFC3339Nano),
		r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, transient("ledger claim", err)
	}
	return won == 1, nil
}

func (r *RedisLedger) GetFlag(ctx context.Context, id string, flag types.Flag) (bool, error) {
	if err := checkFlag("ledger get flag", id, flag); err != nil {
		return false, err
	}

	v, err := r.client.HGet(ctx, r.key(id), string(flag)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, transient("ledger get flag", err)
	}
	return v == "1", nil
}

func (r *RedisLedger) SetFlag(ctx context.Context, id string, flag types.Flag) error {
	if err := checkFlag("ledger set flag", id, flag); err != nil {
		return err
	}

	n, err := setFlagScript.Run(ctx, r.client, []string{r.key(id)}, string(flag)).Int()
	if err != nil {
		return transient("ledger set flag", err)
	}
	if n == 0 {
		return notClaimed("ledger set flag", id)
	}
	return nil
}

func (r *RedisLedger) Progress(ctx context.Context, id string) (types.DrainProgress, error) {
	if err := checkID("ledger progress", id); err != nil {
		return types.DrainProgress{}, err
	}

	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return types.DrainProgress{}, transient("ledger progress", err)
	}
	return progressFromHash(fields), nil
}

func progressFromHash(fields map[string]string) types.DrainProgress {
	var p types.DrainProgress
	if fields[fieldClaimed] != "1" {
		return p
	}
	p.Claimed = true
	for _, f := range types.Flags {
		if fields[string(f)] == "1" {
			p = p.WithFlag(f)
		}
	}
	if ts, ok := fields["claimed_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.ClaimedAt = t
		}
	}
	return p
}

func (r *RedisLedger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLedger) Close() error {
	return r.client.Close()
}
