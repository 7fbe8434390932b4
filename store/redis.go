package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const (
	lockTTL        = 2 * time.Minute
	lockRetryDelay = 50 * time.Millisecond
)

// unlockScript deletes the lock only when it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared across processes through Redis.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: lockTTL}
}

// Lock retries SET NX until it succeeds or ctx is done. The returned unlock
// releases the key with a background context so cancellation of ctx does not
// leave the key held until expiry.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + "lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "store: acquire lock %s", key)
		}
		if ok {
			return func() {
				_ = unlockScript.Run(context.Background(), l.rdb, []string{k}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "store: wait for lock %s", key)
		case <-time.After(lockRetryDelay):
		}
	}
}

// RedisLedger is a ReminderLedger backed by SET NX with expiry.
type RedisLedger struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisLedger(rdb redis.UniversalClient, prefix string) *RedisLedger {
	return &RedisLedger{rdb: rdb, prefix: prefix}
}

func (l *RedisLedger) MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "store: mark %s", key)
	}
	return ok, nil
}

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "store: ping redis")
	}
	return rdb, nil
}
