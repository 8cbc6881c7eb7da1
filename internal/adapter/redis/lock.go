// Package redis provides the distributed run lock that keeps sync passes on
// different hosts from overlapping.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	// LockKey is the key the sync pass lock is held under.
	LockKey = "ocpp-sync:pass-lock"
)

// releaseScript deletes the lock only when it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewClient returns a configured go-redis client and validates the connection with PING.
func NewClient(ctx context.Context, addr, password string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Locker implements pipeline.Locker with SET NX PX and a token-checked release.
type Locker struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewLocker creates a lock on key that expires after ttl if never released.
func NewLocker(client *goredis.Client, key string, ttl time.Duration, logger *slog.Logger) *Locker {
	return &Locker{client: client, key: key, ttl: ttl, logger: logger}
}

// TryLock attempts to take the lock without waiting. When acquired is false
// another holder has it and unlock is nil.
func (l *Locker) TryLock(ctx context.Context) (unlock func(context.Context) error, acquired bool, err error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock = func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		if n == 0 {
			l.logger.Warn("lock expired before release", "key", l.key, "ttl", l.ttl)
		}
		return nil
	}
	return unlock, true, nil
}
