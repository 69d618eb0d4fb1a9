package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned when the lease expired or another holder owns it.
var ErrLeaseLost = errors.New("broadcast lease lost")

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseKey is the lease key guarding ingestion of a broadcast.
func LeaseKey(broadcastID string) string {
	return "crowdpulse:lease:" + broadcastID
}

// Lease is a SETNX lock with a TTL. Two instances pointed at the same
// broadcast would otherwise answer every viewer twice.
type Lease struct {
	rdb    *goredis.Client
	clock  clockwork.Clock
	key    string
	holder string
	ttl    time.Duration
}

func NewLease(rdb *goredis.Client, clock clockwork.Clock, key, holder string, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, clock: clock, key: key, holder: holder, ttl: ttl}
}

func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return ok, nil
}

// Renew extends the TTL if this instance still holds the lease.
func (l *Lease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.holder, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release deletes the key only if this instance holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.holder).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Acquire polls until the lease is held or ctx is done.
func (l *Lease) Acquire(ctx context.Context, pollInterval time.Duration) error {
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		slog.Info("Broadcast lease held elsewhere, waiting", "key", l.key, "retry_in", pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(pollInterval):
		}
	}
}

// Hold renews the lease every third of its TTL until ctx is done, then
// releases it. It returns ErrLeaseLost if a renewal finds another holder.
func (l *Lease) Hold(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.Release(releaseCtx); err != nil {
				slog.Warn("Failed to release broadcast lease", "key", l.key, "error", err)
			}
			return nil
		case <-ticker.Chan():
			if err := l.Renew(ctx); err != nil {
				if errors.Is(err, ErrLeaseLost) {
					return err
				}
				slog.Warn("Broadcast lease renewal failed", "key", l.key, "error", err)
			}
		}
	}
}
