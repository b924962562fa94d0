// Package ratelimit locks out usernames after repeated failed logins.
package ratelimit

import "context"

// LoginLimiter counts failed logins per key within a fixed window.
//
// Contract:
//   - Allowed reports whether another attempt may be made for key.
//   - RecordFailure counts a failed attempt; the window starts at the first failure.
//   - Reset clears the key after a successful login.
//   - Implementations must be safe for concurrent use.
type LoginLimiter interface {
	Allowed(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Nop never limits. It is used when the limiter is disabled.
type Nop struct{}

func (Nop) Allowed(context.Context, string) (bool, error) { return true, nil }
func (Nop) RecordFailure(context.Context, string) error   { return nil }
func (Nop) Reset(context.Context, string) error           { return nil }

var (
	_ LoginLimiter = Nop{}
	_ LoginLimiter = (*MemoryLimiter)(nil)
	_ LoginLimiter = (*RedisLimiter)(nil)
)
