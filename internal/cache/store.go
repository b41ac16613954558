// Package cache holds short-lived shared state: rate-limit windows, hot login sessions
// and the pending registration count.
package cache

import (
	"context"
	"strings"
	"time"
)

// Key namespaces, one per owner.
const (
	NamespaceRateLimit     = "ratelimit"
	NamespaceSessions      = "sessions"
	NamespaceRegistrations = "registrations"
)

// Counter maintains fixed-window counters.
type Counter interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// KV stores opaque values that expire after ttl.
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Store is the full cache surface shared by the server components.
type Store interface {
	Counter
	KV
}

// Key builds a colon separated key under namespace. Empty parts are skipped.
func Key(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
