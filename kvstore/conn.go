package kvstore

import (
	"context"
	"time"
)

// StartCursor begins an enumeration and marks its end
const StartCursor = "0"

// Conn is one backend connection held by the pool
type Conn interface {
	// Set stores value under key. ttl > 0 expires the key after ttl, otherwise it persists.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Scan returns one page of keys matching a glob pattern and the cursor for the next page.
	// count is a page-size hint.
	Scan(ctx context.Context, cursor, match string, count int) (string, []string, error)
	// GetMany fetches keys in one batch. Missing keys yield nil at their index.
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// DialFunc opens a backend connection. It implements pool.Factory[Conn]:
// Validate pings the connection and Destroy closes it.
type DialFunc func(ctx context.Context) (Conn, error)

// Create implements pool.Factory
func (f DialFunc) Create(ctx context.Context) (Conn, error) { return f(ctx) }

// Destroy implements pool.Factory
func (f DialFunc) Destroy(c Conn) error { return c.Close() }

// Validate implements pool.Factory
func (f DialFunc) Validate(ctx context.Context, c Conn) bool { return c.Ping(ctx) == nil }
