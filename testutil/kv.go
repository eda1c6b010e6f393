package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/match"

	"github.com/c360/semlink/kvstore"
)

type kvItem struct {
	value   []byte
	expires time.Time
}

// MemoryKV is an in-memory key-value server. Dial opens connections to it, so it can
// back a kvstore.Store through kvstore.DialFunc. Thread-safe for concurrent use.
//
// Scan pages through keys in sorted order using a decimal offset as the cursor and
// returns exactly count keys per page, which makes multi-page walks easy to provoke.
type MemoryKV struct {
	mu         sync.Mutex
	items      map[string]kvItem
	now        func() time.Time
	dials      int
	closes     int
	dialErr    error
	pingErr    error
	overlap    bool
	getManyOps int
}

// NewMemoryKV creates an empty server
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items: make(map[string]kvItem),
		now:   time.Now,
	}
}

// Dial opens a connection. It has the kvstore.DialFunc signature.
func (m *MemoryKV) Dial(_ context.Context) (kvstore.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials++
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	return &memoryKVConn{server: m}, nil
}

// Factory returns a pool factory dialing this server
func (m *MemoryKV) Factory() kvstore.DialFunc {
	return m.Dial
}

// SetClock replaces time.Now for expiry checks
func (m *MemoryKV) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailDials makes Dial fail with err (nil to clear)
func (m *MemoryKV) FailDials(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// FailPings makes Ping fail with err (nil to clear), failing pool validation
func (m *MemoryKV) FailPings(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// OverlapPages makes every scan page after the first repeat the previous page's last key,
// as a store that rehashes mid-iteration may
func (m *MemoryKV) OverlapPages(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlap = on
}

// PutRaw stores bytes verbatim, bypassing JSON encoding
func (m *MemoryKV) PutRaw(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = kvItem{value: value}
}

// Raw returns the stored bytes for key
func (m *MemoryKV) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	return item.value, ok
}

// TTL returns the remaining lifetime of key, 0 if it does not expire
func (m *MemoryKV) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	if !ok || item.expires.IsZero() {
		return 0, ok
	}
	return item.expires.Sub(m.now()), true
}

// Dials returns the number of Dial calls
func (m *MemoryKV) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Closes returns the number of connections closed
func (m *MemoryKV) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// GetManyCalls returns the number of batched fetches served
func (m *MemoryKV) GetManyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getManyOps
}

// lookup returns a live item, evicting it if expired. Caller holds m.mu.
func (m *MemoryKV) lookup(key string) (kvItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return kvItem{}, false
	}
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		return kvItem{}, false
	}
	return item, true
}

type memoryKVConn struct {
	server *MemoryKV
	mu     sync.Mutex
	closed bool
}

var _ kvstore.Conn = (*memoryKVConn)(nil)

func (c *memoryKVConn) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return nil
}

func (c *memoryKVConn) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	m := c.server
	m.mu.Lock()
	defer m.mu.Unlock()

	item := kvItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (c *memoryKVConn) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := c.check(); err != nil {
		return nil, false, err
	}
	m := c.server
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.lookup(key)
	return item.value, ok, nil
}

func (c *memoryKVConn) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *memoryKVConn) Delete(_ context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	m := c.server
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (c *memoryKVConn) Scan(_ context.Context, cursor, pattern string, count int) (string, []string, error) {
	if err := c.check(); err != nil {
		return "", nil, err
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return "", nil, fmt.Errorf("invalid cursor %q", cursor)
	}
	if count <= 0 {
		count = 10
	}

	m := c.server
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.items {
		if _, ok := m.lookup(key); ok && match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := offset
	if m.overlap && start > 0 {
		start--
	}
	if start > len(keys) {
		start = len(keys)
	}
	end := min(offset+count, len(keys))
	page := append([]string(nil), keys[start:end]...)

	if end >= len(keys) {
		return kvstore.StartCursor, page, nil
	}
	return strconv.Itoa(end), page, nil
}

func (c *memoryKVConn) GetMany(_ context.Context, keys []string) ([][]byte, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	m := c.server
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getManyOps++

	values := make([][]byte, len(keys))
	for i, key := range keys {
		if item, ok := m.lookup(key); ok {
			values[i] = item.value
		}
	}
	return values, nil
}

func (c *memoryKVConn) Ping(_ context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.server.pingErr
}

func (c *memoryKVConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.server.mu.Lock()
	c.server.closes++
	c.server.mu.Unlock()
	return nil
}
