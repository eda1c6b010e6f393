package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/pool"
)

type page struct {
	next    string
	keys    []string
	entries []Entry
}

func (s *Store) scanArgs(cursor, pattern string, count int) (string, string, int) {
	if cursor == "" {
		cursor = StartCursor
	}
	if pattern == "" {
		pattern = "*"
	}
	if count <= 0 {
		count = s.cfg.ScanCount
	}
	return cursor, pattern, count
}

// ScanKeysCursor runs one enumeration step. Start with cursor "0"; the walk is complete
// when the returned cursor is "0" again. count is a page-size hint. On error the input
// cursor comes back unchanged so the step can be retried; check err before next.
func (s *Store) ScanKeysCursor(ctx context.Context, cursor, pattern string, count int) (string, []string, error) {
	if s == nil {
		return cursor, nil, notInitialized("ScanKeysCursor")
	}
	cursor, pattern, count = s.scanArgs(cursor, pattern, count)

	p, err := pool.Do(ctx, s.pool, func(ctx context.Context, c Conn) (page, error) {
		next, keys, err := c.Scan(ctx, cursor, pattern, count)
		if err != nil {
			return page{}, errors.WrapTransient(err, "Store", "ScanKeysCursor", "scan keys")
		}
		return page{next: next, keys: keys}, nil
	})
	if err != nil {
		return cursor, nil, err
	}
	return p.next, p.keys, nil
}

// ScanAndGetJSONCursor runs one enumeration step and fetches the page's values in a
// single batch. A value that is not valid JSON comes back as nil without failing the page.
// Errors return the input cursor, as ScanKeysCursor does.
func (s *Store) ScanAndGetJSONCursor(ctx context.Context, cursor, pattern string, count int) (string, []Entry, error) {
	if s == nil {
		return cursor, nil, notInitialized("ScanAndGetJSONCursor")
	}
	cursor, pattern, count = s.scanArgs(cursor, pattern, count)

	p, err := pool.Do(ctx, s.pool, func(ctx context.Context, c Conn) (page, error) {
		next, keys, err := c.Scan(ctx, cursor, pattern, count)
		if err != nil {
			return page{}, errors.WrapTransient(err, "Store", "ScanAndGetJSONCursor", "scan keys")
		}
		if len(keys) == 0 {
			return page{next: next}, nil
		}

		values, err := c.GetMany(ctx, keys)
		if err != nil {
			return page{}, errors.WrapTransient(err, "Store", "ScanAndGetJSONCursor", "fetch values")
		}

		entries := make([]Entry, len(keys))
		for i, key := range keys {
			entries[i].Key = key
			if i >= len(values) || values[i] == nil {
				continue
			}
			if !json.Valid(values[i]) {
				s.logger.Warn("Discarding undecodable value", "key", key, "bytes", len(values[i]))
				continue
			}
			entries[i].Value = json.RawMessage(values[i])
		}
		return page{next: next, entries: entries}, nil
	})
	if err != nil {
		return cursor, nil, err
	}
	return p.next, p.entries, nil
}

// ScanKeys walks the whole keyspace matching pattern and returns each key once
func (s *Store) ScanKeys(ctx context.Context, pattern string, count int) ([]string, error) {
	if s == nil {
		return nil, notInitialized("ScanKeys")
	}

	seen := make(map[string]struct{})
	var keys []string
	err := s.walk(ctx, "ScanKeys", func(cursor string) (string, error) {
		next, batch, err := s.ScanKeysCursor(ctx, cursor, pattern, count)
		if err != nil {
			return "", err
		}
		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return next, nil
	})
	return keys, err
}

// ScanAndGet walks the whole keyspace matching pattern and returns each entry once
func (s *Store) ScanAndGet(ctx context.Context, pattern string, count int) ([]Entry, error) {
	if s == nil {
		return nil, notInitialized("ScanAndGet")
	}

	seen := make(map[string]struct{})
	var entries []Entry
	err := s.walk(ctx, "ScanAndGet", func(cursor string) (string, error) {
		next, batch, err := s.ScanAndGetJSONCursor(ctx, cursor, pattern, count)
		if err != nil {
			return "", err
		}
		for _, e := range batch {
			if _, dup := seen[e.Key]; dup {
				continue
			}
			seen[e.Key] = struct{}{}
			entries = append(entries, e)
		}
		return next, nil
	})
	return entries, err
}

// walk drives step from the start cursor until it returns "0" again
func (s *Store) walk(ctx context.Context, method string, step func(cursor string) (string, error)) error {
	cursor := StartCursor
	for i := 0; i < s.cfg.MaxScanIterations; i++ {
		if err := ctx.Err(); err != nil {
			return errors.WrapTransient(err, "Store", method, "scan keyspace")
		}
		next, err := step(cursor)
		if err != nil {
			return err
		}
		if next == StartCursor || next == "" {
			return nil
		}
		cursor = next
	}
	return errors.WrapFatal(
		fmt.Errorf("%w: cursor did not return to %q after %d steps", errors.ErrResourceExhausted, StartCursor, s.cfg.MaxScanIterations),
		"Store", method, "scan keyspace")
}
