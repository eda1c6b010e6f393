package jskv

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/kvstore"
)

const hexDigits = "0123456789ABCDEF"

func plainKeyByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '/', b == '_':
		return true
	}
	return false
}

// encodeKey escapes key into the JetStream key alphabet
func encodeKey(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	for i := 0; i < len(key); i++ {
		b := key[i]
		if plainKeyByte(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('=')
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0x0f])
	}
	return sb.String()
}

// decodeKey reverses encodeKey
func decodeKey(encoded string) (string, error) {
	if !strings.Contains(encoded, "=") {
		return encoded, nil
	}
	var sb strings.Builder
	sb.Grow(len(encoded))
	for i := 0; i < len(encoded); i++ {
		if encoded[i] != '=' {
			sb.WriteByte(encoded[i])
			continue
		}
		if i+2 >= len(encoded) {
			return "", fmt.Errorf("%w: truncated escape in key %q", errors.ErrInvalidData, encoded)
		}
		n, err := strconv.ParseUint(encoded[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("%w: bad escape in key %q", errors.ErrInvalidData, encoded)
		}
		sb.WriteByte(byte(n))
		i += 2
	}
	return sb.String(), nil
}

// page returns the count keys starting at the cursor offset and the next cursor.
// keys must already be sorted and filtered.
func page(keys []string, cursor string, count int) (string, []string, error) {
	offset := 0
	if cursor != "" && cursor != kvstore.StartCursor {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return "", nil, errors.WrapInvalid(fmt.Errorf("%w: cursor %q", errors.ErrInvalidData, cursor),
				"jskv", "Scan", "parse cursor")
		}
		offset = n
	}
	if count <= 0 {
		count = 1
	}
	if offset >= len(keys) {
		return kvstore.StartCursor, nil, nil
	}

	if count >= len(keys)-offset {
		return kvstore.StartCursor, keys[offset:], nil
	}
	end := offset + count
	return strconv.Itoa(end), keys[offset:end], nil
}

// snapshot holds the sorted listing of the walk in progress on one connection, so later
// pages of that walk reuse it instead of listing the bucket again
type snapshot struct {
	mu      sync.Mutex
	pattern string
	keys    []string
	live    bool
}

// keysFor returns the listing for pattern. A start cursor, a different pattern or no live
// snapshot (the walk began on another pooled connection) calls list.
func (s *snapshot) keysFor(cursor, pattern string, list func() ([]string, error)) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resuming := cursor != "" && cursor != kvstore.StartCursor
	if resuming && s.live && s.pattern == pattern {
		return s.keys, nil
	}
	keys, err := list()
	if err != nil {
		s.drop()
		return nil, err
	}
	s.pattern, s.keys, s.live = pattern, keys, true
	return keys, nil
}

// release forgets the listing once a walk has finished
func (s *snapshot) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop()
}

func (s *snapshot) drop() {
	s.pattern, s.keys, s.live = "", nil, false
}
