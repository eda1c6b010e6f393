package jskv

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/kvstore"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"plain-key_01", "plain-key_01"},
		{"sensor:42", "sensor=3A42"},
		{"a.b", "a=2Eb"},
		{"tank/level", "tank/level"},
		{"x=y", "x=3Dy"},
		{"spaced out", "spaced=20out"},
		{"é", "=C3=A9"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := encodeKey(tt.key)
			assert.Equal(t, tt.want, got)

			back, err := decodeKey(got)
			require.NoError(t, err)
			assert.Equal(t, tt.key, back)
		})
	}
}

func TestDecodeKey_Malformed(t *testing.T) {
	for _, encoded := range []string{"abc=", "abc=4", "abc=ZZ"} {
		_, err := decodeKey(encoded)
		assert.ErrorIs(t, err, errors.ErrInvalidData, encoded)
	}
}

func TestPage(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name     string
		cursor   string
		count    int
		wantNext string
		wantKeys []string
	}{
		{"first page", kvstore.StartCursor, 2, "2", []string{"a", "b"}},
		{"middle page", "2", 2, "4", []string{"c", "d"}},
		{"last page", "4", 2, kvstore.StartCursor, []string{"e"}},
		{"exact end", "3", 2, kvstore.StartCursor, []string{"d", "e"}},
		{"empty cursor starts", "", 10, kvstore.StartCursor, keys},
		{"stale cursor", "9", 2, kvstore.StartCursor, nil},
		{"zero count", "0", 0, "1", []string{"a"}},
		{"huge count from start", kvstore.StartCursor, math.MaxInt, kvstore.StartCursor, keys},
		{"huge count mid walk", "2", math.MaxInt, kvstore.StartCursor, []string{"c", "d", "e"}},
		{"huge cursor", strconv.Itoa(math.MaxInt), 2, kvstore.StartCursor, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, got, err := page(keys, tt.cursor, tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantKeys, got)
		})
	}
}

func TestPage_BadCursor(t *testing.T) {
	for _, cursor := range []string{"x", "-1"} {
		_, _, err := page([]string{"a"}, cursor, 1)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestPage_Empty(t *testing.T) {
	next, keys, err := page(nil, kvstore.StartCursor, 10)
	require.NoError(t, err)
	assert.Equal(t, kvstore.StartCursor, next)
	assert.Empty(t, keys)
}

func TestSnapshot_ReusedWithinWalk(t *testing.T) {
	var s snapshot
	lists := 0
	list := func(keys ...string) func() ([]string, error) {
		return func() ([]string, error) {
			lists++
			return keys, nil
		}
	}

	keys, err := s.keysFor(kvstore.StartCursor, "a*", list("a1", "a2", "a3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, keys)

	// later pages of the same walk do not list again, even if the bucket changed
	keys, err = s.keysFor("2", "a*", list("a1", "a2", "a3", "a4"))
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Equal(t, 1, lists)

	// another pattern or a fresh walk lists again
	_, err = s.keysFor("2", "b*", list("b1"))
	require.NoError(t, err)
	_, err = s.keysFor(kvstore.StartCursor, "b*", list("b1"))
	require.NoError(t, err)
	assert.Equal(t, 3, lists)

	s.release()
	_, err = s.keysFor("1", "b*", list("b1"))
	require.NoError(t, err)
	assert.Equal(t, 4, lists, "released snapshot is not reused")
}

func TestSnapshot_ListErrorDropsListing(t *testing.T) {
	var s snapshot
	_, err := s.keysFor(kvstore.StartCursor, "*", func() ([]string, error) { return []string{"a"}, nil })
	require.NoError(t, err)

	_, err = s.keysFor(kvstore.StartCursor, "*", func() ([]string, error) { return nil, assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	calls := 0
	_, err = s.keysFor("1", "*", func() ([]string, error) { calls++; return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
