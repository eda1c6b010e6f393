package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Normalises(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		max      time.Duration
		expected State
	}{
		{"defaults", time.Second, 30 * time.Second, State{time.Second, 30 * time.Second, time.Second}},
		{"zero base", 0, 10 * time.Second, State{DefaultBase, 10 * time.Second, DefaultBase}},
		{"max below base", 5 * time.Second, time.Second, State{5 * time.Second, 5 * time.Second, 5 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.base, tt.max))
		})
	}
}

func TestNext_DoublesUntilCap(t *testing.T) {
	s := New(time.Second, 30*time.Second)

	expected := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, want := range expected {
		var wait time.Duration
		wait, s = s.Next()
		assert.Equal(t, want, wait, "wait %d", i+1)
		assert.GreaterOrEqual(t, s.Current, s.Base)
		assert.LessOrEqual(t, s.Current, s.Max)
	}
}

func TestNext_MatchesClosedForm(t *testing.T) {
	cases := []struct{ base, max time.Duration }{
		{100 * time.Millisecond, 5 * time.Second},
		{time.Second, 30 * time.Second},
		{3 * time.Millisecond, 7 * time.Millisecond},
	}

	for _, c := range cases {
		s := New(c.base, c.max)
		for k := 1; k <= 40; k++ {
			var wait time.Duration
			wait, s = s.Next()

			want := c.max
			if k-1 < 32 {
				want = min(c.base*time.Duration(1<<(k-1)), c.max)
			}
			assert.Equal(t, want, wait, "base=%v max=%v k=%d", c.base, c.max, k)
		}
	}
}

func TestNext_IsPure(t *testing.T) {
	s := New(time.Second, time.Minute)
	w1, _ := s.Next()
	w2, _ := s.Next()
	assert.Equal(t, w1, w2)
	assert.Equal(t, time.Second, s.Current)
}

func TestReset_AfterFailures(t *testing.T) {
	s := New(time.Second, 30*time.Second)
	for i := 0; i < 5; i++ {
		_, s = s.Next()
	}
	assert.Equal(t, 30*time.Second, s.Current)

	s = s.Reset()
	wait, _ := s.Next()
	assert.Equal(t, time.Second, wait)
}

func TestNext_NoOverflow(t *testing.T) {
	s := State{Base: time.Second, Max: time.Duration(1<<63 - 1), Current: time.Duration(1 << 62)}
	wait, next := s.Next()
	assert.Equal(t, time.Duration(1<<62), wait)
	assert.Equal(t, s.Max, next.Current)
}

func TestZeroValue_IsUsable(t *testing.T) {
	var s State
	wait, next := s.Next()
	assert.Equal(t, DefaultBase, wait)
	assert.Equal(t, DefaultBase, next.Current)
}
