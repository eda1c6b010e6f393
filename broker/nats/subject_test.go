package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semlink/errors"
)

func TestSubjectsForPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
		wantErr bool
	}{
		{"a/b/c", []string{"a.b.c"}, false},
		{"a/+/c", []string{"a.*.c"}, false},
		{"a/#", []string{"a", "a.>"}, false},
		{"a/+/#", []string{"a.*", "a.*.>"}, false},
		{"#", []string{">"}, false},
		{"+", []string{"*"}, false},
		{"a/#/c", nil, true},
		{"a.b/c", nil, true},
		{"a/b c", nil, true},
		{"a/>", nil, true},
		{"", nil, true},
		{"/a", nil, true},
		{"a//b", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := SubjectsForPattern(tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubjectForTopic(t *testing.T) {
	got, err := SubjectForTopic("sensors/1/temp")
	require.NoError(t, err)
	assert.Equal(t, "sensors.1.temp", got)

	_, err = SubjectForTopic("sensors/+/temp")
	assert.ErrorIs(t, err, errors.ErrInvalidTopic)

	_, err = SubjectForTopic("sensors/1.5")
	assert.ErrorIs(t, err, errors.ErrInvalidTopic)

	_, err = SubjectForTopic("a//b")
	assert.ErrorIs(t, err, errors.ErrInvalidTopic)
}

func TestTopicForSubject(t *testing.T) {
	assert.Equal(t, "sensors/1/temp", TopicForSubject("sensors.1.temp"))
	assert.Equal(t, "a", TopicForSubject("a"))
}

func TestConn_OwnsLowestMatchingPattern(t *testing.T) {
	c := &conn{patterns: []string{"a/#", "a/+", "a/b", "z/#"}}

	assert.True(t, c.owns("a/#", "a/b"))
	assert.False(t, c.owns("a/+", "a/b"))
	assert.False(t, c.owns("a/b", "a/b"))
	assert.True(t, c.owns("z/#", "z"))
	assert.False(t, c.owns("a/#", "q"))
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), errors.ErrMissingConfig)
	assert.NoError(t, Config{URL: "nats://localhost:4222"}.Validate())
}
