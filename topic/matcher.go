package topic

import (
	"fmt"
	"strings"

	"github.com/c360/semlink/errors"
)

// Wildcard and separator tokens
const (
	Separator      = "/"
	WildcardSingle = "+"
	WildcardMulti  = "#"
)

// Split splits a topic or pattern into its segments
func Split(s string) []string {
	return strings.Split(s, Separator)
}

// Matches reports whether the concrete topic matches pattern
func Matches(pattern, topic string) bool {
	return matchSegments(Split(pattern), Split(topic))
}

// matchSegments walks pattern segments left to right against topic segments.
func matchSegments(pattern, topic []string) bool {
	for i, seg := range pattern {
		switch seg {
		case WildcardMulti:
			// Only legal as the final segment; elsewhere it fails the match
			return i == len(pattern)-1
		case WildcardSingle:
			if i >= len(topic) || topic[i] == "" {
				return false
			}
		default:
			if i >= len(topic) || topic[i] != seg {
				return false
			}
		}
	}

	return len(pattern) == len(topic)
}

// ValidatePattern checks that pattern can be registered as a subscription. Empty literal
// segments ("/a", "a//b") are legal, matching the topics ValidateTopic accepts.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return errors.WrapInvalid(errors.ErrInvalidPattern, "topic", "ValidatePattern", "empty pattern")
	}

	segments := Split(pattern)
	for i, seg := range segments {
		switch {
		case seg == WildcardMulti && i != len(segments)-1:
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q must be the last segment in %q", errors.ErrInvalidPattern, WildcardMulti, pattern),
				"topic", "ValidatePattern", "check multi-level wildcard")
		case seg != WildcardMulti && seg != WildcardSingle && strings.ContainsAny(seg, WildcardSingle+WildcardMulti):
			return errors.WrapInvalid(
				fmt.Errorf("%w: wildcard mixed into segment %q", errors.ErrInvalidPattern, seg),
				"topic", "ValidatePattern", "check wildcard placement")
		}
	}

	return nil
}

// ValidateTopic checks that topic is a concrete topic suitable for publishing
func ValidateTopic(topic string) error {
	if topic == "" {
		return errors.WrapInvalid(errors.ErrInvalidTopic, "topic", "ValidateTopic", "empty topic")
	}
	if strings.ContainsAny(topic, WildcardSingle+WildcardMulti) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: wildcards are not allowed in %q", errors.ErrInvalidTopic, topic),
			"topic", "ValidateTopic", "check wildcards")
	}
	return nil
}

// IsWildcard returns true if pattern contains a wildcard segment
func IsWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, WildcardSingle+WildcardMulti)
}
