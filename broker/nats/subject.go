package nats

import (
	"fmt"
	"strings"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/topic"
)

// SubjectsForPattern returns the NATS subjects a topic pattern subscribes to
func SubjectsForPattern(pattern string) ([]string, error) {
	if err := topic.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	segments := topic.Split(pattern)
	if err := checkSegments(segments); err != nil {
		return nil, errors.WrapInvalid(err, "nats", "SubjectsForPattern", "map pattern "+pattern)
	}

	mapped := make([]string, len(segments))
	for i, s := range segments {
		switch s {
		case topic.WildcardSingle:
			mapped[i] = "*"
		case topic.WildcardMulti:
			mapped[i] = ">"
		default:
			mapped[i] = s
		}
	}

	subject := strings.Join(mapped, ".")
	last := len(segments) - 1
	if last > 0 && segments[last] == topic.WildcardMulti {
		// "a/#" also matches "a"
		return []string{strings.Join(mapped[:last], "."), subject}, nil
	}
	return []string{subject}, nil
}

// SubjectForTopic maps a concrete topic to its NATS subject
func SubjectForTopic(topicName string) (string, error) {
	if err := topic.ValidateTopic(topicName); err != nil {
		return "", err
	}
	segments := topic.Split(topicName)
	if err := checkSegments(segments); err != nil {
		return "", errors.WrapInvalid(err, "nats", "SubjectForTopic", "map topic "+topicName)
	}
	return strings.Join(segments, "."), nil
}

// TopicForSubject maps an inbound NATS subject back to a topic
func TopicForSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", topic.Separator)
}

func checkSegments(segments []string) error {
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%w: empty segment", errors.ErrInvalidTopic)
		}
		if strings.ContainsAny(s, ".*> \t\r\n") {
			return fmt.Errorf("%w: segment %q contains a reserved subject character", errors.ErrInvalidTopic, s)
		}
	}
	return nil
}
