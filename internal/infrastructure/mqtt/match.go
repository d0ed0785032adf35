package mqtt

import (
	"fmt"
	"strings"
)

const (
	levelSeparator = "/"
	singleLevel    = "+"
	multiLevel     = "#"

	// maxTopicLength is the MQTT limit for a UTF-8 encoded topic.
	maxTopicLength = 65535
)

// MatchTopic reports whether a concrete topic matches a subscription pattern.
//
// "+" matches exactly one level, including an empty one. "#" must be the
// last level and matches the parent level and everything below it, so
// "a/#" matches "a", "a/b" and "a/b/c". Matching is case-sensitive.
// Topics starting with "$" are not matched by a leading wildcard.
func MatchTopic(topic, pattern string) bool {
	if topic == "" || pattern == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(pattern, singleLevel) || strings.HasPrefix(pattern, multiLevel)) {
		return false
	}

	levels := strings.Split(topic, levelSeparator)
	filter := strings.Split(pattern, levelSeparator)

	for i, f := range filter {
		if f == multiLevel {
			return i == len(filter)-1
		}
		if i >= len(levels) {
			return false
		}
		if f != singleLevel && f != levels[i] {
			return false
		}
	}
	return len(levels) == len(filter)
}

// ValidatePattern checks a subscription pattern.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return ErrInvalidTopic
	}
	if len(pattern) > maxTopicLength || strings.ContainsRune(pattern, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	filter := strings.Split(pattern, levelSeparator)
	for i, f := range filter {
		switch {
		case f == multiLevel:
			if i != len(filter)-1 {
				return fmt.Errorf("%w: %q has # before the last level", ErrInvalidPattern, pattern)
			}
		case f == singleLevel:
		case strings.ContainsAny(f, singleLevel+multiLevel):
			return fmt.Errorf("%w: %q has a wildcard inside level %q", ErrInvalidPattern, pattern, f)
		}
	}
	return nil
}

// ValidateTopicName checks a topic used for publishing. Wildcards are not
// allowed.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(topic) > maxTopicLength || strings.ContainsAny(topic, singleLevel+multiLevel+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTopicName, topic)
	}
	return nil
}

// ValidateSerial checks that a device serial can be used as a single topic
// level.
func ValidateSerial(serial string) error {
	if serial == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSerial)
	}
	if strings.ContainsAny(serial, levelSeparator+singleLevel+multiLevel+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidSerial, serial)
	}
	return nil
}
