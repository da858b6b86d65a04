package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the MQTT limit on topic length in bytes.
const maxTopicLength = 65535

// ValidatePublishTopic checks that topic can be used as a publish destination.
//
// Publish topics must be non-empty, contain no wildcards and no NUL bytes.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: %d bytes exceeds maximum", ErrInvalidTopic, len(topic))
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q contains wildcard or NUL", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter.
//
// "+" must occupy a whole level and "#" must be the final level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if len(filter) > maxTopicLength || strings.ContainsRune(filter, '\x00') {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, filter)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q has misplaced #", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q has partial-level +", ErrInvalidTopic, filter)
		}
	}
	return nil
}
