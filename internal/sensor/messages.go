package sensor

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DefaultTopicPrefix is the root of every topic the daemon publishes.
const DefaultTopicPrefix = "graylogic/sensors/mithermometer"

// Message is one outbound bus message.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Reading returns the state topic of a device: <prefix>/<name>.
func (t Topics) Reading(name string) string {
	return t.prefix() + "/" + name
}

// Availability returns <prefix>/<name>/availability.
func (t Topics) Availability(name string) string {
	return t.Reading(name) + "/availability"
}

// Health returns <prefix>/health.
func (t Topics) Health() string {
	return t.prefix() + "/health"
}

// readingMessage encodes r as a single JSON object on the device topic.
func (t Topics) readingMessage(name string, r Reading) (Message, error) {
	for attr, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Message{}, fmt.Errorf("%w: %s = %v", ErrInvalidReading, attr, v)
		}
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return Message{Topic: t.Reading(name), Payload: payload}, nil
}

// availabilityMessage is retained so late subscribers see the current state.
func (t Topics) availabilityMessage(name string, state Availability) Message {
	return Message{
		Topic:    t.Availability(name),
		Payload:  []byte(state.String()),
		Retained: true,
	}
}
