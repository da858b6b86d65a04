package sensor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// DefaultDiscoveryPrefix is Home Assistant's default discovery root.
const DefaultDiscoveryPrefix = "homeassistant"

const (
	manufacturer = "Xiaomi"
	model        = "LYWSD(CGQ/01ZM)"
)

// deviceNamespace seeds DeviceID.
var deviceNamespace = uuid.MustParse("6f1d3c2a-5b7e-4c1f-9a0d-8e2b4f6a7c91")

var units = map[string]string{
	AttrTemperature: "°C",
	AttrHumidity:    "%",
	AttrBattery:     "%",
}

// Prefixes holds the two topic roots discovery needs.
type Prefixes struct {
	Topics    Topics
	Discovery string
}

func (p Prefixes) discovery() string {
	if p.Discovery == "" {
		return DefaultDiscoveryPrefix
	}
	return strings.TrimSuffix(p.Discovery, "/")
}

// StatusTopic is where the discovery consumer announces "online" after a
// restart: <discovery_prefix>/status.
func (p Prefixes) StatusTopic() string {
	return p.discovery() + "/status"
}

// DiscoveryDevice groups every attribute entity under one physical device.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

// DiscoveryDescriptor is the retained config for one attribute entity.
type DiscoveryDescriptor struct {
	// ConfigTopic is <discovery_prefix>/sensor/<node_id>/<attr>/config.
	ConfigTopic string `json:"-"`

	UniqueID            string          `json:"unique_id"`
	Name                string          `json:"name"`
	StateTopic          string          `json:"state_topic"`
	ValueTemplate       string          `json:"value_template"`
	AvailabilityTopic   string          `json:"availability_topic"`
	PayloadAvailable    string          `json:"payload_available"`
	PayloadNotAvailable string          `json:"payload_not_available"`
	DeviceClass         string          `json:"device_class"`
	StateClass          string          `json:"state_class"`
	UnitOfMeasurement   string          `json:"unit_of_measurement"`
	Device              DiscoveryDevice `json:"device"`
}

// Message encodes the descriptor as a retained config message.
func (d DiscoveryDescriptor) Message() (Message, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return Message{}, fmt.Errorf("encoding discovery for %s: %w", d.UniqueID, err)
	}
	return Message{Topic: d.ConfigTopic, Payload: payload, Retained: true}, nil
}

// BuildDiscovery returns one descriptor per monitored attribute.
// The result depends only on its arguments.
func BuildDiscovery(p Prefixes, name, mac string) []DiscoveryDescriptor {
	node := NodeID(name, mac)
	dev := DiscoveryDevice{
		Identifiers:  []string{mac, DeviceID(mac)},
		Manufacturer: manufacturer,
		Model:        model,
		Name:         name,
	}

	descriptors := make([]DiscoveryDescriptor, 0, len(Attributes))
	for _, attr := range Attributes {
		descriptors = append(descriptors, DiscoveryDescriptor{
			ConfigTopic:         fmt.Sprintf("%s/sensor/%s/%s/config", p.discovery(), node, attr),
			UniqueID:            node + "_" + attr,
			Name:                name + " " + attr,
			StateTopic:          p.Topics.Reading(name),
			ValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", attr),
			AvailabilityTopic:   p.Topics.Availability(name),
			PayloadAvailable:    PayloadOnline,
			PayloadNotAvailable: PayloadOffline,
			DeviceClass:         attr,
			StateClass:          "measurement",
			UnitOfMeasurement:   units[attr],
			Device:              dev,
		})
	}
	return descriptors
}

// NodeID is the slugged name followed by the MAC without separators,
// e.g. "living_room_a4c138001122".
func NodeID(name, mac string) string {
	hex := strings.Map(func(r rune) rune {
		if r == ':' || r == '-' || r == '.' {
			return -1
		}
		return unicode.ToLower(r)
	}, mac)
	return slug(name) + "_" + hex
}

// DeviceID returns a name-based (SHA-1) UUID for a MAC address, so a
// thermometer keeps its identity when renamed.
func DeviceID(mac string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(strings.ToUpper(mac))).String()
}

func slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
