package sensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDiscovery(t *testing.T) {
	p := Prefixes{Topics: Topics{Prefix: DefaultTopicPrefix}, Discovery: "homeassistant"}
	descriptors := BuildDiscovery(p, "kitchen", "AA:BB:CC:DD:EE:FF")
	require.Len(t, descriptors, 3)

	wantUnits := map[string]string{"temperature": "°C", "humidity": "%", "battery": "%"}
	for i, attr := range Attributes {
		d := descriptors[i]
		assert.Equal(t, "homeassistant/sensor/kitchen_aabbccddeeff/"+attr+"/config", d.ConfigTopic)
		assert.Equal(t, "kitchen_aabbccddeeff_"+attr, d.UniqueID)
		assert.Equal(t, "graylogic/sensors/mithermometer/kitchen", d.StateTopic)
		assert.Equal(t, "graylogic/sensors/mithermometer/kitchen/availability", d.AvailabilityTopic)
		assert.Equal(t, "{{ value_json."+attr+" }}", d.ValueTemplate)
		assert.Equal(t, attr, d.DeviceClass)
		assert.Equal(t, wantUnits[attr], d.UnitOfMeasurement)
		assert.Equal(t, "Xiaomi", d.Device.Manufacturer)
		assert.Equal(t, "LYWSD(CGQ/01ZM)", d.Device.Model)
		assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF", DeviceID("AA:BB:CC:DD:EE:FF")}, d.Device.Identifiers)
	}
}

func TestBuildDiscovery_Deterministic(t *testing.T) {
	p := Prefixes{Discovery: "ha"}
	first := BuildDiscovery(p, "Living Room", "a4:c1:38:00:11:22")
	second := BuildDiscovery(p, "Living Room", "a4:c1:38:00:11:22")
	assert.Equal(t, first, second)
	assert.Equal(t, "ha/sensor/living_room_a4c138001122/battery/config", first[2].ConfigTopic)
}

func TestDiscoveryDescriptor_Message(t *testing.T) {
	d := BuildDiscovery(Prefixes{}, "kitchen", "AA:BB:CC:DD:EE:FF")[0]
	msg, err := d.Message()
	require.NoError(t, err)

	assert.True(t, msg.Retained)
	assert.Equal(t, d.ConfigTopic, msg.Topic)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, "kitchen_aabbccddeeff_temperature", decoded["unique_id"])
	assert.Equal(t, "°C", decoded["unit_of_measurement"])
	assert.NotContains(t, decoded, "ConfigTopic")
}

func TestNodeID(t *testing.T) {
	tests := []struct {
		name, mac, want string
	}{
		{name: "kitchen", mac: "AA:BB:CC:DD:EE:FF", want: "kitchen_aabbccddeeff"},
		{name: "Living Room!", mac: "a4-c1-38-00-11-22", want: "living_room_a4c138001122"},
		{name: "  bed--room 2 ", mac: "A4:C1:38:00:11:22", want: "bed_room_2_a4c138001122"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NodeID(tt.name, tt.mac), tt.name)
	}
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, DeviceID("a4:c1:38:00:11:22"), DeviceID("A4:C1:38:00:11:22"))
	assert.NotEqual(t, DeviceID("A4:C1:38:00:11:22"), DeviceID("A4:C1:38:00:11:23"))
}

func TestStatusTopic(t *testing.T) {
	assert.Equal(t, "homeassistant/status", Prefixes{}.StatusTopic())
	assert.Equal(t, "ha/status", Prefixes{Discovery: "ha/"}.StatusTopic())
}
