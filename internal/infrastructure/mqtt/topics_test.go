package mqtt

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePublishTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{topic: "graylogic/sensors/mithermometer/kitchen", wantErr: false},
		{topic: "homeassistant/sensor/kitchen_aabbccddeeff/temperature/config", wantErr: false},
		{topic: "", wantErr: true},
		{topic: "graylogic/+/kitchen", wantErr: true},
		{topic: "graylogic/#", wantErr: true},
		{topic: "bad\x00topic", wantErr: true},
		{topic: strings.Repeat("a", maxTopicLength+1), wantErr: true},
	}

	for _, tt := range tests {
		err := ValidatePublishTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePublishTopic(%.40q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidatePublishTopic(%.40q) error = %v, want ErrInvalidTopic", tt.topic, err)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{filter: "homeassistant/status", wantErr: false},
		{filter: "graylogic/sensors/+/availability", wantErr: false},
		{filter: "graylogic/#", wantErr: false},
		{filter: "#", wantErr: false},
		{filter: "", wantErr: true},
		{filter: "graylogic/#/state", wantErr: true},
		{filter: "graylogic/sensors#", wantErr: true},
		{filter: "graylogic/sens+", wantErr: true},
	}

	for _, tt := range tests {
		if err := ValidateFilter(tt.filter); (err != nil) != tt.wantErr {
			t.Errorf("ValidateFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
		}
	}
}
