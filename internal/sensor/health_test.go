package sensor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStats Stats

func (s staticStats) Stats() Stats { return Stats(s) }

func newTestReporter(pub *mockPublisher, stats Stats) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		Service:   "graylogic-sensord",
		Version:   "test",
		Topics:    Topics{Prefix: testPrefix},
		Interval:  time.Hour,
		Publisher: pub,
		Source:    staticStats(stats),
		Logger:    nopLogger{},
	})
}

func lastHealth(t *testing.T, pub *mockPublisher) HealthMessage {
	t.Helper()
	msgs := pub.getMessages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, testPrefix+"/health", last.topic)
	assert.True(t, last.retained)

	var msg HealthMessage
	require.NoError(t, json.Unmarshal([]byte(last.payload), &msg))
	return msg
}

func TestHealthReporter_Status(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		stats      Stats
		wantStatus HealthStatus
		wantReason string
	}{
		{name: "healthy", connected: true, stats: Stats{Devices: 2, DevicesOnline: 2}, wantStatus: HealthHealthy},
		{name: "some offline", connected: true, stats: Stats{Devices: 2, DevicesOnline: 1, DevicesOffline: 1}, wantStatus: HealthHealthy},
		{name: "all offline", connected: true, stats: Stats{Devices: 2, DevicesOffline: 2}, wantStatus: HealthDegraded, wantReason: "all devices offline"},
		{name: "mqtt down", connected: false, stats: Stats{Devices: 2, DevicesOnline: 2}, wantStatus: HealthDegraded, wantReason: "MQTT disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newMockPublisher()
			pub.setConnected(tt.connected)
			h := newTestReporter(pub, tt.stats)

			require.NoError(t, h.PublishNow())
			msg := lastHealth(t, pub)
			assert.Equal(t, tt.wantStatus, msg.Status)
			assert.Equal(t, tt.wantReason, msg.Reason)
			assert.Equal(t, tt.stats.Devices, msg.DevicesManaged)
			assert.Equal(t, tt.stats.DevicesOffline, msg.DevicesOffline)
		})
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, Stats{Devices: 1, DevicesOnline: 1, Sweeps: 4})

	h.Start(context.Background())
	select {
	case <-pub.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial health message")
	}
	assert.Equal(t, HealthHealthy, lastHealth(t, pub).Status)

	h.Stop()
	h.Stop()
	msg := lastHealth(t, pub)
	assert.Equal(t, HealthStopping, msg.Status)
	require.NotNil(t, msg.Statistics)
	assert.Equal(t, uint64(4), msg.Statistics.Sweeps)
}

func TestStatusPayloads(t *testing.T) {
	starting, offline, stopping, err := StatusPayloads("graylogic-sensord", "test")
	require.NoError(t, err)

	for payload, want := range map[string]HealthStatus{
		string(starting): HealthStarting,
		string(offline):  HealthOffline,
		string(stopping): HealthStopping,
	} {
		var msg HealthMessage
		require.NoError(t, json.Unmarshal([]byte(payload), &msg))
		assert.Equal(t, want, msg.Status)
		assert.Equal(t, "graylogic-sensord", msg.Service)
	}
}

func TestHealthReporter_Topic(t *testing.T) {
	h := newTestReporter(newMockPublisher(), Stats{})
	assert.Equal(t, testPrefix+"/health", h.Topic())
}
