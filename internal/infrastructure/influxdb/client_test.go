package influxdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/config"
)

// testConfig returns a configuration for the local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "sensors",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the local InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()

	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		if os.Getenv("RUN_INTEGRATION") != "" {
			t.Fatalf("Connect() error = %v", err)
		}
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name          string
		batch, flush  int
		wantBatch     int
		wantFlushSecs int
	}{
		{name: "configured", batch: 50, flush: 2, wantBatch: 50, wantFlushSecs: 2},
		{name: "zero uses defaults", batch: 0, flush: 0, wantBatch: defaultBatchSize, wantFlushSecs: defaultFlushInterval},
		{name: "negative uses defaults", batch: -1, flush: -5, wantBatch: defaultBatchSize, wantFlushSecs: defaultFlushInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, flush := batchSettings(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if batch != tt.wantBatch || flush != tt.wantFlushSecs {
				t.Errorf("batchSettings() = (%d, %d), want (%d, %d)", batch, flush, tt.wantBatch, tt.wantFlushSecs)
			}
		})
	}
}

func TestReadingPoint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := readingPoint("kitchen", "AA:BB:CC:DD:EE:FF",
		map[string]float64{"temperature": 21.4, "humidity": 48, "battery": 97}, at)

	if p.Name() != MeasurementReading {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementReading)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
	if len(p.FieldList()) != 3 {
		t.Errorf("FieldList() has %d fields, want 3", len(p.FieldList()))
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device"] != "kitchen" || tags["mac"] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("tags = %v", tags)
	}
}

func TestAvailabilityPoint(t *testing.T) {
	p := availabilityPoint("kitchen", "AA:BB:CC:DD:EE:FF", false, time.Now())

	if p.Name() != MeasurementAvailability {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementAvailability)
	}
	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "online" || fields[0].Value != false {
		t.Errorf("FieldList() = %+v, want online=false", fields)
	}
}

func TestClose_Nil(t *testing.T) {
	var c Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero Client error = %v", err)
	}
	// Writes on a closed client are silently dropped.
	c.WriteReading("kitchen", "AA:BB:CC:DD:EE:FF", map[string]float64{"battery": 90}, time.Now())
	c.Flush()
}

func TestHealthCheck_NotConnected(t *testing.T) {
	var c Client
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWriteReading(t *testing.T) {
	client := connectOrSkip(t)

	writeErrs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case writeErrs <- err:
		default:
		}
	})

	client.WriteReading("test-device", "AA:BB:CC:DD:EE:FF",
		map[string]float64{"temperature": 20.1, "humidity": 51.2, "battery": 88}, time.Now())
	client.WriteAvailability("test-device", "AA:BB:CC:DD:EE:FF", true, time.Now())
	client.Flush()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	select {
	case err := <-writeErrs:
		t.Errorf("async write error = %v", err)
	default:
	}
}
