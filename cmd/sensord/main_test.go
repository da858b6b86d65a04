package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensord/internal/bridges/mithermometer"
	"github.com/nerrad567/gray-logic-sensord/internal/device"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensord/internal/sensor"
	"github.com/nerrad567/gray-logic-sensord/migrations"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/sensord.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_NoDevices(t *testing.T) {
	writeConfig(t, `
database:
  path: "`+filepath.Join(t.TempDir(), "sensord.db")+`"
sensors:
  devices: {}
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sensors.devices") {
		t.Fatalf("run() error = %v, want sensors.devices validation error", err)
	}
}

func TestRun_BrokerUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the MQTT connect timeout")
	}
	dir := t.TempDir()
	writeConfig(t, `
database:
  path: "`+filepath.Join(dir, "sensord.db")+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "sensord-test"
sensors:
  devices:
    kitchen: "A4:C1:38:00:11:22"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "MQTT") {
		t.Fatalf("run() error = %v, want MQTT connection error", err)
	}
	// The registry is seeded before the broker is dialled.
	if _, statErr := os.Stat(filepath.Join(dir, "sensord.db")); statErr != nil {
		t.Errorf("database not created: %v", statErr)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GRAYLOGIC_CONFIG", "/etc/graylogic/sensord.yaml")
	if got := getConfigPath(); got != "/etc/graylogic/sensord.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestBuildDevices(t *testing.T) {
	cfg := config.SensorsConfig{Devices: map[string]string{
		"lounge":  "A4:C1:38:00:00:02",
		"bedroom": "A4:C1:38:00:00:01",
	}}

	devices := buildDevices(cfg, mithermometer.NewBLETransport("hci0"))
	if len(devices) != 2 {
		t.Fatalf("buildDevices() returned %d devices, want 2", len(devices))
	}
	if devices[0].Name != "bedroom" || devices[1].Name != "lounge" {
		t.Errorf("device order = %s, %s", devices[0].Name, devices[1].Name)
	}
	for _, d := range devices {
		r, ok := d.Reader.(*mithermometer.Reader)
		if !ok {
			t.Fatalf("Reader = %T, want *mithermometer.Reader", d.Reader)
		}
		if r.MAC() != d.MAC {
			t.Errorf("reader MAC = %q, want %q", r.MAC(), d.MAC)
		}
	}
}

func openRegistry(t *testing.T) *device.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "r.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return device.NewSQLiteRepository(db.DB)
}

func TestSeedRegistry(t *testing.T) {
	repo := openRegistry(t)
	cfg := config.SensorsConfig{Devices: map[string]string{
		"kitchen": "a4:c1:38:00:11:22",
		"attic":   "A4:C1:38:00:11:33",
	}}

	if err := seedRegistry(context.Background(), repo, cfg); err != nil {
		t.Fatalf("seedRegistry() error = %v", err)
	}
	devices, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 || devices[0].Name != "attic" || devices[1].MAC != "A4:C1:38:00:11:22" {
		t.Errorf("registry = %+v", devices)
	}
}

type captureLogger struct{ warnings []string }

func (l *captureLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }

func TestRegistryObserver(t *testing.T) {
	repo := openRegistry(t)
	ctx := context.Background()
	if err := repo.Register(ctx, "kitchen", "A4:C1:38:00:11:22"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	log := &captureLogger{}
	obs := &registryObserver{repo: repo, log: log}
	dev := sensor.Device{Name: "kitchen", MAC: "A4:C1:38:00:11:22"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	obs.OnReading(dev, sensor.Reading{"temperature": 20}, at)
	obs.OnAvailability(dev, false, at)
	obs.OnAvailability(sensor.Device{Name: "ghost"}, false, at)

	d, err := repo.Get(ctx, "kitchen")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Online || d.LastReadingAt == nil || !d.LastReadingAt.Equal(at) {
		t.Errorf("device = %+v", d)
	}
	if len(log.warnings) != 1 {
		t.Errorf("warnings = %v, want one for the unknown device", log.warnings)
	}
}

type fakeHistory struct {
	readings     []string
	availability []bool
}

func (f *fakeHistory) WriteReading(device, _ string, values map[string]float64, _ time.Time) {
	f.readings = append(f.readings, device)
	if len(values) == 0 {
		f.readings = append(f.readings, "empty")
	}
}

func (f *fakeHistory) WriteAvailability(_ string, _ string, online bool, _ time.Time) {
	f.availability = append(f.availability, online)
}

func TestHistoryObserver(t *testing.T) {
	h := &fakeHistory{}
	obs := &historyObserver{writer: h}
	dev := sensor.Device{Name: "kitchen", MAC: "A4:C1:38:00:11:22"}

	obs.OnReading(dev, sensor.Reading{"temperature": 21.4}, time.Now())
	obs.OnAvailability(dev, true, time.Now())

	if len(h.readings) != 1 || h.readings[0] != "kitchen" {
		t.Errorf("readings = %v", h.readings)
	}
	if len(h.availability) != 1 || !h.availability[0] {
		t.Errorf("availability = %v", h.availability)
	}
}

func TestHealthCheck_ClosedDatabase(t *testing.T) {
	db, err := database.Open(context.Background(), database.Config{Path: filepath.Join(t.TempDir(), "h.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db.Close()

	err = healthCheck(context.Background(), db, nil)
	if err == nil || !strings.Contains(err.Error(), "database") {
		t.Errorf("healthCheck() error = %v, want database error", err)
	}
}
