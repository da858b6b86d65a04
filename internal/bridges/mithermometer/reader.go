package mithermometer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensord/internal/sensor"
)

// DefaultCacheTTL is how long a reading is served from cache.
const DefaultCacheTTL = 10 * time.Minute

// Transport opens GATT sessions to thermometers by MAC address.
type Transport interface {
	Connect(ctx context.Context, mac string) (Session, error)
}

// Session is one open connection to a thermometer.
type Session interface {
	// ReadBattery returns the battery level in percent.
	ReadBattery(ctx context.Context) (int, error)

	// ReadSensor waits for the next "T=xx.x H=xx.x" notification.
	ReadSensor(ctx context.Context) (string, error)

	Close() error
}

// Reader is a sensor.DeviceReader for one LYWSD(CGQ/01ZM) thermometer.
type Reader struct {
	mac       string
	transport Transport
	ttl       time.Duration
	now       func() time.Time

	// fetching serialises GATT sessions to this device; mu guards only
	// the cache and is never held across I/O.
	fetching slot

	mu       sync.Mutex
	cached   sensor.Reading
	cachedAt time.Time
}

// NewReader returns a reader for mac. A zero ttl uses DefaultCacheTTL.
func NewReader(mac string, transport Transport, ttl time.Duration) *Reader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Reader{mac: mac, transport: transport, ttl: ttl, now: time.Now, fetching: newSlot()}
}

// MAC returns the thermometer address.
func (r *Reader) MAC() string { return r.mac }

// ClearCache forgets the cached reading.
func (r *Reader) ClearCache(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.cachedAt = time.Time{}
	return nil
}

// ReadParameters returns temperature, humidity and battery, connecting to
// the device unless a fresh cached reading exists. If an earlier session is
// still stuck, it waits for it only until ctx is done.
func (r *Reader) ReadParameters(ctx context.Context) (sensor.Reading, error) {
	if reading, ok := r.fresh(); ok {
		return reading, nil
	}

	if err := r.fetching.acquire(ctx); err != nil {
		return nil, sensor.CommunicationError(fmt.Errorf("%w: %s busy: %w", ErrConnectFailed, r.mac, err))
	}
	defer r.fetching.release()

	// A concurrent caller may have filled the cache while we waited.
	if reading, ok := r.fresh(); ok {
		return reading, nil
	}

	reading, err := r.fetch(ctx)
	if err != nil {
		return nil, sensor.CommunicationError(err)
	}

	r.mu.Lock()
	r.cached = reading
	r.cachedAt = r.now()
	r.mu.Unlock()
	return copyReading(reading), nil
}

func (r *Reader) fresh() (sensor.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.now().Sub(r.cachedAt) < r.ttl {
		return copyReading(r.cached), true
	}
	return nil, false
}

func (r *Reader) fetch(ctx context.Context) (reading sensor.Reading, err error) {
	session, err := r.transport.Connect(ctx, r.mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, r.mac, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("disconnecting %s: %w", r.mac, cerr)
		}
	}()

	battery, err := session.ReadBattery(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := session.ReadSensor(ctx)
	if err != nil {
		return nil, err
	}
	temperature, humidity, err := ParseSensorData(raw)
	if err != nil {
		return nil, err
	}

	return sensor.Reading{
		sensor.AttrTemperature: temperature,
		sensor.AttrHumidity:    humidity,
		sensor.AttrBattery:     float64(battery),
	}, nil
}

// ParseSensorData parses a notification such as "T=23.4 H=45.6".
// Trailing NUL bytes are ignored.
func ParseSensorData(raw string) (temperature, humidity float64, err error) {
	var haveT, haveH bool
	for _, field := range strings.Fields(strings.TrimRight(raw, "\x00")) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidData, raw)
		}
		v, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("%w: %q: %w", ErrInvalidData, raw, perr)
		}
		switch key {
		case "T":
			temperature, haveT = v, true
		case "H":
			humidity, haveH = v, true
		}
	}
	if !haveT || !haveH {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidData, raw)
	}
	return temperature, humidity, nil
}

func copyReading(r sensor.Reading) sensor.Reading {
	out := make(sensor.Reading, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
