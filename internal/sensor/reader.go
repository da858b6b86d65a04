package sensor

import "context"

// Monitored attributes, in publication order.
const (
	AttrTemperature = "temperature"
	AttrHumidity    = "humidity"
	AttrBattery     = "battery"
)

// Attributes lists every attribute a thermometer reports.
var Attributes = []string{AttrTemperature, AttrHumidity, AttrBattery}

// Reading maps attribute name to value for one successful poll.
type Reading map[string]float64

// DeviceReader talks to a single physical thermometer.
//
// Communication failures must be wrapped with CommunicationError so the
// poller retries them; any other error aborts the sweep.
type DeviceReader interface {
	// ClearCache drops any cached values so the next read hits the device.
	ClearCache(ctx context.Context) error

	// ReadParameters reads every monitored attribute.
	ReadParameters(ctx context.Context) (Reading, error)
}

// Device is a configured thermometer and its reader.
type Device struct {
	Name   string
	MAC    string
	Reader DeviceReader
}

// update is one attempt: clear the cache, then read.
func update(r DeviceReader) func(context.Context) (Reading, error) {
	return func(ctx context.Context) (Reading, error) {
		if err := r.ClearCache(ctx); err != nil {
			return nil, err
		}
		return r.ReadParameters(ctx)
	}
}
