package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the daemon.
const (
	// MeasurementReading holds one field per sensor attribute.
	MeasurementReading = "sensor_reading"

	// MeasurementAvailability holds the online flag of a device.
	MeasurementAvailability = "sensor_availability"
)

// WriteReading records one successful poll of a device.
//
// Every attribute becomes a field of a single point so that a reading stays
// atomic in queries. The write is non-blocking; data is batched.
//
// Example:
//
//	client.WriteReading("kitchen", "AA:BB:CC:DD:EE:FF",
//	    map[string]float64{"temperature": 21.4, "humidity": 48, "battery": 97},
//	    time.Now())
func (c *Client) WriteReading(device, mac string, values map[string]float64, at time.Time) {
	if !c.IsConnected() || len(values) == 0 {
		return
	}

	c.writeAPI.WritePoint(readingPoint(device, mac, values, at))
}

// WriteAvailability records an availability transition of a device.
func (c *Client) WriteAvailability(device, mac string, online bool, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(availabilityPoint(device, mac, online, at))
}

func readingPoint(device, mac string, values map[string]float64, at time.Time) *write.Point {
	fields := make(map[string]interface{}, len(values))
	for name, v := range values {
		fields[name] = v
	}

	return write.NewPoint(MeasurementReading, deviceTags(device, mac), fields, at)
}

func availabilityPoint(device, mac string, online bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAvailability,
		deviceTags(device, mac),
		map[string]interface{}{"online": online},
		at,
	)
}

func deviceTags(device, mac string) map[string]string {
	return map[string]string{
		"device": device,
		"mac":    mac,
	}
}
