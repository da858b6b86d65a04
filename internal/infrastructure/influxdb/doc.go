// Package influxdb stores sensor reading history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. The
// polling engine never depends on it: when disabled, readings are only
// published over MQTT.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReading("kitchen", mac, values, time.Now())
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback wrapped in ErrWriteFailed.
package influxdb
