package main

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-sensord/internal/device"
	"github.com/nerrad567/gray-logic-sensord/internal/sensor"
)

// registryWriteTimeout bounds each registry update made from the sweep loop.
const registryWriteTimeout = 2 * time.Second

type warnLogger interface {
	Warn(msg string, keysAndValues ...any)
}

// registryObserver records readings and transitions in the device registry.
type registryObserver struct {
	repo device.Repository
	log  warnLogger
}

func (o *registryObserver) OnReading(dev sensor.Device, _ sensor.Reading, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), registryWriteTimeout)
	defer cancel()
	if err := o.repo.RecordReading(ctx, dev.Name, at); err != nil {
		o.log.Warn("failed to record reading", "device", dev.Name, "error", err)
	}
}

func (o *registryObserver) OnAvailability(dev sensor.Device, online bool, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), registryWriteTimeout)
	defer cancel()
	if err := o.repo.RecordAvailability(ctx, dev.Name, online, at); err != nil {
		o.log.Warn("failed to record availability", "device", dev.Name, "error", err)
	}
}

// historyWriter is satisfied by *influxdb.Client.
type historyWriter interface {
	WriteReading(device, mac string, values map[string]float64, at time.Time)
	WriteAvailability(device, mac string, online bool, at time.Time)
}

// historyObserver forwards outcomes to the time-series store.
type historyObserver struct {
	writer historyWriter
}

func (o *historyObserver) OnReading(dev sensor.Device, r sensor.Reading, at time.Time) {
	o.writer.WriteReading(dev.Name, dev.MAC, r, at)
}

func (o *historyObserver) OnAvailability(dev sensor.Device, online bool, at time.Time) {
	o.writer.WriteAvailability(dev.Name, dev.MAC, online, at)
}
