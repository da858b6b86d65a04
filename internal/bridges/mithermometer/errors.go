package mithermometer

import "errors"

// Domain errors for the MiThermometer bridge. Readers wrap them with
// sensor.CommunicationError before returning them to the poller.
var (
	// ErrConnectFailed is returned when the GATT connection cannot be made.
	ErrConnectFailed = errors.New("mithermometer: connection failed")

	// ErrServiceNotFound is returned when the expected GATT service or
	// characteristic is missing.
	ErrServiceNotFound = errors.New("mithermometer: service not found")

	// ErrReadFailed is returned when a characteristic read fails.
	ErrReadFailed = errors.New("mithermometer: read failed")

	// ErrNoData is returned when no sensor notification arrives in time.
	ErrNoData = errors.New("mithermometer: no sensor data received")

	// ErrInvalidData is returned when a notification cannot be parsed.
	ErrInvalidData = errors.New("mithermometer: invalid sensor data")
)
