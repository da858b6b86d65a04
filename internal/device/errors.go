package device

import "errors"

// Domain errors for the device registry.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // not registered yet
//	}
var (
	// ErrDeviceNotFound is returned when a device name is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a name or MAC fails validation.
	ErrInvalidDevice = errors.New("device: invalid")
)
