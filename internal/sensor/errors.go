package sensor

import (
	"errors"
	"fmt"
)

// Kind classifies a device update failure.
type Kind int

const (
	// KindFatal is anything the poller does not know how to recover from.
	// It aborts the sweep.
	KindFatal Kind = iota

	// KindTransient is a radio/communication failure worth retrying.
	KindTransient

	// KindTimeout means the per-device bound expired.
	KindTimeout
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// Sentinel errors for the sensor package.
var (
	// ErrTimeout is wrapped by every KindTimeout error.
	ErrTimeout = errors.New("sensor: device update timed out")

	// ErrShutdown is wrapped when the caller's context ends mid-update.
	ErrShutdown = errors.New("sensor: shutting down")

	// ErrPanic is wrapped when a device reader panics.
	ErrPanic = errors.New("sensor: device reader panicked")

	// ErrNoDevices is returned by NewPoller for an empty device list.
	ErrNoDevices = errors.New("sensor: no devices configured")

	// ErrInvalidDevice is returned by NewPoller for a bad device entry.
	ErrInvalidDevice = errors.New("sensor: invalid device")

	// ErrInvalidReading is wrapped when a reading cannot be encoded.
	ErrInvalidReading = errors.New("sensor: invalid reading")
)

// Error is the classified failure of one device operation.
type Error struct {
	Kind   Kind
	Device string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Device != "" {
		msg = e.Device + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "sensor: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether the failure may succeed on retry.
func (e *Error) IsTransient() bool { return e.Kind == KindTransient }

// CommunicationError marks err as a transient communication failure.
// Device readers wrap radio/backend errors with it. A nil err stays nil.
func CommunicationError(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Op: "communicate", Err: err}
}

// KindOf returns the classification of err. Errors that carry no *Error
// are fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsTransient reports whether err is a communication failure.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// attachDevice records the device name on err, classifying unknown errors
// as fatal.
func attachDevice(err error, device string) error {
	if e, ok := err.(*Error); ok { //nolint:errorlint // only the outermost value is rewritten
		if e.Device != "" {
			return e
		}
		c := *e
		c.Device = device
		return &c
	}
	if KindOf(err) != KindFatal {
		return fmt.Errorf("%s: %w", device, err)
	}
	return &Error{Kind: KindFatal, Device: device, Op: "update", Err: err}
}
