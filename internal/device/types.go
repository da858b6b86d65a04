package device

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Device is the registry row for one configured thermometer.
type Device struct {
	// Name is the configured device name, also the MQTT topic segment.
	Name string `json:"name"`

	// MAC is the Bluetooth address in canonical upper-case colon form.
	MAC string `json:"mac"`

	// Online is the availability last reported by the poller.
	Online bool `json:"online"`

	// LastReadingAt is when the last successful reading arrived (nil if never).
	LastReadingAt *time.Time `json:"last_reading_at,omitempty"`

	// LastChangeAt is when Online last flipped (nil if never).
	LastChangeAt *time.Time `json:"last_change_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailabilityEntry is one online/offline transition from the history log.
type AvailabilityEntry struct {
	ID        int64     `json:"id"`
	Device    string    `json:"device"`
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
}

// NormalizeMAC parses mac and returns it as upper-case colon-separated hex.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("%w: mac %q: %w", ErrInvalidDevice, mac, err)
	}
	return strings.ToUpper(hw.String()), nil
}
