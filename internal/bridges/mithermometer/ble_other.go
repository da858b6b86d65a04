//go:build !linux

package mithermometer

import (
	"errors"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// Only BlueZ addresses peripherals by MAC; other stacks hide it.
func adapter(string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}

func address(mac string) (bluetooth.Address, error) {
	return bluetooth.Address{}, fmt.Errorf("connecting to %s: %w", mac, errors.ErrUnsupported)
}
