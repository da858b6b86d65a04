//go:build linux

package mithermometer

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

func adapter(id string) *bluetooth.Adapter {
	if id == "" {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(id)
}

func address(mac string) (bluetooth.Address, error) {
	m, err := bluetooth.ParseMAC(mac)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("parsing mac %q: %w", mac, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: m}}, nil
}
