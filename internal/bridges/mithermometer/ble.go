package mithermometer

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

var (
	// dataService carries the "T=.. H=.." notifications.
	dataService = bluetooth.NewUUID([16]byte{
		0x22, 0x6c, 0x00, 0x00, 0x64, 0x76, 0x45, 0x66,
		0x75, 0x62, 0x66, 0x73, 0x44, 0x70, 0x66, 0x6d,
	})
	dataCharacteristic = bluetooth.NewUUID([16]byte{
		0x22, 0x6c, 0xaa, 0x55, 0x64, 0x76, 0x45, 0x66,
		0x75, 0x62, 0x66, 0x73, 0x44, 0x70, 0x66, 0x6d,
	})
)

// BLETransport connects to thermometers through a local Bluetooth adapter.
type BLETransport struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// BlueZ handles one pending connection per adapter reliably.
	connecting slot
}

// NewBLETransport returns a transport on the named adapter (e.g. "hci0").
// The adapter is enabled lazily on first use.
func NewBLETransport(adapterID string) *BLETransport {
	return &BLETransport{adapter: adapter(adapterID), connecting: newSlot()}
}

func (t *BLETransport) enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("enabling bluetooth adapter: %w", err)
		}
	})
	return t.enableErr
}

// Connect opens a GATT connection. Waiting for the adapter and the dial
// itself both give up when ctx is done; a dial that is abandoned keeps the
// adapter until BlueZ answers and is then disconnected.
func (t *BLETransport) Connect(ctx context.Context, mac string) (Session, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}
	addr, err := address(mac)
	if err != nil {
		return nil, err
	}

	if err := t.connecting.acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for adapter: %w", err)
	}

	type dialResult struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan dialResult, 1)
	go func() {
		defer t.connecting.release()
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		done <- dialResult{device: device, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return &bleSession{device: res.device}, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.device.Disconnect() //nolint:errcheck // abandoned dial
			}
		}()
		return nil, ctx.Err()
	}
}

type bleSession struct {
	device bluetooth.Device
}

func (s *bleSession) characteristic(service, char bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	services, err := s.device.DiscoverServices([]bluetooth.UUID{service})
	if err != nil || len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s: %v", ErrServiceNotFound, service, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{char})
	if err != nil || len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s: %v", ErrServiceNotFound, char, err)
	}
	return chars[0], nil
}

func (s *bleSession) ReadBattery(context.Context) (int, error) {
	char, err := s.characteristic(bluetooth.ServiceUUIDBattery, bluetooth.CharacteristicUUIDBatteryLevel)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 1)
	n, err := char.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: battery: %w", ErrReadFailed, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: battery: empty value", ErrReadFailed)
	}
	return int(buf[0]), nil
}

func (s *bleSession) ReadSensor(ctx context.Context) (string, error) {
	char, err := s.characteristic(dataService, dataCharacteristic)
	if err != nil {
		return "", err
	}

	data := make(chan string, 1)
	if err := char.EnableNotifications(func(buf []byte) {
		select {
		case data <- string(buf):
		default:
		}
	}); err != nil {
		return "", fmt.Errorf("%w: enabling notifications: %w", ErrReadFailed, err)
	}

	select {
	case raw := <-data:
		return raw, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrNoData, ctx.Err())
	}
}

func (s *bleSession) Close() error {
	return s.device.Disconnect()
}
