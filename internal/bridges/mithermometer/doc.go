// Package mithermometer reads Xiaomi Mijia LYWSD(CGQ/01ZM) Bluetooth
// thermometers.
//
// Each poll connects over GATT, reads the standard battery level
// characteristic and waits for one notification on the vendor data
// characteristic, which carries ASCII such as "T=23.4 H=45.6". Readings are
// cached until ClearCache or the cache TTL expires. All failures are
// returned as sensor.CommunicationError so the poller retries them.
package mithermometer
