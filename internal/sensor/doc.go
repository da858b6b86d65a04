// Package sensor is the polling engine for BLE thermometers.
//
// A Poller sweeps a fixed set of devices. Each device update is one
// "clear cache, then read" attempt, retried immediately on communication
// errors (Retry) and bounded as a whole by a per-device timeout
// (WithTimeout). Outcomes feed a per-device Tracker that turns failure
// streaks into a single "offline" and the next success into a single
// "online". Sweep returns the resulting messages in device order:
//
//	<prefix>/<name>                {"battery":97,"humidity":48.2,"temperature":21.4}
//	<prefix>/<name>/availability   online | offline   (retained)
//
// BuildDiscovery produces Home Assistant style config descriptors, one per
// attribute, published retained under the discovery prefix.
//
// Errors from readers are classified with the Error type: KindTransient
// (wrap with CommunicationError), KindTimeout, or KindFatal for anything
// unclassified. Only a fatal error aborts a sweep.
package sensor
