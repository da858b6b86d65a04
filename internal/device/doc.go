// Package device keeps the SQLite registry of configured thermometers.
//
// The registry is an operator-facing record: every configured device is
// registered at startup, successful readings stamp last_reading_at and
// availability transitions are appended to a history log. The poller's
// in-memory availability tracker is the source of truth; nothing here is
// read back into it.
package device
