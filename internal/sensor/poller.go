package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Poller defaults.
const (
	DefaultInterval         = 300 * time.Second
	DefaultPerDeviceTimeout = 8 * time.Second
	DefaultRetries          = 3
	DefaultOfflineThreshold = 5
)

// Logger is the structured logger used by the poller and health reporter.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Publisher is the message sink, typically the MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Observer receives sweep outcomes besides the bus, e.g. history stores.
// Calls come from the sweep loop, one at a time, in device order.
type Observer interface {
	OnReading(dev Device, r Reading, at time.Time)
	OnAvailability(dev Device, online bool, at time.Time)
}

// PollerConfig holds everything needed to build a Poller.
type PollerConfig struct {
	Devices  []Device
	Prefixes Prefixes

	// Interval between sweeps in Run. Default 300s.
	Interval time.Duration

	// Timeout bounds one device update including retries. Default 8s.
	Timeout time.Duration

	// Retries is the number of extra attempts after a communication error.
	// Zero means a single attempt.
	Retries int

	// OfflineThreshold is the failure streak that marks a device offline.
	// Default 5.
	OfflineThreshold int

	// Concurrency is how many devices are read at once. Default 1.
	Concurrency int

	// QoS for published messages. Zero is raised to 1.
	QoS byte

	Publisher Publisher
	Observers []Observer
	Logger    Logger
}

// Stats is a point-in-time snapshot of poller activity.
type Stats struct {
	Devices           int
	DevicesOnline     int
	DevicesOffline    int
	Sweeps            uint64
	Readings          uint64
	Failures          uint64
	Timeouts          uint64
	FatalErrors       uint64
	PublishErrors     uint64
	LastSweep         time.Time
	LastSweepDuration time.Duration
}

// Poller sweeps every device, tracks availability and produces messages.
//
// Sweeps never overlap. Trackers are only touched by the sweep loop; other
// goroutines read the Stats snapshot.
type Poller struct {
	devices   []Device
	trackers  []*Tracker
	prefixes  Prefixes
	interval  time.Duration
	timeout   time.Duration
	retries   int
	qos       byte
	limit     int
	publisher Publisher
	observers []Observer
	logger    Logger

	sweepMu sync.Mutex

	statsMu sync.RWMutex
	stats   Stats

	closeOnce sync.Once
}

// NewPoller validates cfg, applies defaults and orders devices by name.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if len(cfg.Devices) == 0 {
		return nil, ErrNoDevices
	}

	devices := make([]Device, len(cfg.Devices))
	copy(devices, cfg.Devices)
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	for i, d := range devices {
		switch {
		case d.Name == "" || strings.ContainsAny(d.Name, "/+#"):
			return nil, fmt.Errorf("%w: name %q", ErrInvalidDevice, d.Name)
		case d.Reader == nil:
			return nil, fmt.Errorf("%w: %s has no reader", ErrInvalidDevice, d.Name)
		case i > 0 && devices[i-1].Name == d.Name:
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidDevice, d.Name)
		}
	}

	p := &Poller{
		devices:   devices,
		trackers:  make([]*Tracker, len(devices)),
		prefixes:  cfg.Prefixes,
		interval:  orDefault(cfg.Interval, DefaultInterval),
		timeout:   orDefault(cfg.Timeout, DefaultPerDeviceTimeout),
		retries:   cfg.Retries,
		qos:       cfg.QoS,
		limit:     cfg.Concurrency,
		publisher: cfg.Publisher,
		observers: cfg.Observers,
		logger:    cfg.Logger,
	}
	if p.qos == 0 {
		p.qos = 1
	}
	if p.limit < 1 {
		p.limit = 1
	}
	threshold := cfg.OfflineThreshold
	if threshold <= 0 {
		threshold = DefaultOfflineThreshold
	}
	for i := range p.trackers {
		p.trackers[i] = NewTracker(threshold)
	}
	p.stats.Devices = len(devices)
	p.stats.DevicesOnline = len(devices)

	return p, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Devices returns the configured devices in sweep order.
func (p *Poller) Devices() []Device {
	out := make([]Device, len(p.devices))
	copy(out, p.devices)
	return out
}

// Availability returns the tracked state of a device by name.
func (p *Poller) Availability(name string) (Availability, bool) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()
	for i, d := range p.devices {
		if d.Name == name {
			return p.trackers[i].State(), true
		}
	}
	return Online, false
}

// Stats returns a snapshot of poller statistics.
func (p *Poller) Stats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

type outcome struct {
	reading Reading
	err     error
	skipped bool
}

// Sweep updates every device once and returns the messages to publish, in
// device order: each reading, followed by "online" when the device
// recovers; "offline" when a failure streak reaches the threshold.
//
// Communication failures and timeouts never abort the sweep. A fatal error
// does: the messages assembled before the failing device are returned along
// with the error.
func (p *Poller) Sweep(ctx context.Context) ([]Message, error) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	start := time.Now()
	p.logInfo("updating devices", "count", len(p.devices))

	outcomes := p.readAll(ctx)

	var (
		msgs     []Message
		sweepErr error
		counts   Stats
	)
	for i, dev := range p.devices {
		o := outcomes[i]
		if o.skipped {
			break
		}
		now := time.Now()

		if o.err == nil {
			msg, err := p.prefixes.Topics.readingMessage(dev.Name, o.reading)
			if err != nil {
				o.err = CommunicationError(err)
			} else {
				msgs = append(msgs, msg)
				counts.Readings++
				for _, obs := range p.observers {
					obs.OnReading(dev, o.reading, now)
				}
				if p.trackers[i].Success() {
					msgs = append(msgs, p.prefixes.Topics.availabilityMessage(dev.Name, Online))
					p.notifyAvailability(dev, true, now)
					p.logInfo("device back online", "device", dev.Name, "mac", dev.MAC)
				}
				continue
			}
		}

		err := attachDevice(o.err, dev.Name)
		kind := KindOf(err)
		if kind == KindFatal {
			counts.FatalErrors++
			sweepErr = err
			break
		}

		if kind == KindTimeout {
			counts.Timeouts++
			p.logWarn("timeout during device update",
				"device", dev.Name, "mac", dev.MAC, "error", err)
		} else {
			counts.Failures++
			p.logWarn("error during device update",
				"device", dev.Name, "mac", dev.MAC, "error", err, "class", errorClass(err))
		}

		if p.trackers[i].Failure() {
			msgs = append(msgs, p.prefixes.Topics.availabilityMessage(dev.Name, Offline))
			p.notifyAvailability(dev, false, now)
			p.logWarn("device offline", "device", dev.Name, "mac", dev.MAC,
				"failures", p.trackers[i].Failures())
		}
	}

	p.recordSweep(start, counts)
	return msgs, sweepErr
}

// readAll runs every device update, at most p.limit at a time. Results are
// stored by index. Once a fatal error is seen, devices ordered after the
// lowest fatal index are skipped; devices before it always complete, so
// Sweep reaches the fatal outcome before any skipped one.
func (p *Poller) readAll(ctx context.Context) []outcome {
	outcomes := make([]outcome, len(p.devices))
	var fatalAt atomic.Int64
	fatalAt.Store(int64(len(p.devices)))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, dev := range p.devices {
		i, dev := i, dev
		g.Go(func() error {
			if int64(i) > fatalAt.Load() {
				outcomes[i].skipped = true
				return nil
			}
			p.logDebug("updating device", "device", dev.Name, "mac", dev.MAC)
			r, err := WithTimeout(ctx, p.timeout, func(ctx context.Context) (Reading, error) {
				return Retry(ctx, p.retries, IsTransient, update(dev.Reader))
			})
			if err != nil && KindOf(err) == KindFatal {
				lowerFatal(&fatalAt, int64(i))
			}
			outcomes[i] = outcome{reading: r, err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines report through outcomes
	return outcomes
}

// lowerFatal stores i in idx if it is below the current value.
func lowerFatal(idx *atomic.Int64, i int64) {
	for {
		cur := idx.Load()
		if i >= cur || idx.CompareAndSwap(cur, i) {
			return
		}
	}
}

func (p *Poller) notifyAvailability(dev Device, online bool, at time.Time) {
	for _, obs := range p.observers {
		obs.OnAvailability(dev, online, at)
	}
}

func (p *Poller) recordSweep(start time.Time, counts Stats) {
	online := 0
	for _, t := range p.trackers {
		if t.State() == Online {
			online++
		}
	}

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Sweeps++
	p.stats.Readings += counts.Readings
	p.stats.Failures += counts.Failures
	p.stats.Timeouts += counts.Timeouts
	p.stats.FatalErrors += counts.FatalErrors
	p.stats.DevicesOnline = online
	p.stats.DevicesOffline = len(p.trackers) - online
	p.stats.LastSweep = start
	p.stats.LastSweepDuration = time.Since(start)
}

// Run sweeps immediately and then every interval until ctx is cancelled,
// publishing each sweep's messages. A fatal sweep error is logged and the
// next tick proceeds.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.runOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	msgs, err := p.Sweep(ctx)
	p.publish(msgs)
	if err != nil && ctx.Err() == nil {
		p.logError("device sweep aborted", "error", err)
	}
}

// publish sends messages in order; a failed publish is logged and counted.
func (p *Poller) publish(msgs []Message) int {
	if p.publisher == nil {
		return 0
	}
	failed := 0
	for _, m := range msgs {
		if err := p.publisher.Publish(m.Topic, m.Payload, p.qos, m.Retained); err != nil {
			failed++
			p.logWarn("failed to publish", "topic", m.Topic, "error", err)
		}
	}
	if failed > 0 {
		p.statsMu.Lock()
		p.stats.PublishErrors += uint64(failed)
		p.statsMu.Unlock()
	}
	return failed
}

// DiscoveryMessages returns the retained config messages for every device.
func (p *Poller) DiscoveryMessages() ([]Message, error) {
	var msgs []Message
	for _, dev := range p.devices {
		for _, d := range BuildDiscovery(p.prefixes, dev.Name, dev.MAC) {
			m, err := d.Message()
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// AnnounceDiscovery publishes every device's discovery config, retained.
// Safe to call repeatedly and from any goroutine.
func (p *Poller) AnnounceDiscovery() error {
	msgs, err := p.DiscoveryMessages()
	if err != nil {
		return err
	}
	if p.publisher == nil {
		return nil
	}
	if failed := p.publish(msgs); failed > 0 {
		return fmt.Errorf("announcing discovery: %d of %d publishes failed", failed, len(msgs))
	}
	p.logInfo("published discovery", "devices", len(p.devices), "messages", len(msgs))
	return nil
}

// HandleDiscoveryStatus re-announces discovery when the consumer reports
// "online" on Prefixes.StatusTopic. It matches mqtt.MessageHandler.
func (p *Poller) HandleDiscoveryStatus(_ string, payload []byte) error {
	if !bytes.Equal(bytes.TrimSpace(payload), []byte(PayloadOnline)) {
		return nil
	}
	return p.AnnounceDiscovery()
}

// Close releases every reader that implements io.Closer.
func (p *Poller) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, dev := range p.devices {
			if c, ok := dev.Reader.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("closing %s: %w", dev.Name, err))
				}
			}
		}
	})
	return errors.Join(errs...)
}

// errorClass names the innermost error type for logs.
func errorClass(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

func (p *Poller) logDebug(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, kv...)
	}
}

func (p *Poller) logInfo(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Info(msg, kv...)
	}
}

func (p *Poller) logWarn(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, kv...)
	}
}

func (p *Poller) logError(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Error(msg, kv...)
	}
}
