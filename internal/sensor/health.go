package sensor

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus is the operational status of the daemon.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"

	// HealthOffline is only ever sent by the broker, as the LWT.
	HealthOffline HealthStatus = "offline"
)

const defaultHealthInterval = 30 * time.Second

// HealthMessage is published retained to <prefix>/health.
type HealthMessage struct {
	Service        string           `json:"service"`
	Timestamp      time.Time        `json:"timestamp"`
	Status         HealthStatus     `json:"status"`
	Version        string           `json:"version,omitempty"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
	DevicesManaged int              `json:"devices_managed"`
	DevicesOnline  int              `json:"devices_online"`
	DevicesOffline int              `json:"devices_offline"`
	Statistics     *SweepStatistics `json:"statistics,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// SweepStatistics are cumulative poller counters.
type SweepStatistics struct {
	Sweeps              uint64     `json:"sweeps"`
	Readings            uint64     `json:"readings"`
	Failures            uint64     `json:"failures"`
	Timeouts            uint64     `json:"timeouts"`
	FatalErrors         uint64     `json:"fatal_errors"`
	PublishErrors       uint64     `json:"publish_errors"`
	LastSweep           *time.Time `json:"last_sweep,omitempty"`
	LastSweepDurationMs int64      `json:"last_sweep_duration_ms"`
}

// StatsSource provides poller statistics; *Poller satisfies it.
type StatsSource interface {
	Stats() Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Service   string
	Version   string
	Topics    Topics
	Interval  time.Duration // default 30s
	Publisher Publisher
	Source    StatsSource
	Logger    Logger
}

// HealthReporter publishes periodic health status.
type HealthReporter struct {
	service   string
	version   string
	topic     string
	interval  time.Duration
	publisher Publisher
	source    StatsSource
	logger    Logger
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	return &HealthReporter{
		service:   cfg.Service,
		version:   cfg.Version,
		topic:     cfg.Topics.Health(),
		interval:  orDefault(cfg.Interval, defaultHealthInterval),
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    cfg.Logger,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Topic returns the health topic, also used as the LWT topic.
func (h *HealthReporter) Topic() string { return h.topic }

// Start publishes the current status and then one every interval.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(h.message(HealthStopping, ""))
	})
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(h.message(status, reason))
}

// StatusPayloads returns the starting, LWT and stopping payloads for the
// MQTT client's status topic, before any reporter exists.
func StatusPayloads(service, version string) (starting, offline, stopping []byte, err error) {
	now := time.Now().UTC()
	msg := func(status HealthStatus, reason string) HealthMessage {
		return HealthMessage{Service: service, Timestamp: now, Status: status, Version: version, Reason: reason}
	}
	if starting, err = json.Marshal(msg(HealthStarting, "")); err != nil {
		return nil, nil, nil, err
	}
	if offline, err = json.Marshal(msg(HealthOffline, "unexpected_disconnect")); err != nil {
		return nil, nil, nil, err
	}
	if stopping, err = json.Marshal(msg(HealthStopping, "")); err != nil {
		return nil, nil, nil, err
	}
	return starting, offline, stopping, nil
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.source != nil {
		s := h.source.Stats()
		if s.Devices > 0 && s.DevicesOffline == s.Devices {
			return HealthDegraded, "all devices offline"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Service:       h.service,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.source == nil {
		return msg
	}

	s := h.source.Stats()
	msg.DevicesManaged = s.Devices
	msg.DevicesOnline = s.DevicesOnline
	msg.DevicesOffline = s.DevicesOffline
	msg.Statistics = &SweepStatistics{
		Sweeps:              s.Sweeps,
		Readings:            s.Readings,
		Failures:            s.Failures,
		Timeouts:            s.Timeouts,
		FatalErrors:         s.FatalErrors,
		PublishErrors:       s.PublishErrors,
		LastSweepDurationMs: s.LastSweepDuration.Milliseconds(),
	}
	if !s.LastSweep.IsZero() {
		last := s.LastSweep.UTC()
		msg.Statistics.LastSweep = &last
	}
	return msg
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err)
	}
}
