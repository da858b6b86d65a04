package sensor

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errRadio = errors.New("bluetooth backend: connection lost")

// fakeReader replays a script of results; a nil entry is a successful read.
// Once the script runs out the last entry repeats.
type fakeReader struct {
	mu      sync.Mutex
	script  []error
	reading Reading
	delay   time.Duration
	calls   int
	clears  int
	closed  bool
}

func newFakeReader(script ...error) *fakeReader {
	return &fakeReader{
		script:  script,
		reading: Reading{AttrTemperature: 21.4, AttrHumidity: 48.2, AttrBattery: 97},
	}
}

func (f *fakeReader) ClearCache(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeReader) ReadParameters(ctx context.Context) (Reading, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	delay := f.delay
	var err error
	if len(f.script) > 0 {
		if idx >= len(f.script) {
			idx = len(f.script) - 1
		}
		err = f.script[idx]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, CommunicationError(ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	out := make(Reading, len(f.reading))
	for k, v := range f.reading {
		out[k] = v
	}
	return out, nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// setScript replaces the remaining script.
func (f *fakeReader) setScript(script ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = script
	f.calls = 0
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	fail      error
	messages  []published
	notify    chan struct{}
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{connected: true, notify: make(chan struct{}, 64)}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.messages = append(m.messages, published{topic, string(payload), qos, retained})
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) setConnected(c bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = c
}

func (m *mockPublisher) getMessages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]published, len(m.messages))
	copy(out, m.messages)
	return out
}

type recordingObserver struct {
	readings     []string
	availability []string
}

func (o *recordingObserver) OnReading(dev Device, _ Reading, _ time.Time) {
	o.readings = append(o.readings, dev.Name)
}

func (o *recordingObserver) OnAvailability(dev Device, online bool, _ time.Time) {
	state := PayloadOffline
	if online {
		state = PayloadOnline
	}
	o.availability = append(o.availability, dev.Name+"="+state)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
