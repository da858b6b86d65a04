package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/config"
)

// Client is the daemon's broker connection. It keeps the retained status
// topic current and re-subscribes after every reconnect. Safe for
// concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	status *StatusMessages

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. *logging.Logger and *slog.Logger both
// satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one inbound message. Paho calls it from its own
// goroutine; a returned error is only logged.
type MessageHandler func(topic string, payload []byte) error

// StatusMessages describes the retained status topic the client maintains.
//
// The broker publishes Offline (the Last Will) when the client disappears
// without a clean disconnect. The client publishes Online after every
// (re)connect and Stopping from Close.
type StatusMessages struct {
	Topic    string
	Online   []byte
	Offline  []byte
	Stopping []byte
}

// stopping falls back to the will payload when no explicit one is set.
func (s *StatusMessages) stopping() []byte {
	if s.Stopping != nil {
		return s.Stopping
	}
	return s.Offline
}

// Connect dials the broker and waits up to defaultConnectTimeout for the
// first CONNACK. A nil status disables the Last Will and status publishing.
// Later connection losses are handled by paho's auto-reconnect.
func Connect(cfg config.MQTTConfig, status *StatusMessages) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		status:        status,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	if status != nil {
		configureLWT(opts, status)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	if c.hasStatus() {
		c.publishStatus(c.status.Online)
	}

	c.hooksMu.RLock()
	hook := c.onConnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.hooksMu.RLock()
	hook := c.onDisconnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Failures surface again on the next reconnect.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

func (c *Client) hasStatus() bool {
	return c.status != nil && c.status.Topic != ""
}

// publishStatus publishes payload on the status topic, retained, without
// waiting for the broker.
func (c *Client) publishStatus(payload []byte) pahomqtt.Token {
	return c.client.Publish(c.status.Topic, byte(c.cfg.QoS), true, payload)
}

// Close publishes the stopping status, waits briefly for it to be
// delivered and disconnects. Closing an unconnected client is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.hasStatus() {
		c.publishStatus(c.status.stopping()).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers a hook run after the initial connect and every
// reconnect, once subscriptions are restored.
func (c *Client) SetOnConnect(hook func()) {
	c.hooksMu.Lock()
	c.onConnect = hook
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers a hook run when the connection is lost.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = hook
	c.hooksMu.Unlock()
}

// SetLogger sets where handler errors and panics are reported. Without one
// they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, recovering panics and logging returned errors.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.currentLogger(); logger != nil {
				logger.Error("mqtt handler panicked", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if logger := c.currentLogger(); logger != nil {
			logger.Warn("mqtt handler failed", "topic", topic, "error", err)
		}
	}
}
