package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tgpanel/core/internal/infrastructure/config"
)

// Session is the part of a paho client the adapter drives.
// pahomqtt.Client satisfies it; mqtttest.Broker fakes it.
type Session interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Client is the transport adapter between tgpanel and the MQTT broker.
//
// Every inbound message enters through Dispatch, which fans it out to all
// handlers whose pattern matches, in registration order. Several handlers
// may share a pattern; the broker subscription lives as long as at least
// one of them does.
//
// All methods are safe for concurrent use. Handlers run on paho goroutines
// and may call Subscribe, Unsubscribe and Publish.
type Client struct {
	sess Session
	cfg  config.MQTTConfig

	// handler table, read by Dispatch
	tableMu  sync.RWMutex
	handlers []*handlerEntry
	patterns map[string]*patternState
	nextID   uint64

	// brokerMu serialises broker SUBSCRIBE/UNSUBSCRIBE traffic.
	// Dispatch never takes it.
	brokerMu sync.Mutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives one inbound message. A returned error is logged
// and has no effect on delivery.
type MessageHandler func(topic string, payload []byte) error

type handlerEntry struct {
	id      uint64
	pattern string
	handler MessageHandler
}

type patternState struct {
	qos  byte
	refs int
}

// Connect dials the broker described by cfg and returns a connected Client.
//
// The session reconnects on its own with exponential backoff between
// reconnect.initial_delay and reconnect.max_delay. Broker subscriptions are
// restored and the online status republished after every reconnect.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.Dispatch(msg.Topic(), msg.Payload())
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("mqtt reconnecting", "broker", cfg.Broker.Host)
		}
	})

	pc := pahomqtt.NewClient(opts)
	c.sess = pc

	token := pc.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		pc.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously; mark connected now so
	// callers can subscribe straight away.
	c.setConnected(true)
	return c, nil
}

// NewClient wraps an existing session. The caller must route inbound
// messages to Dispatch. Used with mqtttest.Broker.
func NewClient(sess Session, cfg config.MQTTConfig) *Client {
	c := newClient(cfg)
	c.sess = sess
	c.setConnected(sess.IsConnected())
	return c
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:      cfg,
		patterns: make(map[string]*patternState),
	}
}

// Dispatch delivers one inbound message to every matching handler.
//
// The handler table is snapshotted under the read lock, so handlers added
// or removed while the fan-out runs do not affect this message.
func (c *Client) Dispatch(topic string, payload []byte) {
	c.tableMu.RLock()
	var matched []*handlerEntry
	for _, h := range c.handlers {
		if MatchTopic(topic, h.pattern) {
			matched = append(matched, h)
		}
	}
	c.tableMu.RUnlock()

	for _, h := range matched {
		c.invoke(h, topic, payload)
	}
}

// invoke runs one handler with panic recovery.
func (c *Client) invoke(h *handlerEntry, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("mqtt handler panic recovered",
					"topic", topic,
					"pattern", h.pattern,
					"panic", r,
				)
			}
		}
	}()

	if err := h.handler(topic, payload); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("mqtt handler returned error",
				"topic", topic,
				"pattern", h.pattern,
				"error", err,
			)
		}
	}
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	if logger := c.getLogger(); logger != nil {
		logger.Warn("mqtt connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes every live pattern. With a clean
// session the broker forgets them on disconnect.
func (c *Client) restoreSubscriptions() {
	c.brokerMu.Lock()
	defer c.brokerMu.Unlock()

	c.tableMu.RLock()
	snapshot := make(map[string]byte, len(c.patterns))
	for pattern, st := range c.patterns {
		snapshot[pattern] = st.qos
	}
	c.tableMu.RUnlock()

	for pattern, qos := range snapshot {
		token := c.sess.Subscribe(pattern, qos, nil)
		if err := waitToken(token, ErrSubscribeFailed); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("mqtt resubscribe failed", "pattern", pattern, "error", err)
			}
		}
	}
}

func (c *Client) publishOnlineStatus() {
	topic := Topics{}.SystemStatus()
	c.sess.Publish(topic, byte(c.cfg.QoS), true, buildOnlinePayload(c.cfg.Broker.ClientID))
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c == nil || c.sess == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.sess.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.sess.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.sess != nil && c.sess.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// waitToken waits for a paho token with the publish timeout and wraps
// failures in sentinel.
func waitToken(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
