// Package mqtttest provides an in-process broker for exercising the MQTT
// transport adapter without a network.
//
//	broker := mqtttest.NewBroker()
//	client := mqtt.NewClient(broker, cfg)
//	broker.Attach(client.Dispatch)
//
//	// Simulate a device answering status requests.
//	broker.Respond("+/status/req", func(topic string, _ []byte) {
//	    serial := strings.Split(topic, "/")[0]
//	    broker.Inject(serial+"/status/res", []byte(`{"type":"response","status":"ok"}`))
//	})
package mqtttest

import (
	"sort"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tgpanel/core/internal/infrastructure/mqtt"
)

// Message is a publish seen by the broker.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

type responder struct {
	pattern string
	fn      func(topic string, payload []byte)
}

// Broker implements mqtt.Session in memory. Broker-level subscriptions are
// tracked so tests can assert that none are left behind.
type Broker struct {
	mu           sync.Mutex
	connected    bool
	subs         map[string]byte
	published    []Message
	responders   []responder
	deliver      func(topic string, payload []byte)
	subscribeErr error
	publishErr   error
	subCalls     int
	unsubCalls   int
	disconnected bool
}

// NewBroker returns a connected broker with no subscriptions.
func NewBroker() *Broker {
	return &Broker{
		connected: true,
		subs:      make(map[string]byte),
	}
}

// Attach sets the function inbound messages are delivered to, normally
// (*mqtt.Client).Dispatch.
func (b *Broker) Attach(deliver func(topic string, payload []byte)) {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
}

// SetConnected flips the session state seen by the client.
func (b *Broker) SetConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	if !v {
		// Clean session: the broker forgets everything.
		b.subs = make(map[string]byte)
	}
	b.mu.Unlock()
}

// FailSubscribe makes subsequent SUBSCRIBEs fail with err (nil clears it).
func (b *Broker) FailSubscribe(err error) {
	b.mu.Lock()
	b.subscribeErr = err
	b.mu.Unlock()
}

// FailPublish makes subsequent publishes fail with err (nil clears it).
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

// Respond runs fn on its own goroutine for every publish whose topic
// matches pattern. It stands in for a device.
func (b *Broker) Respond(pattern string, fn func(topic string, payload []byte)) {
	b.mu.Lock()
	b.responders = append(b.responders, responder{pattern: pattern, fn: fn})
	b.mu.Unlock()
}

// Inject delivers a message from outside (a device) on the calling
// goroutine. It is dropped unless some broker subscription matches.
// Reports whether it was delivered.
func (b *Broker) Inject(topic string, payload []byte) bool {
	b.mu.Lock()
	deliver := b.deliver
	matched := b.matchesLocked(topic)
	b.mu.Unlock()

	if !matched || deliver == nil {
		return false
	}
	deliver(topic, payload)
	return true
}

func (b *Broker) matchesLocked(topic string) bool {
	if !b.connected {
		return false
	}
	for pattern := range b.subs {
		if mqtt.MatchTopic(topic, pattern) {
			return true
		}
	}
	return false
}

// Published returns a copy of every publish so far.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedTo returns the publishes made to topic.
func (b *Broker) PublishedTo(topic string) []Message {
	var out []Message
	for _, m := range b.Published() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Subscriptions returns the patterns currently subscribed, sorted.
func (b *Broker) Subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for p := range b.subs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether pattern is subscribed at the broker.
func (b *Broker) IsSubscribed(pattern string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[pattern]
	return ok
}

// SubscribeCalls returns how many SUBSCRIBE packets were received.
func (b *Broker) SubscribeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subCalls
}

// UnsubscribeCalls returns how many UNSUBSCRIBE packets were received.
func (b *Broker) UnsubscribeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubCalls
}

// Disconnected reports whether Disconnect was called.
func (b *Broker) Disconnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnected
}

// IsConnected implements mqtt.Session.
func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Publish implements mqtt.Session. Matching responders run asynchronously,
// as does loopback delivery to matching subscriptions.
func (b *Broker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = append([]byte(nil), p...)
	case string:
		body = []byte(p)
	}

	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return completed(err)
	}
	if !b.connected {
		b.mu.Unlock()
		return completed(mqtt.ErrNotConnected)
	}
	b.published = append(b.published, Message{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	var fns []func(string, []byte)
	for _, r := range b.responders {
		if mqtt.MatchTopic(topic, r.pattern) {
			fns = append(fns, r.fn)
		}
	}
	loopback := b.matchesLocked(topic)
	b.mu.Unlock()

	for _, fn := range fns {
		go fn(topic, body)
	}
	if loopback {
		go b.Inject(topic, body)
	}
	return completed(nil)
}

// Subscribe implements mqtt.Session. The callback is ignored: all traffic
// goes through the attached deliver function, as with paho's default
// publish handler.
func (b *Broker) Subscribe(topic string, qos byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subCalls++
	if b.subscribeErr != nil {
		return completed(b.subscribeErr)
	}
	if !b.connected {
		return completed(mqtt.ErrNotConnected)
	}
	b.subs[topic] = qos
	return completed(nil)
}

// Unsubscribe implements mqtt.Session.
func (b *Broker) Unsubscribe(topics ...string) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubCalls++
	for _, t := range topics {
		delete(b.subs, t)
	}
	return completed(nil)
}

// Disconnect implements mqtt.Session.
func (b *Broker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.disconnected = true
	b.subs = make(map[string]byte)
	b.mu.Unlock()
}

// token is an already completed pahomqtt.Token.
type token struct {
	err  error
	done chan struct{}
}

func completed(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { <-t.done; return true }
func (t *token) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }
