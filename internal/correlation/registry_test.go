package correlation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgpanel/core/internal/infrastructure/config"
	"github.com/tgpanel/core/internal/infrastructure/mqtt"
	"github.com/tgpanel/core/internal/infrastructure/mqtt/mqtttest"
)

const (
	pairKey   = "ABC123/pair"
	pairTopic = "ABC123/pair/res"
)

func newTestRegistry(t *testing.T) (*Registry, *mqtt.Client, *mqtttest.Broker) {
	t.Helper()
	broker := mqtttest.NewBroker()
	client := mqtt.NewClient(broker, config.MQTTConfig{QoS: 1})
	broker.Attach(client.Dispatch)
	reg := NewRegistry(client)
	t.Cleanup(func() { reg.Close() }) //nolint:errcheck // test cleanup
	return reg, client, broker
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not resolve")
	}
}

func TestBeginComplete(t *testing.T) {
	reg, client, broker := newTestRegistry(t)

	h, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.NoError(t, err)
	assert.True(t, reg.Pending(pairKey))
	assert.True(t, broker.IsSubscribed(pairTopic))

	require.True(t, broker.Inject(pairTopic, []byte(`{"type":"response","operation":"pair","status":"accepted"}`)))

	resp, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, pairTopic, resp.Topic)

	assert.False(t, reg.Pending(pairKey))
	assert.Zero(t, reg.Len())
	assert.False(t, broker.IsSubscribed(pairTopic))
	assert.Zero(t, client.HandlerCount())
	assert.EqualValues(t, 1, reg.Stats().Completed)
}

func TestBeginTimeout(t *testing.T) {
	reg, client, broker := newTestRegistry(t)

	start := time.Now()
	h, err := reg.Begin(pairKey, pairTopic, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	assert.False(t, reg.Pending(pairKey))
	assert.Empty(t, broker.Subscriptions())
	assert.Zero(t, client.HandlerCount())
	assert.EqualValues(t, 1, reg.Stats().TimedOut)

	// A response after the deadline is not delivered anywhere.
	assert.False(t, broker.Inject(pairTopic, []byte(`{"type":"response","status":"accepted"}`)))
}

func TestSupersession(t *testing.T) {
	reg, client, broker := newTestRegistry(t)

	first, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.NoError(t, err)
	second, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.NoError(t, err)

	waitDone(t, first)
	_, err = first.Result()
	require.ErrorIs(t, err, ErrSuperseded)

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, client.HandlerCount())

	require.True(t, broker.Inject(pairTopic, []byte(`{"type":"response","status":"accepted"}`)))
	resp, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp.Status)

	assert.Empty(t, broker.Subscriptions())
	assert.EqualValues(t, 1, reg.Stats().Superseded)
}

func TestLateCompletionAfterTimeout(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	old, err := reg.Begin(pairKey, pairTopic, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = old.Wait(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	fresh, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.NoError(t, err)

	// The old generation's response handler fires late.
	late := reg.responseHandler(pairKey, old.id)
	require.NoError(t, late(pairTopic, []byte(`{"type":"response","status":"accepted"}`)))

	assert.True(t, reg.Pending(pairKey), "new request must stay pending")
	select {
	case <-fresh.Done():
		t.Fatal("new request resolved by a stale completion")
	default:
	}
}

func TestMalformedResponseKeepsPending(t *testing.T) {
	reg, _, broker := newTestRegistry(t)

	h, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.NoError(t, err)

	broker.Inject(pairTopic, []byte(`{not json`))
	broker.Inject(pairTopic, []byte(`{"type":"request","operation":"pair"}`))

	assert.True(t, reg.Pending(pairKey))
	assert.EqualValues(t, 1, reg.Stats().Malformed)

	broker.Inject(pairTopic, []byte(`{"type":"response","status":"rejected","message":"button not pressed"}`))
	resp, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rejected", resp.Status)
	assert.Equal(t, "button not pressed", resp.Message)
}

func TestPerKeyIsolation(t *testing.T) {
	reg, _, broker := newTestRegistry(t)

	a, err := reg.Begin("A/status", "A/status/res", time.Second)
	require.NoError(t, err)
	b, err := reg.Begin("B/status", "B/status/res", time.Second)
	require.NoError(t, err)

	broker.Inject("A/status/res", []byte(`garbage`))
	broker.Inject("B/status/res", []byte(`{"type":"response","status":"ok"}`))

	_, err = b.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, reg.Pending("A/status"))

	reg.Cancel("A/status", nil)
	waitDone(t, a)
}

func TestWaitContextCancelled(t *testing.T) {
	reg, _, broker := newTestRegistry(t)

	h, err := reg.Begin(pairKey, pairTopic, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = h.Wait(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, reg.Pending(pairKey))
	assert.Empty(t, broker.Subscriptions())
}

func TestCancel(t *testing.T) {
	reg, _, broker := newTestRegistry(t)

	assert.False(t, reg.Cancel("nope/pair", nil))

	h, err := reg.Begin(pairKey, pairTopic, time.Minute)
	require.NoError(t, err)

	reason := errors.New("user left")
	assert.True(t, reg.Cancel(pairKey, reason))
	waitDone(t, h)

	_, err = h.Result()
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, reason)
	assert.Empty(t, broker.Subscriptions())
	assert.False(t, reg.Cancel(pairKey, nil), "second cancel is a no-op")
}

func TestClose(t *testing.T) {
	reg, _, broker := newTestRegistry(t)

	var handles []*Handle
	for _, serial := range []string{"A", "B", "C"} {
		h, err := reg.Begin(Key(serial, "status"), serial+"/status/res", time.Minute)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.NoError(t, reg.Close())
	for _, h := range handles {
		waitDone(t, h)
		_, err := h.Result()
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, ErrClosed)
	}
	assert.Empty(t, broker.Subscriptions())

	_, err := reg.Begin(pairKey, pairTopic, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBeginSubscribeFailure(t *testing.T) {
	reg, _, broker := newTestRegistry(t)
	broker.FailSubscribe(errors.New("acl denied"))

	_, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.ErrorIs(t, err, mqtt.ErrSubscribeFailed)
	assert.Zero(t, reg.Len())
}

func TestBeginTransportDown(t *testing.T) {
	reg, _, broker := newTestRegistry(t)
	broker.SetConnected(false)

	_, err := reg.Begin(pairKey, pairTopic, time.Second)
	require.ErrorIs(t, err, mqtt.ErrNotConnected)
	assert.Zero(t, reg.Len())
}

func TestBeginInvalid(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Begin("", pairTopic, time.Second)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = reg.Begin(pairKey, "", time.Second)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = reg.Begin(pairKey, pairTopic, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCall(t *testing.T) {
	reg, _, broker := newTestRegistry(t)
	broker.Respond("ABC123/status/req", func(string, []byte) {
		broker.Inject("ABC123/status/res", []byte(`{"type":"response","operation":"status","status":"ok","payload":{"speed":3}}`))
	})

	resp, err := reg.Call(context.Background(), Request{
		Key:           Key("ABC123", "status"),
		RequestTopic:  "ABC123/status/req",
		ResponseTopic: "ABC123/status/res",
		Payload:       []byte(`{"type":"request","operation":"status"}`),
		Delivery:      mqtt.DeliveryOptions{Assurance: mqtt.AtLeastOnce},
		Timeout:       time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.JSONEq(t, `{"speed":3}`, string(resp.Payload))
	assert.Len(t, broker.PublishedTo("ABC123/status/req"), 1)
	assert.Empty(t, broker.Subscriptions())
}

func TestCallPublishFailure(t *testing.T) {
	reg, _, broker := newTestRegistry(t)
	broker.FailPublish(errors.New("connection reset"))

	_, err := reg.Call(context.Background(), Request{
		Key:           pairKey,
		RequestTopic:  "ABC123/pair/req",
		ResponseTopic: pairTopic,
		Timeout:       time.Second,
	})
	require.ErrorIs(t, err, mqtt.ErrPublishFailed)
	assert.Zero(t, reg.Len())
	assert.Empty(t, broker.Subscriptions())
}

func TestRaceResponseVersusCancel(t *testing.T) {
	reg, client, broker := newTestRegistry(t)

	for i := 0; i < 200; i++ {
		h, err := reg.Begin(pairKey, pairTopic, 5*time.Millisecond)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			broker.Inject(pairTopic, []byte(`{"type":"response","status":"accepted"}`))
		}()
		go func() {
			defer wg.Done()
			reg.Cancel(pairKey, nil)
		}()
		wg.Wait()
		waitDone(t, h)

		resp, err := h.Result()
		// Exactly one of the racers wins.
		assert.True(t, (resp != nil) != (err != nil), "iteration %d: resp=%v err=%v", i, resp, err)
	}

	assert.Zero(t, reg.Len())
	assert.Zero(t, client.HandlerCount())
	assert.Empty(t, broker.Subscriptions())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ABC123/pair", Key("ABC123", "pair"))
	assert.Equal(t, "ABC123/start/eco", Key("ABC123", "start/eco"))
}
