package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireAndForget_TopicsAndPayloads(t *testing.T) {
	h := newHarness(t, Config{}, dev1)
	ctx := context.Background()

	require.NoError(t, h.svc.Start(ctx, "dev-1", "eco", 40))
	require.NoError(t, h.svc.Stop(ctx, "dev-1"))
	require.NoError(t, h.svc.SetSetting(ctx, "dev-1", "threshold", 12.5))
	require.NoError(t, h.svc.SendCommand(ctx, "dev-1", "left", "step"))
	require.NoError(t, h.svc.RequestUpdate(ctx, "dev-1", UpdateImage{Version: "1.4.0", URL: "https://example.com/v1.4.0.bin"}))

	tests := []struct {
		topic string
		op    string
		key   string
		want  any
	}{
		{"DEV1/start/eco/req", "start/eco", "speed", float64(40)},
		{"DEV1/stop/req", "stop", "speed", float64(0)},
		{"DEV1/set/threshold/req", "set/threshold", "value", 12.5},
		{"DEV1/cmd/left/req", "cmd/left", "value", "step"},
		{"DEV1/cmd/update/req", "cmd/update", "version", "1.4.0"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			sent := h.broker.PublishedTo(tt.topic)
			require.Len(t, sent, 1)
			assert.Equal(t, byte(1), sent[0].QoS)
			body := decode(t, sent[0].Payload)
			assert.Equal(t, "request", body["type"])
			assert.Equal(t, tt.op, body["operation"])
			assert.Equal(t, tt.want, body[tt.key])
		})
	}

	assert.Zero(t, h.client.HandlerCount())
	for _, ev := range h.observer.Events() {
		assert.Equal(t, OutcomeSuccess, ev.Outcome, ev.Operation)
		assert.Equal(t, "DEV1", ev.Serial)
	}
}

func TestFireAndForget_Validation(t *testing.T) {
	h := newHarness(t, Config{}, dev1)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Start(ctx, "dev-1", "", 1), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.Start(ctx, "dev-1", "eco/+", 1), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.Start(ctx, "dev-1", "eco", -1), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.SetSetting(ctx, "dev-1", "threshold", nil), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.SendCommand(ctx, "dev-1", "#", 1), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.SendCommand(ctx, "dev-1", "update", 1), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.RequestUpdate(ctx, "dev-1", UpdateImage{Version: "1.0"}), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.RequestUpdate(ctx, "dev-1", UpdateImage{URL: "https://x/y"}), ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.Stop(ctx, ""), ErrInvalidArgument)

	assert.Empty(t, h.broker.Published())
}

func TestFireAndForget_Failures(t *testing.T) {
	h := newHarness(t, Config{}, dev1)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Stop(ctx, "dev-missing"), ErrDeviceNotFound)

	h.broker.SetConnected(false)
	err := h.svc.Start(ctx, "dev-1", "eco", 10)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.True(t, OutcomeOf(err).Retryable())

	h.broker.SetConnected(true)
	h.broker.FailPublish(errors.New("quota"))
	assert.ErrorIs(t, h.svc.Stop(ctx, "dev-1"), ErrTransportUnavailable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	h.broker.FailPublish(nil)
	assert.ErrorIs(t, h.svc.Stop(cancelled, "dev-1"), ErrCancelled)
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeSuccess},
		{&RejectedError{Operation: "pair", Status: "rejected"}, OutcomeRejected},
		{ErrTimeout, OutcomeTimeout},
		{ErrTransportUnavailable, OutcomeTransportUnavailable},
		{ErrSuperseded, OutcomeSuperseded},
		{ErrCancelled, OutcomeCancelled},
		{ErrDeviceNotFound, OutcomeError},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutcomeOf(tt.err), "%v", tt.err)
	}
	assert.False(t, OutcomeSuperseded.Retryable())
}
