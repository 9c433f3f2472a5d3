package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_forecast/internal/engine"
)

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.ClientCount())

	c := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())

	// Unregistering twice must not panic or double-close the channel.
	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := &Client{hub: hub, send: make(chan []byte, 4)}
	b := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast([]byte(`{"type":"run:event"}`))

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			assert.JSONEq(t, `{"type":"run:event"}`, string(msg))
		default:
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubBroadcastDropsOnFullBuffer(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast([]byte("first"))
	hub.Broadcast([]byte("second")) // buffer full, dropped

	assert.Equal(t, "first", string(<-c.send))
	select {
	case msg := <-c.send:
		t.Fatalf("expected dropped message, got %q", msg)
	default:
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	raw, err := NewEnvelope(TypeRunStarted, RunStartPayload{Date: "2025-06-21"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, TypeRunStarted, env.Type)

	var p RunStartPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "2025-06-21", p.Date)
}

func TestBridgeEmitBroadcastsRunEvent(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.Register(c)

	bridge := NewBridge(hub)
	ts := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)
	bridge.Emit("dc_power", map[string]any{"peak_w": 4200.0}, ts, "home", "roof-south")

	var env Envelope
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, TypeRunEvent, env.Type)

	var p RunEventPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "dc_power", p.Stage)
	assert.Equal(t, "2025-06-21T12:00:00Z", p.TS)
	assert.Equal(t, "home", p.Site)
	assert.Equal(t, "roof-south", p.Array)
	assert.Equal(t, 4200.0, p.Payload["peak_w"])
}

func TestBridgeRunLifecycleMessages(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.Register(c)
	bridge := NewBridge(hub)

	bridge.RunStarted("2025-06-21")
	var env Envelope
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, TypeRunStarted, env.Type)

	bridge.RunFailed(assert.AnError)
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, TypeRunFailed, env.Type)
	var fp RunFailedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &fp))
	assert.Equal(t, assert.AnError.Error(), fp.Error)
}

func TestCompletedPayloadCountsFailedSites(t *testing.T) {
	result := &engine.Result{
		Day:            time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
		TotalEnergyKWh: 24.5,
		Sites: []engine.SiteResult{
			{SiteID: "home"},
			{SiteID: "cabin", Err: assert.AnError},
		},
	}

	p := completedPayload(result)
	assert.Equal(t, "2025-06-21", p.Date)
	assert.Equal(t, 24.5, p.TotalEnergyKWh)
	assert.Equal(t, 2, p.SiteCount)
	assert.Equal(t, 1, p.FailedSites)
}
