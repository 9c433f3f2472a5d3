package ws

import (
	"log"
	"time"

	"solar_forecast/internal/engine"
)

// Bridge is a debug sink that broadcasts pipeline audit events to the
// WebSocket hub, letting clients watch a forecast run stage by stage.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

// Emit implements debug.Sink.
func (b *Bridge) Emit(stage string, payload map[string]any, ts time.Time, site, array string) {
	msg, err := NewEnvelope(TypeRunEvent, eventPayload(stage, payload, ts, site, array))
	if err != nil {
		log.Printf("Error marshaling run event: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

// RunStarted announces a new simulation to all clients.
func (b *Bridge) RunStarted(date string) {
	msg, err := NewEnvelope(TypeRunStarted, RunStartPayload{Date: date})
	if err != nil {
		log.Printf("Error marshaling run start: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

// RunCompleted broadcasts the run summary.
func (b *Bridge) RunCompleted(result *engine.Result) {
	msg, err := NewEnvelope(TypeRunCompleted, completedPayload(result))
	if err != nil {
		log.Printf("Error marshaling run summary: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}

// RunFailed broadcasts a run that aborted before producing results.
func (b *Bridge) RunFailed(runErr error) {
	msg, err := NewEnvelope(TypeRunFailed, RunFailedPayload{Error: runErr.Error()})
	if err != nil {
		log.Printf("Error marshaling run failure: %v", err)
		return
	}
	b.hub.Broadcast(msg)
}
