package ws

import (
	"encoding/json"
	"time"

	"solar_forecast/internal/debug"
	"solar_forecast/internal/engine"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeRunStart = "run:start"

	// Server -> Client
	TypeRunStarted   = "run:started"
	TypeRunEvent     = "run:event"
	TypeRunCompleted = "run:completed"
	TypeRunFailed    = "run:failed"
)

// RunStartPayload asks the server to simulate one day.
type RunStartPayload struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD, empty means today
}

// RunEventPayload is one pipeline audit event.
type RunEventPayload struct {
	Stage   string         `json:"stage"`
	TS      string         `json:"ts"`
	Site    string         `json:"site,omitempty"`
	Array   string         `json:"array,omitempty"`
	Payload map[string]any `json:"payload"`
}

// RunCompletedPayload summarizes a finished run.
type RunCompletedPayload struct {
	Date           string  `json:"date"`
	TotalEnergyKWh float64 `json:"total_energy_kwh"`
	SiteCount      int     `json:"site_count"`
	FailedSites    int     `json:"failed_sites"`
}

// RunFailedPayload reports a run that never produced results.
type RunFailedPayload struct {
	Error string `json:"error"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func eventPayload(stage string, payload map[string]any, ts time.Time, site, array string) RunEventPayload {
	return RunEventPayload{
		Stage:   stage,
		TS:      ts.Format(time.RFC3339),
		Site:    site,
		Array:   array,
		Payload: payload,
	}
}

// completedPayload flattens a run result for the stream.
func completedPayload(result *engine.Result) RunCompletedPayload {
	p := RunCompletedPayload{
		Date:           result.Day.Format("2006-01-02"),
		TotalEnergyKWh: result.TotalEnergyKWh,
		SiteCount:      len(result.Sites),
	}
	for _, s := range result.Sites {
		if s.Err != nil {
			p.FailedSites++
		}
	}
	return p
}

var _ debug.Sink = (*Bridge)(nil)
