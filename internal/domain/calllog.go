package domain

import (
	"context"
	"time"
)

// CallRecord is the durable log entry for one external service call,
// consumed by cost and health monitoring. Every attempt is recorded,
// including early-abort paths.
type CallRecord struct {
	Source       string        `json:"source"`   // e.g. "arcgis", "overpass"
	Endpoint     string        `json:"endpoint"` // service identity, not the full query string
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RecordedAt   time.Time     `json:"recorded_at"`
}

// CallSink receives external-call records. Implementations must tolerate
// concurrent writes and must not block the caller on sink failures; a lost
// observability record is preferable to a failed enrichment.
type CallSink interface {
	Record(ctx context.Context, rec CallRecord)
}

// NewCallRecord fills the derived fields of a call record.
func NewCallRecord(source, endpoint string, d time.Duration, success bool, errMsg string) CallRecord {
	return CallRecord{
		Source:       source,
		Endpoint:     endpoint,
		Duration:     d,
		DurationMS:   d.Milliseconds(),
		Success:      success,
		ErrorMessage: errMsg,
		RecordedAt:   clock.Now().UTC(),
	}
}
