// Package logging persists an audit trail of dispatch fan-outs and accept
// attempts.
package logging

import (
	"context"
	"time"
)

// Kind distinguishes audit entries.
type Kind string

const (
	KindDispatch Kind = "dispatch"
	KindAccept   Kind = "accept"
)

// LogRecord captures one dispatch decision or accept attempt.
type LogRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Kind             Kind      `json:"kind"`
	TicketID         string    `json:"ticket_id"`
	Priority         int       `json:"priority"`
	RescuersSelected []string  `json:"rescuers_selected"`
	Response         Result    `json:"response"`
}

// Result mirrors the dispatch and assignment results for logging purposes.
type Result struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Notified  int                `json:"notified"`
	Delivered map[string]bool    `json:"delivered,omitempty"`
	Errors    map[string]string  `json:"errors,omitempty"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	Distances map[string]float64 `json:"distances,omitempty"`
	RescuerID string             `json:"rescuer_id,omitempty"`
}

// LogQuery defines filters for retrieving records. Zero fields match all.
type LogQuery struct {
	Start     time.Time
	End       time.Time
	TicketID  string
	RescuerID string
	Kind      Kind
}

// Match reports whether r satisfies q.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.TicketID != "" && r.TicketID != q.TicketID {
		return false
	}
	if q.RescuerID == "" || r.Response.RescuerID == q.RescuerID {
		return true
	}
	for _, id := range r.RescuersSelected {
		if id == q.RescuerID {
			return true
		}
	}
	return false
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
