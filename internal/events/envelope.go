package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

// TypeDispatchCompleted is emitted once per finished dispatch.
const TypeDispatchCompleted = "dispatch.completed.v1"

// Meta carries event identity and correlation.
type Meta struct {
	// Request ID of the dispatch that produced the event
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service and version
	Producer *string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version
	Type string `json:"type"`
}

// Envelope is the wire format of every event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// DispatchCompleted summarizes a dispatch outcome.
type DispatchCompleted struct {
	Success          bool    `json:"success"`
	Status           int     `json:"status"`
	Endpoint         *string `json:"endpoint"`
	Round            string  `json:"round,omitempty"`
	Attempts         int     `json:"attempts"`
	ResponseTimeMs   *int64  `json:"responseTimeMs"`
	Instance         string  `json:"instance"`
	Number           string  `json:"number"`
	InstanceState    string  `json:"instanceState"`
	DeadlineExceeded bool    `json:"deadlineExceeded"`
}

// NewDispatchCompleted builds the outcome event of a dispatch.
func NewDispatchCompleted(producer, instance, number string, res *domain.DispatchResult, now time.Time) Envelope {
	data := DispatchCompleted{
		Success:          res.Success,
		Status:           res.Status,
		Endpoint:         res.Endpoint,
		Attempts:         len(res.Attempts),
		ResponseTimeMs:   res.ResponseTimeMs,
		Instance:         instance,
		Number:           MaskNumber(number),
		InstanceState:    res.Diagnostics.InstanceState,
		DeadlineExceeded: res.Diagnostics.DeadlineExceeded,
	}
	if res.Winner != nil {
		data.Round = string(res.Winner.Round)
	}

	correlation := res.RequestID
	meta := Meta{
		CorrelationID: &correlation,
		ID:            uuid.NewString(),
		Time:          now.UTC(),
		Type:          TypeDispatchCompleted,
	}
	if producer != "" {
		meta.Producer = &producer
	}

	return Envelope{Meta: meta, Data: data}
}

// MaskNumber keeps the country/area code and the last two digits.
// Example: 554892095244 -> 5548******44
func MaskNumber(number string) string {
	if len(number) <= 6 {
		return strings.Repeat("*", len(number))
	}
	return number[:4] + strings.Repeat("*", len(number)-6) + number[len(number)-2:]
}
