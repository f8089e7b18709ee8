package domain

import "encoding/json"

// Round names a phase of the delivery cascade.
type Round string

const (
	RoundDiscovered Round = "discovered"
	RoundQuick      Round = "quick"
	RoundPrimary    Round = "primary"
	RoundMatrix     Round = "matrix"
)

// PayloadShape tags the field-naming convention used to encode (recipient, text).
type PayloadShape string

const (
	ShapeNumberText     PayloadShape = "number_text"
	ShapePhoneMessage   PayloadShape = "phone_message"
	ShapeTextMessage    PayloadShape = "number_textMessage"
	ShapeRemoteJid      PayloadShape = "remoteJid_message"
	ShapeSession        PayloadShape = "session_number_text"
	ShapeInstanceInBody PayloadShape = "instance_number_text"
	ShapeQuery          PayloadShape = "query"
)

// Content types sent to the gateway.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// AttemptRecord is one network try. Records are never mutated once appended.
type AttemptRecord struct {
	Round       Round        `json:"round"`
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	Route       string       `json:"route"`
	Payload     PayloadShape `json:"payload"`
	ContentType string       `json:"contentType,omitempty"`
	Status      *int         `json:"status"`
	OK          bool         `json:"ok"`
	ElapsedMs   int64        `json:"elapsedMs"`
	Body        any          `json:"body"`
	Error       string       `json:"error,omitempty"`

	// EndpointID is set on discovered-phase records.
	EndpointID string `json:"-"`
}

// Succeeded reports whether the gateway accepted the message.
func (a *AttemptRecord) Succeeded() bool {
	return a.OK || (a.Status != nil && *a.Status == 201)
}

// DecodeBody returns raw as JSON when it parses, otherwise as text.
func DecodeBody(raw []byte) any {
	if len(raw) > 0 && json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
