// Package protocol defines the shape-operation wire format exchanged with the
// drawing service, and pure functions to encode and decode it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RequestType is the numeric operation tag of the canonical envelope.
type RequestType int

// Request type constants. FINALIZE and PAN extend the 0..5 range.
const (
	RequestInit     RequestType = 0
	RequestConnect  RequestType = 1
	RequestAdd      RequestType = 2
	RequestUpdate   RequestType = 3
	RequestRemove   RequestType = 4
	RequestNoop     RequestType = 5
	RequestFinalize RequestType = 6
	RequestPan      RequestType = 7
)

func (t RequestType) String() string {
	switch t {
	case RequestInit:
		return "INIT"
	case RequestConnect:
		return "CONNECT"
	case RequestAdd:
		return "ADD"
	case RequestUpdate:
		return "UPDATE"
	case RequestRemove:
		return "REMOVE"
	case RequestNoop:
		return "NOOP"
	case RequestFinalize:
		return "FINALIZE"
	case RequestPan:
		return "PAN"
	default:
		return fmt.Sprintf("RequestType(%d)", int(t))
	}
}

// Identity names the collaborative draft a message pertains to. Empty
// fields are omitted on the wire.
type Identity struct {
	DraftID   string
	DraftName string
}

// Operation is a closed sum type over shape mutations.
type Operation interface {
	RequestType() RequestType
	isOperation()
}

// Init carries the full shape set, typically sent by the remote side after
// a handshake.
type Init struct{ Shapes []Shape }

// Connect is the session handshake; the session itself travels in the
// message Identity.
type Connect struct{}

type Add struct{ Shapes []Shape }

// Update replaces the listed shapes, keyed by their ids.
type Update struct{ Shapes []Shape }

type Delete struct{ IDs []int64 }

type Noop struct{}

// Finalize marks a shape as done being drawn.
type Finalize struct{ ID int64 }

type Pan struct{ Offset Point }

func (Init) RequestType() RequestType     { return RequestInit }
func (Connect) RequestType() RequestType  { return RequestConnect }
func (Add) RequestType() RequestType      { return RequestAdd }
func (Update) RequestType() RequestType   { return RequestUpdate }
func (Delete) RequestType() RequestType   { return RequestRemove }
func (Noop) RequestType() RequestType     { return RequestNoop }
func (Finalize) RequestType() RequestType { return RequestFinalize }
func (Pan) RequestType() RequestType      { return RequestPan }

func (Init) isOperation()     {}
func (Connect) isOperation()  {}
func (Add) isOperation()      {}
func (Update) isOperation()   {}
func (Delete) isOperation()   {}
func (Noop) isOperation()     {}
func (Finalize) isOperation() {}
func (Pan) isOperation()      {}

// Message is one operation stamped with the session it belongs to.
type Message struct {
	Identity Identity
	Op       Operation
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrHeartbeat is returned by Decode for liveness frames. It is not a
// failure; callers simply have nothing to apply.
var ErrHeartbeat = errors.New("protocol: heartbeat frame")

// DecodeError reports a message that could not be turned into an operation.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: decode: %s: %v", e.Reason, e.Err)
	}
	return "protocol: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Wire structures
// ---------------------------------------------------------------------------

// envelope is the canonical outbound message.
type envelope struct {
	DraftID     string       `json:"draftId,omitempty"`
	DraftName   string       `json:"draftName,omitempty"`
	RequestType RequestType  `json:"requestType"`
	Content     *wireContent `json:"content,omitempty"`
}

type wireContent struct {
	Shapes []wireShape `json:"shapes,omitempty"`
	Offset *Point      `json:"offset,omitempty"`
}

type wireShape struct {
	ShapeID wireID          `json:"shapeId"`
	Type    string          `json:"type,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// inbound accepts every envelope shape this client understands: canonical,
// legacy, and heartbeat.
type inbound struct {
	DraftID     string       `json:"draftId"`
	DraftName   string       `json:"draftName"`
	RequestType *RequestType `json:"requestType"`
	Content     *wireContent `json:"content"`

	Op     string        `json:"op"`
	Shape  *legacyShape  `json:"shape"`
	Patch  *legacyShape  `json:"patch"`
	Shapes []legacyShape `json:"shapes"`

	MsgType string `json:"msgType"`
}

// legacyShape carries its fields under "data". Bare shape lists seen in the
// wild use "content" and "shapeId" instead; both spellings are accepted.
type legacyShape struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Content json.RawMessage `json:"content"`
	ShapeID wireID          `json:"shapeId"`
}

// wireID is a shape id as it appears on the wire. Peers send it either as a
// JSON string or as a bare number; both decode to the same text.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*id = wireID(n.String())
	default:
		// Bools, objects and arrays carry no id. Only this shape is affected.
		*id = ""
	}
	return nil
}
