package protocol

import (
	"encoding/json"
	"time"
)

// Heartbeat message types.
const (
	MsgTypePing = "PING"
	MsgTypePong = "PONG"
)

// Ping is the liveness probe sent over a healthy connection.
type Ping struct {
	MsgType string `json:"msgType"`
	PingAt  int64  `json:"pingAt"` // Unix milliseconds
}

// EncodePing returns the wire text of a ping stamped with at.
func EncodePing(at time.Time) string {
	data, _ := json.Marshal(Ping{MsgType: MsgTypePing, PingAt: at.UnixMilli()})
	return string(data)
}
