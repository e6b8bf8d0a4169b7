package recorder

import "time"

// Delivery describes one record forwarded to a client.
type Delivery struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`   // 1-based position within the session
	Phase     string    `json:"phase"` // "burst" or "steady"
	Bytes     int       `json:"bytes"`
	EOF       bool      `json:"eof,omitempty"`
}
