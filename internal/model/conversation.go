package model

import "time"

// ConversationSession is an append-only turn log for one session, identified
// by a string UUID. History is encoded as alternating lines
// "User: ..." / "Assistant: ...". Sources attached to each assistant turn
// are tracked in parallel (one inner slice per assistant turn, in order).
type ConversationSession struct {
	SessionID   string     `json:"sessionId"`
	History     string     `json:"history"`
	Sources     [][]Source `json:"sources,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUpdated time.Time  `json:"lastUpdated"`
}
