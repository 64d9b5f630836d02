package models

import "time"

// MaxBodyLen is the chat body limit in runes; longer bodies are truncated,
// not rejected.
const MaxBodyLen = 2000

// Message is a persisted chat message. Seq is assigned by the store at save
// time and is strictly increasing and gapless within a room, starting at 1.
type Message struct {
	ID     int64     `json:"msg_id"`
	RoomID int64     `json:"room_id"`
	Seq    int64     `json:"seq"`
	Type   int       `json:"type"`
	Sender string    `json:"sender"`
	Body   string    `json:"body"`
	Status int       `json:"status"`
	TS     time.Time `json:"ts"`
}

// HistoryItem is one entry of the legacy global history endpoint
// (descending insertion order, no seq exposed).
type HistoryItem struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
	TS     string `json:"ts"`
	MsgID  int64  `json:"msg_id"`
}

// RoomHistoryItem is one entry of the per-room history endpoint
// (ascending sequence order).
type RoomHistoryItem struct {
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender"`
	Body     string `json:"body"`
	TS       string `json:"ts"`
	Seq      int64  `json:"seq"`
}
