package models

import "encoding/json"

// Envelope is the wire frame for every inbound websocket event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound event payloads.

type JoinRoomEvent struct {
	RoomID int64 `json:"room_id"`
}

type LeaveRoomEvent struct {
	RoomID int64 `json:"room_id"`
}

type ChatEvent struct {
	RoomID int64  `json:"room_id"`
	Body   string `json:"body"`
}

type TypingEvent struct {
	RoomID   int64 `json:"room_id"`
	IsTyping bool  `json:"is_typing"`
}

type ReadReceiptEvent struct {
	RoomID      int64 `json:"room_id"`
	LastReadSeq int64 `json:"last_read_seq"`
}

// Outbound event payloads.

type OnlineEvent struct {
	Count int `json:"count"`
}

type ChatBroadcast struct {
	SenderID string `json:"sender_id"`
	Sender   string `json:"sender"`
	Body     string `json:"body"`
	TS       string `json:"ts"`
	RoomID   int64  `json:"room_id"`
	Seq      int64  `json:"seq"`
}

type TypingBroadcast struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type ReadReceiptBroadcast struct {
	UserID      string `json:"user_id"`
	RoomID      int64  `json:"room_id"`
	LastReadSeq int64  `json:"last_read_seq"`
}

// ErrorEvent is the structured rejection sent back to the offending session
// only. Code 1 mirrors the HTTP error body shape.
type ErrorEvent struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
