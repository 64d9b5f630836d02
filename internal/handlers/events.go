package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chat-server/internal/hub"
	"chat-server/internal/logger"
	"chat-server/internal/models"
	"chat-server/internal/services"

	"go.uber.org/zap"
)

// EventRouter dispatches inbound websocket events by name. One router is
// shared by all sessions; each session's read loop calls Dispatch
// sequentially, so a session's own events keep their order.
type EventRouter struct {
	hub      *hub.Hub
	rooms    *services.RoomService
	messages *services.MessageService

	table map[string]func(ctx context.Context, s *hub.Session, data json.RawMessage)
}

func NewEventRouter(h *hub.Hub, rooms *services.RoomService, messages *services.MessageService) *EventRouter {
	r := &EventRouter{hub: h, rooms: rooms, messages: messages}
	r.table = map[string]func(ctx context.Context, s *hub.Session, data json.RawMessage){
		"join_room":    r.onJoinRoom,
		"leave_room":   r.onLeaveRoom,
		"chat":         r.onChat,
		"typing":       r.onTyping,
		"read_receipt": r.onReadReceipt,
	}
	return r
}

func (r *EventRouter) Dispatch(ctx context.Context, s *hub.Session, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Debug("malformed event frame", zap.String("conn_id", s.ID), zap.Error(err))
		return
	}
	handler, ok := r.table[env.Event]
	if !ok {
		logger.Debug("unknown event", zap.String("event", env.Event), zap.String("conn_id", s.ID))
		return
	}
	handler(ctx, s, env.Data)
}

// onJoinRoom subscribes the session when it is the global room or the user
// is a member; anything else is silently ignored.
func (r *EventRouter) onJoinRoom(ctx context.Context, s *hub.Session, data json.RawMessage) {
	var ev models.JoinRoomEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	member, err := r.rooms.IsMember(ctx, ev.RoomID, s.UserID)
	if err != nil {
		logger.Error("membership check failed", zap.Int64("room_id", ev.RoomID), zap.Error(err))
		return
	}
	if !member {
		return
	}
	r.hub.Join(s, ev.RoomID)
	logger.Debug("joined room", zap.String("user_id", s.UserID), zap.Int64("room_id", ev.RoomID))
}

func (r *EventRouter) onLeaveRoom(ctx context.Context, s *hub.Session, data json.RawMessage) {
	var ev models.LeaveRoomEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	r.hub.Leave(s, ev.RoomID)
}

// onChat persists first, then broadcasts: a failed save produces no
// fan-out, a non-member gets a structured rejection and nothing else
// happens.
func (r *EventRouter) onChat(ctx context.Context, s *hub.Session, data json.RawMessage) {
	var ev models.ChatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	msg, err := r.messages.Save(ctx, s.UserID, ev.RoomID, ev.Body)
	if err != nil {
		if errors.Is(err, services.ErrNotMember) {
			s.Send("error", models.ErrorEvent{Code: 1, Msg: "not a member of this room"})
			return
		}
		logger.Error("save message failed", zap.Int64("room_id", ev.RoomID), zap.Error(err))
		s.Send("error", models.ErrorEvent{Code: 1, Msg: "failed to send message"})
		return
	}

	r.hub.BroadcastRoom(ev.RoomID, "chat", models.ChatBroadcast{
		SenderID: s.UserID,
		Sender:   s.Username,
		Body:     msg.Body,
		TS:       msg.TS.Format(time.RFC3339),
		RoomID:   ev.RoomID,
		Seq:      msg.Seq,
	})
}

// onTyping fans out to the room minus the sender. No persistence and, like
// the source, no membership check.
func (r *EventRouter) onTyping(ctx context.Context, s *hub.Session, data json.RawMessage) {
	var ev models.TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	r.hub.BroadcastRoomExcept(ev.RoomID, s.ID, "typing", models.TypingBroadcast{
		UserID:   s.UserID,
		Username: s.Username,
		IsTyping: ev.IsTyping,
	})
}

// onReadReceipt advances the membership's last-read cursor and echoes the
// update to the room. Non-members and regressions are silent no-ops.
func (r *EventRouter) onReadReceipt(ctx context.Context, s *hub.Session, data json.RawMessage) {
	var ev models.ReadReceiptEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	ok, err := r.messages.MarkRead(ctx, s.UserID, ev.RoomID, ev.LastReadSeq)
	if err != nil {
		logger.Error("read receipt update failed", zap.Int64("room_id", ev.RoomID), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	r.hub.BroadcastRoom(ev.RoomID, "read_receipt", models.ReadReceiptBroadcast{
		UserID:      s.UserID,
		RoomID:      ev.RoomID,
		LastReadSeq: ev.LastReadSeq,
	})
}
