package services

import (
	"context"
	"errors"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/store"
)

// MessageService validates, persists and pages chat messages. It is
// transport-independent: the websocket layer broadcasts only after Save
// returns, so nothing unpersisted is ever fanned out.
type MessageService struct {
	store store.Store
}

func NewMessageService(st store.Store) *MessageService {
	return &MessageService{store: st}
}

// Save truncates the body, enforces membership for non-global rooms and
// persists the message with an atomically assigned per-room sequence
// number. The returned message carries the assigned seq and timestamp.
func (s *MessageService) Save(ctx context.Context, senderID string, roomID int64, body string) (*models.Message, error) {
	if r := []rune(body); len(r) > models.MaxBodyLen {
		body = string(r[:models.MaxBodyLen])
	}

	if roomID != models.GlobalRoomID {
		member, err := s.store.IsMember(ctx, roomID, senderID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotMember
		}
	}

	msg := &models.Message{
		RoomID: roomID,
		Sender: senderID,
		Body:   body,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SenderName resolves a user id to its display name, falling back to the
// raw id when the user row is gone.
func (s *MessageService) SenderName(ctx context.Context, userID string) string {
	if u, err := s.store.UserByID(ctx, userID); err == nil {
		return u.Username
	}
	return userID
}

// History pages the legacy global feed, newest first.
func (s *MessageService) History(ctx context.Context, page, size int) ([]models.HistoryItem, bool, error) {
	if page < 1 {
		page = 1
	}
	msgs, err := s.store.GlobalHistory(ctx, page, size)
	if err != nil {
		return nil, false, err
	}
	items := make([]models.HistoryItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, models.HistoryItem{
			Sender: m.Sender,
			Body:   m.Body,
			TS:     m.TS.Format(time.RFC3339),
			MsgID:  m.ID,
		})
	}
	return items, len(items) == size, nil
}

// RoomHistory pages one room in ascending sequence order. Non-global rooms
// require membership.
func (s *MessageService) RoomHistory(ctx context.Context, userID string, roomID int64, page, size int) ([]models.RoomHistoryItem, bool, error) {
	if page < 1 {
		page = 1
	}
	if roomID != models.GlobalRoomID {
		member, err := s.store.IsMember(ctx, roomID, userID)
		if err != nil {
			return nil, false, err
		}
		if !member {
			return nil, false, ErrNotMember
		}
	}

	msgs, err := s.store.RoomHistory(ctx, roomID, page, size)
	if err != nil {
		return nil, false, err
	}

	// Resolve sender names once per distinct sender.
	names := make(map[string]string)
	items := make([]models.RoomHistoryItem, 0, len(msgs))
	for _, m := range msgs {
		name, ok := names[m.Sender]
		if !ok {
			name = s.SenderName(ctx, m.Sender)
			names[m.Sender] = name
		}
		items = append(items, models.RoomHistoryItem{
			SenderID: m.Sender,
			Sender:   name,
			Body:     m.Body,
			TS:       m.TS.Format(time.RFC3339),
			Seq:      m.Seq,
		})
	}
	return items, len(items) == size, nil
}

// MarkRead advances the caller's last-read cursor in a room. Returns false
// for non-members, unknown rooms and regressions, all without side effects.
func (s *MessageService) MarkRead(ctx context.Context, userID string, roomID int64, seq int64) (bool, error) {
	if roomID == models.GlobalRoomID || seq <= 0 {
		return false, nil
	}
	ok, err := s.store.UpdateLastRead(ctx, roomID, userID, seq)
	if err != nil && errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return ok, err
}
