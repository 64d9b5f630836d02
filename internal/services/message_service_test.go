package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"chat-server/internal/models"
	"chat-server/internal/store"

	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*store.Memory, []string) {
	t.Helper()
	m := store.NewMemory()
	var ids []string
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := m.CreateUser(context.Background(), name, "hash")
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	return m, ids
}

func privateRoom(t *testing.T, m *store.Memory, a, b string) int64 {
	t.Helper()
	roomID, _, err := m.GetOrCreatePrivateRoom(context.Background(), a, b)
	require.NoError(t, err)
	return roomID
}

func TestMessageService_SaveTruncatesBody(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)

	// Multi-byte runes: truncation counts runes, not bytes.
	body := strings.Repeat("试", models.MaxBodyLen+100)
	msg, err := svc.Save(context.Background(), ids[0], models.GlobalRoomID, body)
	req.NoError(err)
	req.Equal(models.MaxBodyLen, len([]rune(msg.Body)))
	req.Equal(int64(1), msg.Seq)
}

func TestMessageService_SaveRejectsNonMember(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)
	roomID := privateRoom(t, m, ids[0], ids[1])

	_, err := svc.Save(context.Background(), ids[2], roomID, "hi")
	req.ErrorIs(err, ErrNotMember)

	// Nothing was persisted.
	msgs, err := m.RoomHistory(context.Background(), roomID, 1, 10)
	req.NoError(err)
	req.Empty(msgs)
}

func TestMessageService_GlobalRoomNeedsNoMembership(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)

	msg, err := svc.Save(context.Background(), ids[2], models.GlobalRoomID, "hello world")
	req.NoError(err)
	req.Equal(int64(1), msg.Seq)
}

func TestMessageService_RoomHistoryAscendingWithNames(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)
	roomID := privateRoom(t, m, ids[0], ids[1])

	for i := 1; i <= 3; i++ {
		_, err := svc.Save(context.Background(), ids[0], roomID, fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	items, hasMore, err := svc.RoomHistory(context.Background(), ids[1], roomID, 1, 10)
	req.NoError(err)
	req.False(hasMore)
	req.Len(items, 3)
	for i, item := range items {
		req.Equal(int64(i+1), item.Seq)
		req.Equal(ids[0], item.SenderID)
		req.Equal("alice", item.Sender)
	}

	_, _, err = svc.RoomHistory(context.Background(), ids[2], roomID, 1, 10)
	req.ErrorIs(err, ErrNotMember)
}

func TestMessageService_HistoryPaging(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)

	for i := 0; i < 5; i++ {
		_, err := svc.Save(context.Background(), ids[0], models.GlobalRoomID, fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	items, hasMore, err := svc.History(context.Background(), 1, 3)
	req.NoError(err)
	req.True(hasMore)
	req.Len(items, 3)
	req.Equal("m4", items[0].Body, "newest first")

	items, hasMore, err = svc.History(context.Background(), 2, 3)
	req.NoError(err)
	req.False(hasMore)
	req.Len(items, 2)
}

func TestMessageService_MarkRead(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)
	roomID := privateRoom(t, m, ids[0], ids[1])

	ok, err := svc.MarkRead(context.Background(), ids[0], roomID, 4)
	req.NoError(err)
	req.True(ok)

	// Regression: silently rejected.
	ok, err = svc.MarkRead(context.Background(), ids[0], roomID, 2)
	req.NoError(err)
	req.False(ok)

	// Non-member: no observable effect.
	ok, err = svc.MarkRead(context.Background(), ids[2], roomID, 9)
	req.NoError(err)
	req.False(ok)

	// The global room carries no read state.
	ok, err = svc.MarkRead(context.Background(), ids[0], models.GlobalRoomID, 9)
	req.NoError(err)
	req.False(ok)
}

func TestMessageService_ConcurrentSavesSequenceExactly(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewMessageService(m)
	roomID := privateRoom(t, m, ids[0], ids[1])

	const n = 100
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			sender := ids[i%2]
			_, err := svc.Save(context.Background(), sender, roomID, fmt.Sprintf("m%d", i))
			done <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		req.NoError(<-done)
	}

	items, _, err := svc.RoomHistory(context.Background(), ids[0], roomID, 1, n)
	req.NoError(err)
	req.Len(items, n)
	for i, item := range items {
		req.Equal(int64(i+1), item.Seq)
	}
}
