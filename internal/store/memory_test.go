package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"chat-server/internal/models"

	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T, m *Memory, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		u, err := m.CreateUser(context.Background(), name, "hash")
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}
	return ids
}

func befriend(t *testing.T, m *Memory, a, b string) {
	t.Helper()
	require.NoError(t, m.CreateFriendRequest(context.Background(), a, b))
	settled, err := m.SettleFriendRequest(context.Background(), b, a, true)
	require.NoError(t, err)
	require.True(t, settled)
}

func TestMemory_CreateUser_SequentialIDs(t *testing.T) {
	req := require.New(t)
	m := NewMemory()

	ids := seedUsers(t, m, "alice", "bob")
	req.Equal("10000001", ids[0])
	req.Equal("10000002", ids[1])

	_, err := m.CreateUser(context.Background(), "alice", "hash")
	req.ErrorIs(err, ErrUserExists)
}

func TestMemory_SaveMessage_ConcurrentSequences(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	const n = 100
	const roomID = int64(7)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			msg := &models.Message{RoomID: roomID, Sender: "10000001", Body: fmt.Sprintf("m%d", i)}
			require.NoError(t, m.SaveMessage(ctx, msg))
		}(i)
	}
	wg.Wait()

	msgs, err := m.RoomHistory(ctx, roomID, 1, n)
	req.NoError(err)
	req.Len(msgs, n)
	for i, msg := range msgs {
		req.Equal(int64(i+1), msg.Seq, "sequence must be gapless and ascending")
	}

	// Other rooms are unaffected.
	other, err := m.RoomHistory(ctx, 8, 1, n)
	req.NoError(err)
	req.Empty(other)
}

func TestMemory_GlobalHistory_NewestFirst(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		roomID := int64(i % 2) // interleave rooms
		req.NoError(m.SaveMessage(ctx, &models.Message{RoomID: roomID, Sender: "u", Body: fmt.Sprintf("m%d", i)}))
	}

	msgs, err := m.GlobalHistory(ctx, 1, 3)
	req.NoError(err)
	req.Len(msgs, 3)
	req.Equal("m4", msgs[0].Body)
	req.Equal("m3", msgs[1].Body)
	req.Equal("m2", msgs[2].Body)

	rest, err := m.GlobalHistory(ctx, 2, 3)
	req.NoError(err)
	req.Len(rest, 2)
	req.Equal("m1", rest[0].Body)
	req.Equal("m0", rest[1].Body)
}

func TestMemory_GetOrCreatePrivateRoom_UniquePerPair(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()
	ids := seedUsers(t, m, "alice", "bob")

	roomID, created, err := m.GetOrCreatePrivateRoom(ctx, ids[0], ids[1])
	req.NoError(err)
	req.True(created)

	// Reversed pair resolves to the same room.
	again, created, err := m.GetOrCreatePrivateRoom(ctx, ids[1], ids[0])
	req.NoError(err)
	req.False(created)
	req.Equal(roomID, again)

	members, err := m.RoomMembers(ctx, roomID)
	req.NoError(err)
	req.Len(members, 2)
}

func TestMemory_UpdateLastRead_Monotonic(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()
	ids := seedUsers(t, m, "alice", "bob", "carol")

	roomID, _, err := m.GetOrCreatePrivateRoom(ctx, ids[0], ids[1])
	req.NoError(err)

	ok, err := m.UpdateLastRead(ctx, roomID, ids[0], 5)
	req.NoError(err)
	req.True(ok)

	// Regression is rejected without mutating.
	ok, err = m.UpdateLastRead(ctx, roomID, ids[0], 3)
	req.NoError(err)
	req.False(ok)

	// Non-member has no effect.
	ok, err = m.UpdateLastRead(ctx, roomID, ids[2], 9)
	req.NoError(err)
	req.False(ok)

	members, err := m.RoomMembers(ctx, roomID)
	req.NoError(err)
	for _, mb := range members {
		if mb.UserID == ids[0] {
			req.Equal(int64(5), mb.LastReadSeq)
		}
	}
}

func TestMemory_Membership(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()
	ids := seedUsers(t, m, "alice", "bob", "carol")

	roomID, err := m.CreateGroupRoom(ctx, "team", ids[0], []string{ids[0], ids[1]})
	req.NoError(err)

	member, err := m.IsMember(ctx, roomID, ids[1])
	req.NoError(err)
	req.True(member)

	member, err = m.IsMember(ctx, roomID, ids[2])
	req.NoError(err)
	req.False(member)

	req.NoError(m.AddMember(ctx, roomID, ids[2]))
	req.ErrorIs(m.AddMember(ctx, roomID, ids[2]), ErrAlreadyMember)

	rooms, err := m.RoomsForUser(ctx, ids[2])
	req.NoError(err)
	req.Equal([]int64{roomID}, rooms)

	req.NoError(m.RemoveMember(ctx, roomID, ids[2]))
	rooms, err = m.RoomsForUser(ctx, ids[2])
	req.NoError(err)
	req.Empty(rooms)
}

func TestMemory_FriendRequestLifecycle(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()
	ids := seedUsers(t, m, "alice", "bob")

	friends, err := m.AreFriends(ctx, ids[0], ids[1])
	req.NoError(err)
	req.False(friends)

	req.NoError(m.CreateFriendRequest(ctx, ids[0], ids[1]))

	pending, err := m.HasPendingRequest(ctx, ids[1], ids[0])
	req.NoError(err)
	req.True(pending)

	settled, err := m.SettleFriendRequest(ctx, ids[1], ids[0], true)
	req.NoError(err)
	req.True(settled)

	friends, err = m.AreFriends(ctx, ids[0], ids[1])
	req.NoError(err)
	req.True(friends)

	// Nothing left to settle.
	settled, err = m.SettleFriendRequest(ctx, ids[1], ids[0], true)
	req.NoError(err)
	req.False(settled)

	list, err := m.FriendsOf(ctx, ids[0])
	req.NoError(err)
	req.Len(list, 1)
	req.Equal("bob", list[0].Username)
}
