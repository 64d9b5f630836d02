package services

import (
	"context"
	"testing"

	"chat-server/internal/store"

	"github.com/stretchr/testify/require"
)

func befriend(t *testing.T, m *store.Memory, a, b string) {
	t.Helper()
	require.NoError(t, m.CreateFriendRequest(context.Background(), a, b))
	settled, err := m.SettleFriendRequest(context.Background(), b, a, true)
	require.NoError(t, err)
	require.True(t, settled)
}

func TestRoomService_CreatePrivate_FriendGate(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)
	ctx := context.Background()

	_, _, err := svc.CreatePrivate(ctx, ids[0], ids[0])
	req.ErrorIs(err, ErrSelfTarget)

	_, _, err = svc.CreatePrivate(ctx, ids[0], "99999999")
	req.ErrorIs(err, ErrUserNotFound)

	_, _, err = svc.CreatePrivate(ctx, ids[0], ids[1])
	req.ErrorIs(err, ErrNotFriends)

	befriend(t, m, ids[0], ids[1])

	roomID, created, err := svc.CreatePrivate(ctx, ids[0], ids[1])
	req.NoError(err)
	req.True(created)

	// Second creation, reversed direction, resolves to the same room.
	again, created, err := svc.CreatePrivate(ctx, ids[1], ids[0])
	req.NoError(err)
	req.False(created)
	req.Equal(roomID, again)
}

func TestRoomService_CreateGroup_SkipsNonFriends(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)
	ctx := context.Background()

	befriend(t, m, ids[0], ids[1])
	// carol is not a friend of alice and must be skipped.

	roomID, added, err := svc.CreateGroup(ctx, ids[0], "team", []string{ids[1], ids[2], ids[1]})
	req.NoError(err)
	req.Equal([]string{ids[0], ids[1]}, added)

	member, err := m.IsMember(ctx, roomID, ids[2])
	req.NoError(err)
	req.False(member)
}

func TestRoomService_AddMember_OwnerAndFriendGates(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)
	ctx := context.Background()

	befriend(t, m, ids[0], ids[1])
	roomID, _, err := svc.CreateGroup(ctx, ids[0], "team", []string{ids[1]})
	req.NoError(err)

	// Non-owner may not add.
	_, err = svc.AddMember(ctx, ids[1], roomID, ids[2])
	req.ErrorIs(err, ErrNotOwner)

	// Owner may only add friends.
	_, err = svc.AddMember(ctx, ids[0], roomID, ids[2])
	req.ErrorIs(err, ErrNotFriends)

	befriend(t, m, ids[0], ids[2])
	room, err := svc.AddMember(ctx, ids[0], roomID, ids[2])
	req.NoError(err)
	req.Equal("team", room.Name)

	// Private rooms never take extra members.
	privID, _, err := m.GetOrCreatePrivateRoom(ctx, ids[0], ids[1])
	req.NoError(err)
	_, err = svc.AddMember(ctx, ids[0], privID, ids[2])
	req.ErrorIs(err, ErrNotGroup)
}

func TestRoomService_Leave_OwnerTransferAndDeletion(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)
	ctx := context.Background()

	befriend(t, m, ids[0], ids[1])
	roomID, _, err := svc.CreateGroup(ctx, ids[0], "team", []string{ids[1]})
	req.NoError(err)

	// Owner leaves: ownership moves to the remaining member.
	res, err := svc.Leave(ctx, ids[0], roomID)
	req.NoError(err)
	req.False(res.Deleted)
	req.NotNil(res.NewOwner)
	req.Equal(ids[1], res.NewOwner.ID)

	room, err := m.RoomByID(ctx, roomID)
	req.NoError(err)
	req.Equal(ids[1], room.Owner)

	// Last member leaves: the room is deleted.
	res, err = svc.Leave(ctx, ids[1], roomID)
	req.NoError(err)
	req.True(res.Deleted)

	_, err = m.RoomByID(ctx, roomID)
	req.ErrorIs(err, store.ErrNotFound)

	// Leaving again reports the room as gone.
	_, err = svc.Leave(ctx, ids[1], roomID)
	req.ErrorIs(err, ErrRoomNotFound)
}

func TestRoomService_Leave_NonMemberRejected(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)
	ctx := context.Background()

	befriend(t, m, ids[0], ids[1])
	roomID, _, err := svc.CreateGroup(ctx, ids[0], "team", []string{ids[1]})
	req.NoError(err)

	_, err = svc.Leave(ctx, ids[2], roomID)
	req.ErrorIs(err, ErrNotMember)
}

func TestRoomService_ListForUser_DisplayNames(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)
	ctx := context.Background()

	befriend(t, m, ids[0], ids[1])
	privID, _, err := svc.CreatePrivate(ctx, ids[0], ids[1])
	req.NoError(err)
	groupID, _, err := svc.CreateGroup(ctx, ids[0], "team", []string{ids[1]})
	req.NoError(err)

	_, err = m.UpdateLastRead(ctx, privID, ids[0], 3)
	req.NoError(err)

	rooms, err := svc.ListForUser(ctx, ids[0])
	req.NoError(err)
	req.Len(rooms, 2)

	for _, info := range rooms {
		switch info.ID {
		case privID:
			req.False(info.IsGroup)
			req.Equal("bob", info.Name, "private rooms show the other participant")
			req.Equal(int64(3), info.LastReadSeq)
		case groupID:
			req.True(info.IsGroup)
			req.Equal("team", info.Name)
		default:
			t.Fatalf("unexpected room %d", info.ID)
		}
	}
}

func TestRoomService_IsMember_GlobalAlwaysTrue(t *testing.T) {
	req := require.New(t)
	m, ids := newFixture(t)
	svc := NewRoomService(m)

	ok, err := svc.IsMember(context.Background(), 0, ids[2])
	req.NoError(err)
	req.True(ok)

	ok, err = svc.IsMember(context.Background(), 42, ids[2])
	req.NoError(err)
	req.False(ok)
}
