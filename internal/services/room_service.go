package services

import (
	"context"
	"errors"

	"chat-server/internal/models"
	"chat-server/internal/store"
)

// RoomService owns room lifecycle and membership: friend-gated private
// rooms (at most one per user pair), group rooms with an owner, owner
// transfer on leave. Notification fan-out stays with the callers so the
// service remains transport-free.
type RoomService struct {
	store store.Store
}

func NewRoomService(st store.Store) *RoomService {
	return &RoomService{store: st}
}

// CreatePrivate returns the private room for the pair, creating it if
// needed. Both users must be friends.
func (s *RoomService) CreatePrivate(ctx context.Context, userID, targetID string) (roomID int64, created bool, err error) {
	if userID == targetID {
		return 0, false, ErrSelfTarget
	}
	if _, err := s.store.UserByID(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, ErrUserNotFound
		}
		return 0, false, err
	}
	friends, err := s.store.AreFriends(ctx, userID, targetID)
	if err != nil {
		return 0, false, err
	}
	if !friends {
		return 0, false, ErrNotFriends
	}
	return s.store.GetOrCreatePrivateRoom(ctx, userID, targetID)
}

// CreateGroup creates a group room owned by the caller. Invitees that are
// not friends of the creator are skipped, matching the original behavior.
// Returns the room id and the member ids actually added (creator first).
func (s *RoomService) CreateGroup(ctx context.Context, ownerID, name string, memberIDs []string) (int64, []string, error) {
	if name == "" {
		return 0, nil, errors.New("room name must not be empty")
	}

	added := []string{ownerID}
	seen := map[string]struct{}{ownerID: {}}
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		friends, err := s.store.AreFriends(ctx, ownerID, id)
		if err != nil {
			return 0, nil, err
		}
		if !friends {
			continue
		}
		seen[id] = struct{}{}
		added = append(added, id)
	}

	roomID, err := s.store.CreateGroupRoom(ctx, name, ownerID, added)
	if err != nil {
		return 0, nil, err
	}
	return roomID, added, nil
}

// AddMember adds a friend of the owner to a group room. Only the owner may
// add members.
func (s *RoomService) AddMember(ctx context.Context, callerID string, roomID int64, memberID string) (*models.Room, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if !room.IsGroup {
		return nil, ErrNotGroup
	}
	if room.Owner != callerID {
		return nil, ErrNotOwner
	}
	friends, err := s.store.AreFriends(ctx, callerID, memberID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, ErrNotFriends
	}
	if err := s.store.AddMember(ctx, roomID, memberID); err != nil {
		return nil, err
	}
	return room, nil
}

// LeaveResult describes what happened when a member left.
type LeaveResult struct {
	Room     *models.Room
	NewOwner *models.User // set when ownership moved
	Deleted  bool         // set when the room was removed entirely
}

// Leave removes the caller from a room. When a group owner leaves,
// ownership transfers to the first remaining member; when the owner was
// the last member the room is deleted.
func (s *RoomService) Leave(ctx context.Context, userID string, roomID int64) (*LeaveResult, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	member, err := s.store.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	res := &LeaveResult{Room: room}

	if room.IsGroup && room.Owner == userID {
		members, err := s.store.RoomMembers(ctx, roomID)
		if err != nil {
			return nil, err
		}
		var successor string
		for _, mb := range members {
			if mb.UserID != userID {
				successor = mb.UserID
				break
			}
		}
		if successor == "" {
			if err := s.store.DeleteRoom(ctx, roomID); err != nil {
				return nil, err
			}
			res.Deleted = true
			return res, nil
		}
		if err := s.store.SetRoomOwner(ctx, roomID, successor); err != nil {
			return nil, err
		}
		if u, err := s.store.UserByID(ctx, successor); err == nil {
			res.NewOwner = u
		} else {
			res.NewOwner = &models.User{ID: successor, Username: successor}
		}
	}

	if err := s.store.RemoveMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return res, nil
}

// ListForUser lists the caller's rooms with display names: group rooms use
// their own name, private rooms show the other participant.
func (s *RoomService) ListForUser(ctx context.Context, userID string) ([]models.RoomInfo, error) {
	roomIDs, err := s.store.RoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.RoomInfo, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, err := s.store.RoomByID(ctx, id)
		if err != nil {
			continue
		}
		members, err := s.store.RoomMembers(ctx, id)
		if err != nil {
			continue
		}

		info := models.RoomInfo{ID: id, IsGroup: room.IsGroup, Members: members, Name: room.Name}
		for _, mb := range members {
			if mb.UserID == userID {
				info.LastReadSeq = mb.LastReadSeq
			} else if !room.IsGroup {
				info.Name = mb.Username
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *RoomService) SearchGroups(ctx context.Context, query string) ([]models.Room, error) {
	return s.store.SearchGroupRooms(ctx, query)
}

// IsMember answers the membership question for the websocket layer, which
// re-queries on every event rather than caching.
func (s *RoomService) IsMember(ctx context.Context, roomID int64, userID string) (bool, error) {
	if roomID == models.GlobalRoomID {
		return true, nil
	}
	return s.store.IsMember(ctx, roomID, userID)
}

// RoomsFor returns the room ids a user belongs to, used to auto-subscribe
// a fresh session.
func (s *RoomService) RoomsFor(ctx context.Context, userID string) ([]int64, error) {
	return s.store.RoomsForUser(ctx, userID)
}

func (s *RoomService) Members(ctx context.Context, roomID int64) ([]models.Member, error) {
	return s.store.RoomMembers(ctx, roomID)
}
