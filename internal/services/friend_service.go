package services

import (
	"context"
	"errors"

	"chat-server/internal/models"
	"chat-server/internal/store"
)

var (
	ErrAlreadyFriends = errors.New("already friends")
	ErrRequestPending = errors.New("friend request already sent")
)

// FriendService is the minimal friend-request surface the room gating and
// notification routing depend on.
type FriendService struct {
	store store.Store
}

func NewFriendService(st store.Store) *FriendService {
	return &FriendService{store: st}
}

func (s *FriendService) SendRequest(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return ErrSelfTarget
	}
	if _, err := s.store.UserByID(ctx, toID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if pending, err := s.store.HasPendingRequest(ctx, fromID, toID); err != nil {
		return err
	} else if pending {
		return ErrRequestPending
	}
	if friends, err := s.store.AreFriends(ctx, fromID, toID); err != nil {
		return err
	} else if friends {
		return ErrAlreadyFriends
	}
	return s.store.CreateFriendRequest(ctx, fromID, toID)
}

// Handle settles a pending request between the two users. Returns false
// when there was nothing pending.
func (s *FriendService) Handle(ctx context.Context, userID, otherID string, accept bool) (bool, error) {
	return s.store.SettleFriendRequest(ctx, userID, otherID, accept)
}

func (s *FriendService) List(ctx context.Context, userID string) ([]models.User, error) {
	return s.store.FriendsOf(ctx, userID)
}
