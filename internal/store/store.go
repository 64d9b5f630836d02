package store

import (
	"context"
	"errors"

	"chat-server/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUserExists    = errors.New("username already exists")
	ErrAlreadyMember = errors.New("user already in room")
)

// Store is the persistence gateway. Implementations must make SaveMessage
// atomic per room: concurrent saves into the same room yield sequence
// numbers 1..N with no duplicates or gaps.
type Store interface {
	// Users
	CreateUser(ctx context.Context, username, pwdHash string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByName(ctx context.Context, username string) (*models.User, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)

	// Friends
	AreFriends(ctx context.Context, a, b string) (bool, error)
	HasPendingRequest(ctx context.Context, a, b string) (bool, error)
	CreateFriendRequest(ctx context.Context, from, to string) error
	SettleFriendRequest(ctx context.Context, a, b string, accept bool) (bool, error)
	FriendsOf(ctx context.Context, userID string) ([]models.User, error)

	// Rooms and memberships
	CreateGroupRoom(ctx context.Context, name, owner string, memberIDs []string) (int64, error)
	GetOrCreatePrivateRoom(ctx context.Context, a, b string) (roomID int64, created bool, err error)
	RoomByID(ctx context.Context, roomID int64) (*models.Room, error)
	SearchGroupRooms(ctx context.Context, query string) ([]models.Room, error)
	DeleteRoom(ctx context.Context, roomID int64) error
	SetRoomOwner(ctx context.Context, roomID int64, owner string) error

	IsMember(ctx context.Context, roomID int64, userID string) (bool, error)
	RoomsForUser(ctx context.Context, userID string) ([]int64, error)
	RoomMembers(ctx context.Context, roomID int64) ([]models.Member, error)
	AddMember(ctx context.Context, roomID int64, userID string) error
	RemoveMember(ctx context.Context, roomID int64, userID string) error

	// UpdateLastRead advances the membership's last-read sequence. Returns
	// false without mutating when the user is not a member or seq does not
	// exceed the stored value.
	UpdateLastRead(ctx context.Context, roomID int64, userID string, seq int64) (bool, error)

	// Messages
	SaveMessage(ctx context.Context, msg *models.Message) error
	GlobalHistory(ctx context.Context, page, size int) ([]models.Message, error)
	RoomHistory(ctx context.Context, roomID int64, page, size int) ([]models.Message, error)
}
