package models

// User ids are 8-digit strings allocated sequentially starting at 10000001.
type User struct {
	ID           string `json:"user_id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=1,max=30"`
	Password string `json:"password" validate:"required,min=8,max=12"`
}

// LoginRequest accepts either a username or a user id as identifier.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Friend request status values.
const (
	FriendPending  = 0
	FriendAccepted = 1
	FriendRejected = 2
)

type FriendRequest struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	FriendID string `json:"friend_id"`
	Status   int    `json:"status"`
}
