package services

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("username already exists")
	ErrNotMember          = errors.New("not a member of this room")
	ErrNotFriends         = errors.New("users are not friends")
	ErrNotOwner           = errors.New("only the room owner may do this")
	ErrNotGroup           = errors.New("not a group room")
	ErrSelfTarget         = errors.New("cannot target yourself")
	ErrRoomNotFound       = errors.New("room not found")
	ErrUserNotFound       = errors.New("user not found")
)
