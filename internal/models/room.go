package models

// GlobalRoomID is the implicit room every connection joins. It has no
// membership rows and no membership checks.
const GlobalRoomID int64 = 0

type Room struct {
	ID      int64  `json:"room_id"`
	IsGroup bool   `json:"is_group"`
	Name    string `json:"name,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// Member is a room membership joined with the member's username.
type Member struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	LastReadSeq int64  `json:"last_read_seq"`
}

// RoomInfo is the listing shape returned to clients. For private rooms the
// name is the other participant's username.
type RoomInfo struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	IsGroup     bool     `json:"is_group"`
	Members     []Member `json:"members"`
	LastReadSeq int64    `json:"last_read_seq"`
}

type CreatePrivateRoomRequest struct {
	TargetUserID string `json:"target_user_id"`
}

type CreateGroupRoomRequest struct {
	RoomName  string   `json:"room_name"`
	MemberIDs []string `json:"member_ids"`
}

type AddMemberRequest struct {
	RoomID   int64  `json:"room_id"`
	MemberID string `json:"member_id"`
}

type LeaveRoomRequest struct {
	RoomID int64 `json:"room_id"`
}
