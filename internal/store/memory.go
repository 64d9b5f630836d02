package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-server/internal/models"
)

// Memory is an in-process Store used by tests and as a fallback when no
// DATABASE_URL is configured. Sequence allocation is serialized with a
// per-room mutex; the registry mutex is never held while a room log mutex
// is being acquired.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*models.User // user id -> user
	byName     map[string]string       // username -> user id
	nextUserID int64

	friends      []*models.FriendRequest
	nextFriendID int64

	rooms      map[int64]*models.Room
	members    map[int64]map[string]*models.Member // room id -> user id -> membership
	pairKey    map[string]int64                    // "min:max" -> private room id
	nextRoomID int64

	logs      map[int64]*roomLog // room id -> message log (global room included)
	globalLog []*models.Message  // insertion order across all rooms
	nextMsgID int64
}

type roomLog struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*models.User),
		byName:  make(map[string]string),
		rooms:   make(map[int64]*models.Room),
		members: make(map[int64]map[string]*models.Member),
		pairKey: make(map[string]int64),
		logs:    make(map[int64]*roomLog),
	}
}

// Users

func (m *Memory) CreateUser(ctx context.Context, username, pwdHash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[username]; ok {
		return nil, ErrUserExists
	}
	m.nextUserID++
	u := &models.User{
		ID:           fmt.Sprintf("%08d", 10000000+m.nextUserID),
		Username:     username,
		PasswordHash: pwdHash,
	}
	m.users[u.ID] = u
	m.byName[u.Username] = u.ID
	return u, nil
}

func (m *Memory) UserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) UserByName(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byName[username]; ok {
		cp := *m.users[id]
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.User
	for _, u := range m.users {
		if strings.Contains(u.Username, query) || strings.Contains(u.ID, query) {
			out = append(out, models.User{ID: u.ID, Username: u.Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Friends

func pairOf(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func (m *Memory) findRequest(a, b string, status int) *models.FriendRequest {
	for _, fr := range m.friends {
		if fr.Status != status {
			continue
		}
		if (fr.UserID == a && fr.FriendID == b) || (fr.UserID == b && fr.FriendID == a) {
			return fr
		}
	}
	return nil
}

func (m *Memory) AreFriends(ctx context.Context, a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findRequest(a, b, models.FriendAccepted) != nil, nil
}

func (m *Memory) HasPendingRequest(ctx context.Context, a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findRequest(a, b, models.FriendPending) != nil, nil
}

func (m *Memory) CreateFriendRequest(ctx context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFriendID++
	m.friends = append(m.friends, &models.FriendRequest{
		ID:       m.nextFriendID,
		UserID:   from,
		FriendID: to,
		Status:   models.FriendPending,
	})
	return nil
}

func (m *Memory) SettleFriendRequest(ctx context.Context, a, b string, accept bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr := m.findRequest(a, b, models.FriendPending)
	if fr == nil {
		return false, nil
	}
	if accept {
		fr.Status = models.FriendAccepted
	} else {
		fr.Status = models.FriendRejected
	}
	return true, nil
}

func (m *Memory) FriendsOf(ctx context.Context, userID string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.User
	for _, fr := range m.friends {
		if fr.Status != models.FriendAccepted {
			continue
		}
		other := ""
		switch userID {
		case fr.UserID:
			other = fr.FriendID
		case fr.FriendID:
			other = fr.UserID
		default:
			continue
		}
		if u, ok := m.users[other]; ok {
			out = append(out, models.User{ID: u.ID, Username: u.Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Rooms

func (m *Memory) CreateGroupRoom(ctx context.Context, name, owner string, memberIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRoomID++
	id := m.nextRoomID
	m.rooms[id] = &models.Room{ID: id, IsGroup: true, Name: name, Owner: owner}
	m.members[id] = make(map[string]*models.Member)
	for _, uid := range memberIDs {
		u, ok := m.users[uid]
		if !ok {
			continue
		}
		m.members[id][uid] = &models.Member{UserID: uid, Username: u.Username}
	}
	return id, nil
}

func (m *Memory) GetOrCreatePrivateRoom(ctx context.Context, a, b string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := pairOf(a, b)
	key := lo + ":" + hi
	if id, ok := m.pairKey[key]; ok {
		return id, false, nil
	}
	m.nextRoomID++
	id := m.nextRoomID
	m.rooms[id] = &models.Room{ID: id, IsGroup: false}
	m.members[id] = make(map[string]*models.Member)
	for _, uid := range []string{a, b} {
		u, ok := m.users[uid]
		if !ok {
			return 0, false, ErrNotFound
		}
		m.members[id][uid] = &models.Member{UserID: uid, Username: u.Username}
	}
	m.pairKey[key] = id
	return id, true, nil
}

func (m *Memory) RoomByID(ctx context.Context, roomID int64) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[roomID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) SearchGroupRooms(ctx context.Context, query string) ([]models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Room
	for _, r := range m.rooms {
		if r.IsGroup && strings.Contains(r.Name, query) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteRoom(ctx context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if !r.IsGroup {
		for key, id := range m.pairKey {
			if id == roomID {
				delete(m.pairKey, key)
				break
			}
		}
	}
	delete(m.rooms, roomID)
	delete(m.members, roomID)
	return nil
}

func (m *Memory) SetRoomOwner(ctx context.Context, roomID int64, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.Owner = owner
	return nil
}

// Memberships

func (m *Memory) IsMember(ctx context.Context, roomID int64, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[roomID][userID]
	return ok, nil
}

func (m *Memory) RoomsForUser(ctx context.Context, userID string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for roomID, members := range m.members {
		if _, ok := members[userID]; ok {
			out = append(out, roomID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) RoomMembers(ctx context.Context, roomID int64) ([]models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.members[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]models.Member, 0, len(members))
	for _, mb := range members {
		out = append(out, *mb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) AddMember(ctx context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return ErrNotFound
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.members[roomID][userID]; ok {
		return ErrAlreadyMember
	}
	m.members[roomID][userID] = &models.Member{UserID: userID, Username: u.Username}
	return nil
}

func (m *Memory) RemoveMember(ctx context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.members[roomID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := members[userID]; !ok {
		return ErrNotFound
	}
	delete(members, userID)
	return nil
}

func (m *Memory) UpdateLastRead(ctx context.Context, roomID int64, userID string, seq int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.members[roomID][userID]
	if !ok || seq <= mb.LastReadSeq {
		return false, nil
	}
	mb.LastReadSeq = seq
	return true, nil
}

// Messages

func (m *Memory) log(roomID int64) *roomLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[roomID]
	if !ok {
		l = &roomLog{}
		m.logs[roomID] = l
	}
	return l
}

func (m *Memory) SaveMessage(ctx context.Context, msg *models.Message) error {
	l := m.log(msg.RoomID)
	l.mu.Lock()
	defer l.mu.Unlock()

	msg.Seq = int64(len(l.msgs)) + 1
	if msg.TS.IsZero() {
		msg.TS = time.Now().UTC()
	}

	m.mu.Lock()
	m.nextMsgID++
	msg.ID = m.nextMsgID
	cp := *msg
	m.globalLog = append(m.globalLog, &cp)
	m.mu.Unlock()

	l.msgs = append(l.msgs, &cp)
	return nil
}

func (m *Memory) GlobalHistory(ctx context.Context, page, size int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Descending insertion order, newest first.
	n := len(m.globalLog)
	start := (page - 1) * size
	if start >= n {
		return nil, nil
	}
	out := make([]models.Message, 0, size)
	for i := n - 1 - start; i >= 0 && len(out) < size; i-- {
		out = append(out, *m.globalLog[i])
	}
	return out, nil
}

func (m *Memory) RoomHistory(ctx context.Context, roomID int64, page, size int) ([]models.Message, error) {
	l := m.log(roomID)
	l.mu.Lock()
	defer l.mu.Unlock()
	start := (page - 1) * size
	if start >= len(l.msgs) {
		return nil, nil
	}
	end := start + size
	if end > len(l.msgs) {
		end = len(l.msgs)
	}
	out := make([]models.Message, 0, end-start)
	for _, msg := range l.msgs[start:end] {
		out = append(out, *msg)
	}
	return out, nil
}
