package hub

import "sync"

// Hub is the event router: it owns the room -> session subscription index
// and delivers events to room subscribers or to all sessions of one user.
// Delivery is fire-and-forget; enqueueing happens in submission order, so
// events for the same room reach any single subscriber in the order they
// were submitted.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session           // conn id -> session
	rooms    map[int64]map[string]*Session // room id -> conn id -> session

	presence *Presence
}

func New(presence *Presence) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[int64]map[string]*Session),
		presence: presence,
	}
}

// Register adds an authenticated session and records its presence.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.presence.Register(s.ID, s.UserID)
}

// Unregister tears the session down: removes every room subscription,
// clears presence and closes the session. Idempotent; reports whether the
// session was still registered.
func (h *Hub) Unregister(connID string) bool {
	h.mu.Lock()
	s, ok := h.sessions[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.sessions, connID)
	for roomID, conns := range h.rooms {
		if _, in := conns[connID]; in {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	h.presence.Deregister(connID)
	s.Close()
	return true
}

func (h *Hub) Join(s *Session, roomID int64) {
	h.mu.Lock()
	conns := h.rooms[roomID]
	if conns == nil {
		conns = make(map[string]*Session)
		h.rooms[roomID] = conns
	}
	conns[s.ID] = s
	h.mu.Unlock()
	s.Subscribe(roomID)
}

func (h *Hub) Leave(s *Session, roomID int64) {
	h.mu.Lock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, s.ID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
	s.Unsubscribe(roomID)
}

// LeaveUser unsubscribes every session of a user from a room. Called when
// a membership row is removed, so an ex-member stops receiving room events
// without waiting for a reconnect.
func (h *Hub) LeaveUser(userID string, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for id, s := range conns {
		if s.UserID == userID {
			delete(conns, id)
			s.Unsubscribe(roomID)
		}
	}
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastRoom delivers an event to every session subscribed to the room.
func (h *Hub) BroadcastRoom(roomID int64, event string, data interface{}) {
	h.broadcastRoom(roomID, "", event, data)
}

// BroadcastRoomExcept is BroadcastRoom minus one connection (typing
// indicators exclude their sender).
func (h *Hub) BroadcastRoomExcept(roomID int64, exceptConnID, event string, data interface{}) {
	h.broadcastRoom(roomID, exceptConnID, event, data)
}

func (h *Hub) broadcastRoom(roomID int64, exceptConnID, event string, data interface{}) {
	f := frame{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.rooms[roomID] {
		if id == exceptConnID {
			continue
		}
		s.enqueue(f)
	}
}

// SendToUser delivers an event to every session of one user, whatever rooms
// they are viewing. Used for targeted notifications.
func (h *Hub) SendToUser(userID, event string, data interface{}) {
	f := frame{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.UserID == userID {
			s.enqueue(f)
		}
	}
}

// BroadcastAll delivers an event to every registered session.
func (h *Hub) BroadcastAll(event string, data interface{}) {
	f := frame{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		s.enqueue(f)
	}
}

// OnlineCount is the number of live connections.
func (h *Hub) OnlineCount() int {
	return h.presence.Count()
}

// RoomSize reports the current number of subscribers of a room.
func (h *Hub) RoomSize(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
