package hub

import (
	"sync"
	"sync/atomic"

	"chat-server/internal/logger"

	"go.uber.org/zap"
)

// Conn is the subset of the websocket connection the session writes to.
// Narrowed to an interface so tests can substitute a recorder.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// frame is the outbound wire shape: {"event": ..., "data": ...}.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Session is the live state of one authenticated connection. Outbound
// delivery goes through a bounded queue consumed by a single writer
// goroutine, so a slow client never blocks a broadcaster and events for
// one recipient keep their submission order.
type Session struct {
	ID       string
	UserID   string
	Username string

	conn Conn
	send chan frame
	done chan struct{}

	mu    sync.RWMutex
	rooms map[int64]struct{}

	closeOnce sync.Once
	dropped   atomic.Int64
}

func NewSession(id, userID, username string, conn Conn, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Session{
		ID:       id,
		UserID:   userID,
		Username: username,
		conn:     conn,
		send:     make(chan frame, queueSize),
		done:     make(chan struct{}),
		rooms:    make(map[int64]struct{}),
	}
}

func (s *Session) Subscribe(roomID int64) {
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) Unsubscribe(roomID int64) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

func (s *Session) Subscribed(roomID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) Rooms() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// enqueue hands a frame to the writer. Never blocks: a full queue drops the
// frame for this session only, a closing session is skipped.
func (s *Session) enqueue(f frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- f:
		return true
	default:
		if s.dropped.Add(1) == 1 {
			logger.Warn("slow consumer, dropping events",
				zap.String("conn_id", s.ID), zap.String("user_id", s.UserID))
		}
		return false
	}
}

// Send delivers an event to this session only, subject to the same
// non-blocking queue discipline as broadcasts.
func (s *Session) Send(event string, data interface{}) bool {
	return s.enqueue(frame{Event: event, Data: data})
}

// Dropped reports how many frames were discarded due to backpressure.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// WritePump drains the outbound queue onto the connection. Run as a
// goroutine; returns when the session closes or a write fails.
func (s *Session) WritePump() {
	for {
		select {
		case f := <-s.send:
			if err := s.conn.WriteJSON(f); err != nil {
				logger.Debug("write failed, closing session",
					zap.String("conn_id", s.ID), zap.Error(err))
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close is idempotent. Pending queued frames are abandoned.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Closed reports whether teardown has begun.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
