package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []frame
	closed bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v.(frame))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) snapshot() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestSession_DeliversInOrder(t *testing.T) {
	req := require.New(t)
	conn := &fakeConn{}
	s := NewSession("c1", "10000001", "alice", conn, 16)
	go s.WritePump()
	defer s.Close()

	for i := 0; i < 5; i++ {
		req.True(s.Send("chat", i))
	}

	require.Eventually(t, func() bool {
		return len(conn.snapshot()) == 5
	}, time.Second, 5*time.Millisecond)

	for i, f := range conn.snapshot() {
		req.Equal("chat", f.Event)
		req.Equal(i, f.Data)
	}
}

func TestSession_DropsOnBackpressure(t *testing.T) {
	req := require.New(t)
	conn := &fakeConn{}
	// No write pump running: the queue fills up and stays full.
	s := NewSession("c1", "10000001", "alice", conn, 2)
	defer s.Close()

	req.True(s.Send("chat", 1))
	req.True(s.Send("chat", 2))
	req.False(s.Send("chat", 3))
	req.False(s.Send("chat", 4))
	req.Equal(int64(2), s.Dropped())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	conn := &fakeConn{}
	s := NewSession("c1", "10000001", "alice", conn, 4)

	s.Close()
	s.Close()
	req.True(s.Closed())
	req.True(conn.closed)

	// A closing session is skipped, not an error.
	req.False(s.Send("chat", "late"))
}

func TestSession_Subscriptions(t *testing.T) {
	req := require.New(t)
	s := NewSession("c1", "10000001", "alice", &fakeConn{}, 4)
	defer s.Close()

	s.Subscribe(0)
	s.Subscribe(42)
	req.True(s.Subscribed(42))
	req.False(s.Subscribed(7))
	req.ElementsMatch([]int64{0, 42}, s.Rooms())

	s.Unsubscribe(42)
	req.False(s.Subscribed(42))
}
