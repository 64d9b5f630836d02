package hub

import (
	"context"
	"sync"
	"time"

	"chat-server/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Presence tracks which connections are online and maps connection id and
// user id in both directions. A user may hold several concurrent sessions;
// Count counts connections, matching the original's online set of session
// ids. The in-memory maps are authoritative; when a Redis client is given
// the original's keys are mirrored best-effort for external consumers.
type Presence struct {
	mu     sync.RWMutex
	byConn map[string]string              // conn id -> user id
	byUser map[string]map[string]struct{} // user id -> conn ids

	rdb *redis.Client // optional mirror, may be nil
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{
		byConn: make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
		rdb:    rdb,
	}
}

func (p *Presence) Register(connID, userID string) {
	p.mu.Lock()
	p.byConn[connID] = userID
	conns := p.byUser[userID]
	if conns == nil {
		conns = make(map[string]struct{})
		p.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	p.mu.Unlock()

	p.mirror(func(ctx context.Context) error {
		pipe := p.rdb.Pipeline()
		pipe.SAdd(ctx, "online", connID)
		pipe.Set(ctx, "session:"+connID, userID, 0)
		pipe.SAdd(ctx, "user:"+userID+":sessions", connID)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Deregister removes the mapping. Returns the user id and whether the
// connection was registered; a second call for the same id is a no-op.
func (p *Presence) Deregister(connID string) (string, bool) {
	p.mu.Lock()
	userID, ok := p.byConn[connID]
	if !ok {
		p.mu.Unlock()
		return "", false
	}
	delete(p.byConn, connID)
	if conns := p.byUser[userID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(p.byUser, userID)
		}
	}
	p.mu.Unlock()

	p.mirror(func(ctx context.Context) error {
		pipe := p.rdb.Pipeline()
		pipe.SRem(ctx, "online", connID)
		pipe.Del(ctx, "session:"+connID)
		pipe.SRem(ctx, "user:"+userID+":sessions", connID)
		_, err := pipe.Exec(ctx)
		return err
	})
	return userID, true
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byConn)
}

func (p *Presence) UserOf(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.byConn[connID]
	return userID, ok
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

// mirror runs a Redis update without ever failing the caller.
func (p *Presence) mirror(fn func(ctx context.Context) error) {
	if p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Debug("presence mirror update failed", zap.Error(err))
	}
}
