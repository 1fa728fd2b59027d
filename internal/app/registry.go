package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *core.ConnectionSession
	Cancel  context.CancelFunc
}

// Registry tracks every live connection and which user owns it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnectionID]*sessionEntry
	byUser   map[domain.UserID]map[core.ConnectionID]struct{}
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnectionID]*sessionEntry),
		byUser:   make(map[domain.UserID]map[core.ConnectionID]struct{}),
		now:      time.Now,
	}
}

// Register records a new connection. first is true when this is the user's only connection.
func (r *Registry) Register(
	cid core.ConnectionID,
	user domain.User,
	signal core.SignalConnection,
	cancel context.CancelFunc,
) (sess *core.ConnectionSession, first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[cid]; ok {
		log.Error().Str("module", "app.registry").Str("conn", string(cid)).Msg("duplicate connection id")
		return nil, false, domain.ErrDuplicateConnection
	}
	sess = core.NewConnectionSession(cid, user, signal, r.now())
	r.sessions[cid] = &sessionEntry{Session: sess, Cancel: cancel}
	conns, ok := r.byUser[user.ID]
	if !ok {
		conns = make(map[core.ConnectionID]struct{})
		r.byUser[user.ID] = conns
	}
	conns[cid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(user.ID)).Int("user_conns", len(conns)).Msg("registered connection")
	return sess, len(conns) == 1, nil
}

// Unregister removes a connection. Absent ids are a no-op with ok=false.
// last is true when the user has no connections left.
func (r *Registry) Unregister(cid core.ConnectionID) (sess *core.ConnectionSession, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return nil, false, false
	}
	delete(r.sessions, cid)
	uid := e.Session.UserID
	conns := r.byUser[uid]
	delete(conns, cid)
	if len(conns) == 0 {
		delete(r.byUser, uid)
		last = true
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(uid)).Bool("last", last).Msg("unregistered connection")
	return e.Session, last, true
}

func (r *Registry) Get(cid core.ConnectionID) (*core.ConnectionSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) ConnectionsForUser(uid domain.UserID) []core.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[uid]
	out := make([]core.ConnectionID, 0, len(conns))
	for cid := range conns {
		out = append(out, cid)
	}
	return out
}

// SessionsForUser returns the live sessions of uid.
func (r *Registry) SessionsForUser(uid domain.UserID) []*core.ConnectionSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[uid]
	out := make([]*core.ConnectionSession, 0, len(conns))
	for cid := range conns {
		out = append(out, r.sessions[cid].Session)
	}
	return out
}

func (r *Registry) All() []*core.ConnectionSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.ConnectionSession, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Touch(cid core.ConnectionID) {
	if s, ok := r.Get(cid); ok {
		s.Touch(r.now())
	}
}

// Cancel stops the connection's pumps; cleanup runs when the transport exits.
func (r *Registry) Cancel(cid core.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}

// Reset cancels every connection and forgets all state.
func (r *Registry) Reset() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[core.ConnectionID]*sessionEntry)
	r.byUser = make(map[domain.UserID]map[core.ConnectionID]struct{})
	r.mu.Unlock()
	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
	}
	log.Info().Str("module", "app.registry").Int("connections", len(entries)).Msg("registry reset")
}
