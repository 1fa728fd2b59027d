package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
)

type PresencePayload struct {
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName,omitempty"`
	At          time.Time     `json:"at"`
}

// Presence derives online status from the registry. The only state it keeps
// is a lock per user, so transitions and their announcements stay ordered.
type Presence struct {
	reg     *Registry
	out     *Broadcaster
	friends core.FriendsDirectory
	timeout time.Duration

	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewPresence builds the tracker. A nil directory makes every connection the audience.
func NewPresence(reg *Registry, out *Broadcaster, friends core.FriendsDirectory) *Presence {
	return &Presence{
		reg:     reg,
		out:     out,
		friends: friends,
		timeout: 2 * time.Second,
		locks:   make(map[domain.UserID]*userLock),
	}
}

// Lock serializes presence transitions for uid. Hold it from Register or
// Unregister until Connected or Disconnected has returned.
func (p *Presence) Lock(uid domain.UserID) (unlock func()) {
	p.mu.Lock()
	l, ok := p.locks[uid]
	if !ok {
		l = &userLock{}
		p.locks[uid] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(p.locks, uid)
		}
		p.mu.Unlock()
	}
}

func (p *Presence) IsOnline(uid domain.UserID) bool {
	return len(p.reg.ConnectionsForUser(uid)) > 0
}

func (p *Presence) ConnectionCount(uid domain.UserID) int {
	return len(p.reg.ConnectionsForUser(uid))
}

// Connected must be called with the first flag returned by Registry.Register.
func (p *Presence) Connected(sess *core.ConnectionSession, first bool) {
	if !first {
		return
	}
	log.Info().Str("module", "app.presence").Str("user", string(sess.UserID)).Msg("online")
	p.Announce(sess.UserID, EventPresenceOnline, PresencePayload{
		UserID: sess.UserID, DisplayName: sess.DisplayName, At: time.Now(),
	}, sess.ID)
}

// Disconnected must be called with the last flag returned by Registry.Unregister.
func (p *Presence) Disconnected(sess *core.ConnectionSession, last bool) {
	if !last || p.IsOnline(sess.UserID) {
		return
	}
	log.Info().Str("module", "app.presence").Str("user", string(sess.UserID)).Msg("offline")
	p.Announce(sess.UserID, EventPresenceOffline, PresencePayload{
		UserID: sess.UserID, DisplayName: sess.DisplayName, At: time.Now(),
	})
}

// Announce sends a user's activity to its audience: online friends when a
// directory is configured, otherwise every connection except exclude.
func (p *Presence) Announce(uid domain.UserID, event string, data any, exclude ...core.ConnectionID) core.PublishResult {
	if p.friends == nil {
		return p.out.ToAll(event, data, exclude...)
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	ids, err := p.friends.Friends(ctx, uid)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Str("user", string(uid)).Msg("friends lookup failed")
		return core.PublishResult{}
	}
	return p.out.ToUsers(ids, event, data)
}
