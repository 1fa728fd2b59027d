package app

import (
	"sync"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

// Membership maps logical room keys to the connections joined to them.
// It has no capacity rules; voice rooms enforce theirs in the engine.
type Membership struct {
	reg *Registry

	mu    sync.RWMutex
	rooms map[domain.RoomKey]map[core.ConnectionID]struct{}
}

func NewMembership(reg *Registry) *Membership {
	return &Membership{
		reg:   reg,
		rooms: make(map[domain.RoomKey]map[core.ConnectionID]struct{}),
	}
}

// Join is idempotent; joined is false when the connection was already a member
// or is not registered.
func (m *Membership) Join(cid core.ConnectionID, key domain.RoomKey) (joined bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// checked under m.mu so a concurrent LeaveAll cannot miss this join
	sess, ok := m.reg.Get(cid)
	if !ok {
		return false
	}
	members, ok := m.rooms[key]
	if !ok {
		members = make(map[core.ConnectionID]struct{})
		m.rooms[key] = members
	}
	if _, ok := members[cid]; ok {
		return false
	}
	members[cid] = struct{}{}
	sess.AddRoom(key)
	log.Debug().Str("module", "app.membership").Str("conn", string(cid)).Str("room", string(key)).Msg("joined")
	return true
}

// Leave is idempotent.
func (m *Membership) Leave(cid core.ConnectionID, key domain.RoomKey) (left bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	left = m.removeLocked(cid, key)
	if sess, ok := m.reg.Get(cid); ok {
		sess.RemoveRoom(key)
	}
	if left {
		log.Debug().Str("module", "app.membership").Str("conn", string(cid)).Str("room", string(key)).Msg("left")
	}
	return left
}

func (m *Membership) removeLocked(cid core.ConnectionID, key domain.RoomKey) bool {
	members, ok := m.rooms[key]
	if !ok {
		return false
	}
	if _, ok := members[cid]; !ok {
		return false
	}
	delete(members, cid)
	if len(members) == 0 {
		delete(m.rooms, key)
	}
	return true
}

// LeaveAll removes the connection from every room it is in and returns those keys.
// The session may already be unregistered, so the reverse scan covers both cases.
func (m *Membership) LeaveAll(sess *core.ConnectionSession) []domain.RoomKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := sess.JoinedRooms()
	out := make([]domain.RoomKey, 0, len(keys))
	for _, key := range keys {
		if m.removeLocked(sess.ID, key) {
			out = append(out, key)
		}
		sess.RemoveRoom(key)
	}
	return out
}

// Members returns the connections joined to key at this instant.
func (m *Membership) Members(key domain.RoomKey) []core.ConnectionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[key]
	out := make([]core.ConnectionID, 0, len(members))
	for cid := range members {
		out = append(out, cid)
	}
	return out
}

func (m *Membership) IsMember(cid core.ConnectionID, key domain.RoomKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[key][cid]
	return ok
}

// CloseRoom evicts every member of key and returns who was evicted.
func (m *Membership) CloseRoom(key domain.RoomKey) []core.ConnectionID {
	m.mu.Lock()
	members := m.rooms[key]
	delete(m.rooms, key)
	m.mu.Unlock()
	out := make([]core.ConnectionID, 0, len(members))
	for cid := range members {
		if sess, ok := m.reg.Get(cid); ok {
			sess.RemoveRoom(key)
		}
		out = append(out, cid)
	}
	if len(out) > 0 {
		log.Info().Str("module", "app.membership").Str("room", string(key)).Int("evicted", len(out)).Msg("room closed")
	}
	return out
}

func (m *Membership) Reset() {
	m.mu.Lock()
	m.rooms = make(map[domain.RoomKey]map[core.ConnectionID]struct{})
	m.mu.Unlock()
}
