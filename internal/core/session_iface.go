package core

import (
	"sync"
	"time"

	"github.com/dkeye/Resonance/internal/domain"
)

type ConnectionID string

// ConnectionSession is the server-side state of one live connection.
// Identity fields are immutable; room bookkeeping is guarded by mu.
type ConnectionSession struct {
	ID          ConnectionID
	UserID      domain.UserID
	DisplayName string

	signal SignalConnection

	mu           sync.RWMutex
	joinedRooms  map[domain.RoomKey]struct{}
	currentVoice domain.RoomID
	lastSeen     time.Time
}

func NewConnectionSession(id ConnectionID, user domain.User, signal SignalConnection, now time.Time) *ConnectionSession {
	return &ConnectionSession{
		ID:          id,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		signal:      signal,
		joinedRooms: make(map[domain.RoomKey]struct{}),
		lastSeen:    now,
	}
}

func (s *ConnectionSession) Signal() SignalConnection { return s.signal }

func (s *ConnectionSession) Touch(at time.Time) {
	s.mu.Lock()
	if at.After(s.lastSeen) {
		s.lastSeen = at
	}
	s.mu.Unlock()
}

func (s *ConnectionSession) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// AddRoom records membership and reports whether it was new.
func (s *ConnectionSession) AddRoom(key domain.RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joinedRooms[key]; ok {
		return false
	}
	s.joinedRooms[key] = struct{}{}
	return true
}

func (s *ConnectionSession) RemoveRoom(key domain.RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joinedRooms[key]; !ok {
		return false
	}
	delete(s.joinedRooms, key)
	return true
}

func (s *ConnectionSession) InRoom(key domain.RoomKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.joinedRooms[key]
	return ok
}

func (s *ConnectionSession) JoinedRooms() []domain.RoomKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RoomKey, 0, len(s.joinedRooms))
	for k := range s.joinedRooms {
		out = append(out, k)
	}
	return out
}

func (s *ConnectionSession) CurrentVoiceRoom() (domain.RoomID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentVoice, s.currentVoice != ""
}

func (s *ConnectionSession) SetCurrentVoiceRoom(id domain.RoomID) {
	s.mu.Lock()
	s.currentVoice = id
	s.mu.Unlock()
}

// ClearCurrentVoiceRoom unsets the voice room only if it still equals id.
func (s *ConnectionSession) ClearCurrentVoiceRoom(id domain.RoomID) {
	s.mu.Lock()
	if s.currentVoice == id {
		s.currentVoice = ""
	}
	s.mu.Unlock()
}
