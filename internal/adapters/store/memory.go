package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Resonance/internal/domain"
)

// MemoryStore is the process-local store used when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.VoiceRoom
}

func NewMemory() *MemoryStore {
	return &MemoryStore{rooms: make(map[domain.RoomID]*domain.VoiceRoom)}
}

func (s *MemoryStore) Insert(_ context.Context, room *domain.VoiceRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *MemoryStore) Save(_ context.Context, room *domain.VoiceRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.RoomID) (*domain.VoiceRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListActivePublic(_ context.Context, limit int) ([]*domain.VoiceRoom, error) {
	out := s.filter(func(r *domain.VoiceRoom) bool {
		return r.Active && r.Visibility == domain.VisibilityPublic
	})
	slices.SortFunc(out, func(a, b *domain.VoiceRoom) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) FindActiveByParticipant(_ context.Context, uid domain.UserID) ([]*domain.VoiceRoom, error) {
	return s.filter(func(r *domain.VoiceRoom) bool {
		return r.Active && r.HasParticipant(uid)
	}), nil
}

func (s *MemoryStore) filter(keep func(*domain.VoiceRoom) bool) []*domain.VoiceRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.VoiceRoom
	for _, r := range s.rooms {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *MemoryStore) EndAllActive(_ context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rooms {
		if r.Active {
			r.MarkEnded(at)
			n++
		}
	}
	return n, nil
}
