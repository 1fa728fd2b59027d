package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
)

var ErrStoreDown = errors.New("store down")

// FlakyStore wraps a store and fails every call while Down is set.
// HoldSaves parks Save calls until released.
type FlakyStore struct {
	core.VoiceRoomStore
	down atomic.Bool

	mu      sync.Mutex
	release chan struct{}
	entered chan struct{}
}

func NewFlakyStore(inner core.VoiceRoomStore) *FlakyStore {
	return &FlakyStore{VoiceRoomStore: inner}
}

func (s *FlakyStore) SetDown(down bool) { s.down.Store(down) }

// HoldSaves makes every following Save block until release is called.
// entered receives once per Save that starts waiting.
func (s *FlakyStore) HoldSaves() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = make(chan struct{})
	s.entered = make(chan struct{}, 16)
	var once sync.Once
	ch := s.release
	return s.entered, func() { once.Do(func() { close(ch) }) }
}

func (s *FlakyStore) hold() {
	s.mu.Lock()
	release, entered := s.release, s.entered
	s.mu.Unlock()
	if release == nil {
		return
	}
	select {
	case entered <- struct{}{}:
	default:
	}
	<-release
}

func (s *FlakyStore) Insert(ctx context.Context, r *domain.VoiceRoom) error {
	if s.down.Load() {
		return ErrStoreDown
	}
	return s.VoiceRoomStore.Insert(ctx, r)
}

func (s *FlakyStore) Save(ctx context.Context, r *domain.VoiceRoom) error {
	s.hold()
	if s.down.Load() {
		return ErrStoreDown
	}
	return s.VoiceRoomStore.Save(ctx, r)
}

func (s *FlakyStore) Get(ctx context.Context, id domain.RoomID) (*domain.VoiceRoom, error) {
	if s.down.Load() {
		return nil, ErrStoreDown
	}
	return s.VoiceRoomStore.Get(ctx, id)
}

func (s *FlakyStore) EndAllActive(ctx context.Context, at time.Time) (int64, error) {
	if s.down.Load() {
		return 0, ErrStoreDown
	}
	return s.VoiceRoomStore.EndAllActive(ctx, at)
}
