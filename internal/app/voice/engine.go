// Package voice runs the voice room lifecycle: creation, membership with
// capacity, roles, mute state, host failover and termination.
//
// Every mutation of one room happens under that room's mutex, so the
// check-then-act on capacity and host reassignment are atomic. Broadcasts are
// issued while the lock is held, which keeps per-room event order equal to the
// order in which mutations were applied.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notifier delivers room events to whoever is attached to the room.
type Notifier interface {
	Publish(id domain.RoomID, event string, data any)
	// Closed is called once after a room ends; attached connections must be released.
	Closed(id domain.RoomID)
}

// Hook runs under the room lock right before the room event is published.
type Hook func(room *domain.VoiceRoom)

type Options struct {
	DefaultCapacity int
	MaxCapacity     int
	StoreTimeout    time.Duration
}

type roomState struct {
	mu   sync.Mutex
	room *domain.VoiceRoom
}

type Engine struct {
	store  core.VoiceRoomStore
	notify Notifier
	opts   Options
	now    func() time.Time

	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewEngine(store core.VoiceRoomStore, notify Notifier, opts Options) *Engine {
	if opts.DefaultCapacity < 1 {
		opts.DefaultCapacity = 50
	}
	if opts.MaxCapacity < opts.DefaultCapacity {
		opts.MaxCapacity = opts.DefaultCapacity
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Engine{
		store:  store,
		notify: notify,
		opts:   opts,
		now:    time.Now,
		rooms:  make(map[domain.RoomID]*roomState),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.StoreTimeout)
}

func (e *Engine) capacity(requested int) int {
	switch {
	case requested <= 0:
		return e.opts.DefaultCapacity
	case requested > e.opts.MaxCapacity:
		return e.opts.MaxCapacity
	}
	return requested
}

// Create opens a room with host as its first speaker. The document is stored
// before the room becomes visible; a store failure yields ErrServiceUnavailable.
func (e *Engine) Create(ctx context.Context, host domain.UserID, cfg domain.RoomConfig, attach Hook) (*domain.VoiceRoom, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	now := e.now()
	room := &domain.VoiceRoom{
		ID:               domain.RoomID(uuid.NewString()),
		Name:             cfg.Name,
		Description:      cfg.Description,
		HostID:           host,
		ModeratorIDs:     []domain.UserID{},
		Participants:     []domain.Participant{domain.NewParticipant(host, domain.RoleSpeaker, now)},
		Capacity:         e.capacity(cfg.Capacity),
		Visibility:       cfg.Visibility,
		RoomType:         cfg.RoomType,
		Active:           true,
		Topic:            cfg.Topic,
		Tags:             cfg.Tags,
		CreatedAt:        now,
		PeakParticipants: 1,
		Settings:         cfg.Settings,
	}
	if room.Tags == nil {
		room.Tags = []string{}
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.Insert(sctx, room); err != nil {
		log.Error().Err(err).Str("module", "voice").Str("room", string(room.ID)).Msg("create: store insert")
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	st := &roomState{room: room}
	st.mu.Lock()
	defer st.mu.Unlock()
	e.mu.Lock()
	e.rooms[room.ID] = st
	e.mu.Unlock()

	if attach != nil {
		attach(room)
	}
	log.Info().Str("module", "voice").Str("room", string(room.ID)).Str("host", string(host)).Int("capacity", room.Capacity).Msg("room created")
	return room.Clone(), nil
}

// state returns the cached room, loading it from the store on a miss.
func (e *Engine) state(ctx context.Context, id domain.RoomID) (*roomState, error) {
	e.mu.RLock()
	st, ok := e.rooms[id]
	e.mu.RUnlock()
	if ok {
		return st, nil
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	room, err := e.store.Get(sctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		log.Error().Err(err).Str("module", "voice").Str("room", string(id)).Msg("store get")
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if !room.Active {
		return &roomState{room: room}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.rooms[id]; ok {
		return st, nil
	}
	st = &roomState{room: room}
	e.rooms[id] = st
	return st, nil
}

func (e *Engine) forget(id domain.RoomID) {
	e.mu.Lock()
	delete(e.rooms, id)
	e.mu.Unlock()
}

// saveLocked persists the room best-effort; in-memory state stays authoritative.
func (e *Engine) saveLocked(ctx context.Context, room *domain.VoiceRoom) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.Save(sctx, room); err != nil {
		log.Error().Err(err).Str("module", "voice").Str("room", string(room.ID)).Msg("store save")
		return err
	}
	return nil
}

// Join adds uid as a listener.
func (e *Engine) Join(ctx context.Context, id domain.RoomID, uid domain.UserID, attach Hook) (*domain.VoiceRoom, error) {
	st, err := e.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	room := st.room
	switch {
	case !room.Active:
		return nil, domain.ErrRoomInactive
	case room.HasParticipant(uid):
		return nil, domain.ErrAlreadyJoined
	case room.IsFull():
		return nil, domain.ErrRoomFull
	}

	p := domain.NewParticipant(uid, domain.RoleListener, e.now())
	room.Participants = append(room.Participants, p)
	room.PeakParticipants = max(room.PeakParticipants, len(room.Participants))
	_ = e.saveLocked(ctx, room)

	if attach != nil {
		attach(room)
	}
	e.notify.Publish(id, EventUserJoined, UserJoined{
		RoomID:           id,
		UserID:           uid,
		Participant:      p,
		HostID:           room.HostID,
		ParticipantCount: len(room.Participants),
	})
	log.Info().Str("module", "voice").Str("room", string(id)).Str("user", string(uid)).Int("participants", len(room.Participants)).Msg("joined")
	return room.Clone(), nil
}

// Leave removes uid. The earliest remaining participant inherits the host
// role; an emptied room ends.
func (e *Engine) Leave(ctx context.Context, id domain.RoomID, uid domain.UserID, detach Hook) error {
	st, err := e.state(ctx, id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	room := st.room
	if !room.Active {
		return domain.ErrNotInRoom
	}
	now := e.now()
	p, ok := room.RemoveParticipant(uid)
	if !ok {
		return domain.ErrNotInRoom
	}
	p.Settle(now)

	if len(room.Participants) == 0 {
		e.endLocked(ctx, st, now, EndedEmpty, detach)
		return nil
	}

	hostChanged := false
	if room.HostID == uid {
		next, _ := room.EarliestParticipant()
		room.HostID = next
		hostChanged = true
		log.Info().Str("module", "voice").Str("room", string(id)).Str("host", string(next)).Msg("host reassigned")
	}
	_ = e.saveLocked(ctx, room)

	if detach != nil {
		detach(room)
	}
	e.notify.Publish(id, EventUserLeft, UserLeft{
		RoomID:              id,
		UserID:              uid,
		HostID:              room.HostID,
		HostChanged:         hostChanged,
		ParticipantCount:    len(room.Participants),
		SpeakingTimeSeconds: p.SpeakingTimeSeconds,
	})
	log.Info().Str("module", "voice").Str("room", string(id)).Str("user", string(uid)).Int("participants", len(room.Participants)).Msg("left")
	return nil
}

// endLocked terminates a room that emptied out. The store write is
// best-effort; if it fails the ended state stays cached so no join slips in.
func (e *Engine) endLocked(ctx context.Context, st *roomState, now time.Time, reason EndReason, detach Hook) {
	room := st.room
	room.MarkEnded(now)
	saved := e.saveLocked(ctx, room) == nil
	e.publishEnded(room, reason)
	if detach != nil {
		detach(room)
	}
	e.notify.Closed(room.ID)
	if saved {
		e.forget(room.ID)
	}
}

func (e *Engine) publishEnded(room *domain.VoiceRoom, reason EndReason) {
	e.notify.Publish(room.ID, EventRoomEnded, RoomEnded{
		RoomID:               room.ID,
		Reason:               reason,
		EndedAt:              *room.EndedAt,
		TotalDurationSeconds: room.TotalDurationSeconds,
		PeakParticipants:     room.PeakParticipants,
	})
	log.Info().Str("module", "voice").Str("room", string(room.ID)).Str("reason", string(reason)).Int64("duration_s", room.TotalDurationSeconds).Msg("room ended")
}

// End lets the host terminate the room. The ended document is stored first;
// a store failure leaves the room open and yields ErrServiceUnavailable.
func (e *Engine) End(ctx context.Context, id domain.RoomID, actor domain.UserID) error {
	st, err := e.state(ctx, id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	room := st.room
	if room.HostID != actor {
		return domain.ErrPermission
	}
	if !room.Active {
		return domain.ErrAlreadyEnded
	}

	ended := room.Clone()
	ended.MarkEnded(e.now())
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.Save(sctx, ended); err != nil {
		log.Error().Err(err).Str("module", "voice").Str("room", string(id)).Msg("end: store save")
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	st.room = ended
	e.publishEnded(ended, EndedHost)
	e.notify.Closed(id)
	e.forget(id)
	return nil
}

// SetMute is allowed for the host, a moderator, or the target itself.
func (e *Engine) SetMute(ctx context.Context, id domain.RoomID, target domain.UserID, muted bool, actor domain.UserID) error {
	return e.mutate(ctx, id, func(room *domain.VoiceRoom) error {
		if actor != target && !room.CanModerate(actor) {
			return domain.ErrPermission
		}
		p := room.Participant(target)
		if p == nil {
			return domain.ErrNotInRoom
		}
		p.SetMuted(muted, e.now())
		e.notify.Publish(id, EventUserMuted, UserMuted{RoomID: id, UserID: target, IsMuted: muted, ByUserID: actor})
		return nil
	})
}

// Promote makes target a speaker; host or moderator only.
func (e *Engine) Promote(ctx context.Context, id domain.RoomID, target domain.UserID, actor domain.UserID) error {
	return e.mutate(ctx, id, func(room *domain.VoiceRoom) error {
		if !room.CanModerate(actor) {
			return domain.ErrPermission
		}
		p := room.Participant(target)
		if p == nil {
			return domain.ErrNotInRoom
		}
		p.SetRole(domain.RoleSpeaker, e.now())
		e.notify.Publish(id, EventUserPromoted, UserPromoted{RoomID: id, UserID: target, Role: domain.RoleSpeaker, ByUserID: actor})
		return nil
	})
}

// AddModerator grants moderator rights to a participant; host only.
func (e *Engine) AddModerator(ctx context.Context, id domain.RoomID, target domain.UserID, actor domain.UserID) error {
	return e.mutate(ctx, id, func(room *domain.VoiceRoom) error {
		if room.HostID != actor {
			return domain.ErrPermission
		}
		if !room.HasParticipant(target) {
			return domain.ErrNotInRoom
		}
		if !room.IsModerator(target) {
			room.ModeratorIDs = append(room.ModeratorIDs, target)
		}
		e.notify.Publish(id, EventModeratorAdded, ModeratorAdded{RoomID: id, UserID: target})
		return nil
	})
}

func (e *Engine) mutate(ctx context.Context, id domain.RoomID, fn func(room *domain.VoiceRoom) error) error {
	st, err := e.state(ctx, id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.room.Active {
		return domain.ErrRoomInactive
	}
	if err := fn(st.room); err != nil {
		return err
	}
	_ = e.saveLocked(ctx, st.room)
	return nil
}

// Get returns a snapshot of the room.
func (e *Engine) Get(ctx context.Context, id domain.RoomID) (*domain.VoiceRoom, error) {
	st, err := e.state(ctx, id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.room.Clone(), nil
}

// ListActive returns public open rooms, preferring live state over stored copies.
func (e *Engine) ListActive(ctx context.Context, limit int) ([]*domain.VoiceRoom, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	rooms, err := e.store.ListActivePublic(sctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return e.live(rooms, nil), nil
}

// ActiveForUser returns the open rooms uid is seated in, whatever their visibility.
func (e *Engine) ActiveForUser(ctx context.Context, uid domain.UserID) ([]*domain.VoiceRoom, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	rooms, err := e.store.FindActiveByParticipant(sctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return e.live(rooms, func(r *domain.VoiceRoom) bool { return r.HasParticipant(uid) }), nil
}

// live swaps stored rooms for their cached state and drops the ones no longer
// active or rejected by keep.
func (e *Engine) live(rooms []*domain.VoiceRoom, keep func(*domain.VoiceRoom) bool) []*domain.VoiceRoom {
	out := make([]*domain.VoiceRoom, 0, len(rooms))
	for _, r := range rooms {
		e.mu.RLock()
		st, ok := e.rooms[r.ID]
		e.mu.RUnlock()
		if ok {
			st.mu.Lock()
			r = st.room.Clone()
			st.mu.Unlock()
		}
		if r.Active && (keep == nil || keep(r)) {
			out = append(out, r)
		}
	}
	return out
}

// Reconcile ends every room left active by a previous process. Call it before
// accepting connections.
func (e *Engine) Reconcile(ctx context.Context) (int64, error) {
	n, err := e.store.EndAllActive(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if n > 0 {
		log.Info().Str("module", "voice").Int64("rooms", n).Msg("ended stale rooms")
	}
	return n, nil
}

// Reset drops every cached room.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.rooms = make(map[domain.RoomID]*roomState)
	e.mu.Unlock()
}
