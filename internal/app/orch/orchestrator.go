// Package orch glues the registry, membership, presence and the voice engine
// into the connect/disconnect cascade and the per-event operations.
package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/app/voice"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	EventPartyUserJoined = "party:user-joined"
	EventPartyUserLeft   = "party:user-left"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.Membership
	Out      *app.Broadcaster
	Presence *app.Presence
	Relay    *app.Relay
	Voice    *voice.Engine
}

type Deps struct {
	Store   core.VoiceRoomStore
	Friends core.FriendsDirectory
	Policy  app.Policy
	Voice   voice.Options
}

// New wires the process-wide state. The returned orchestrator is the engine's notifier.
func New(d Deps) *Orchestrator {
	reg := app.NewRegistry()
	rooms := app.NewMembership(reg)
	out := app.NewBroadcaster(reg, rooms, d.Policy)
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Out:      out,
		Presence: app.NewPresence(reg, out, d.Friends),
		Relay:    app.NewRelay(reg, out),
	}
	o.Voice = voice.NewEngine(d.Store, o, d.Voice)
	return o
}

// Connect admits an authenticated connection: registry, private channel, presence.
func (o *Orchestrator) Connect(
	cid core.ConnectionID,
	user domain.User,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) (*core.ConnectionSession, error) {
	unlock := o.Presence.Lock(user.ID)
	defer unlock()
	sess, first, err := o.Registry.Register(cid, user, conn, cancel)
	if err != nil {
		return nil, err
	}
	o.Rooms.Join(cid, domain.UserRoomKey(user.ID))
	o.Presence.Connected(sess, first)
	return sess, nil
}

// Disconnect runs the cleanup cascade. Only the first call for a connection has any effect.
// Presence goes offline before the voice cascade so a reconnect cannot be overtaken by it.
func (o *Orchestrator) Disconnect(cid core.ConnectionID) {
	cur, ok := o.Registry.Get(cid)
	if !ok {
		return
	}
	unlock := o.Presence.Lock(cur.UserID)
	sess, last, ok := o.Registry.Unregister(cid)
	if !ok {
		unlock()
		return
	}
	keys := o.Rooms.LeaveAll(sess)
	o.Presence.Disconnected(sess, last)
	unlock()

	voiceRooms := make(map[domain.RoomID]struct{})
	if id, ok := sess.CurrentVoiceRoom(); ok {
		voiceRooms[id] = struct{}{}
	}
	for _, key := range keys {
		if id, ok := key.VoiceRoomID(); ok {
			voiceRooms[id] = struct{}{}
			continue
		}
		if isParty(key) {
			o.Out.ToRoom(key, EventPartyUserLeft, partyPayload(key, sess))
		}
	}
	for id := range voiceRooms {
		err := o.Voice.Leave(context.Background(), id, sess.UserID, o.detach(sess, id))
		if err != nil && !isExpected(err) {
			log.Error().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("room", string(id)).Msg("voice cleanup")
		}
	}

	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(sess.UserID)).Int("rooms", len(keys)).Msg("disconnected")
}

// Shutdown disconnects everyone and clears process state.
func (o *Orchestrator) Shutdown() {
	for _, sess := range o.Registry.All() {
		o.Registry.Cancel(sess.ID)
		o.Disconnect(sess.ID)
	}
	o.Registry.Reset()
	o.Rooms.Reset()
	o.Voice.Reset()
}

// Publish implements voice.Notifier.
func (o *Orchestrator) Publish(id domain.RoomID, event string, data any) {
	o.Out.ToRoom(domain.VoiceRoomKey(id), event, data)
}

// Closed implements voice.Notifier.
func (o *Orchestrator) Closed(id domain.RoomID) {
	for _, cid := range o.Rooms.CloseRoom(domain.VoiceRoomKey(id)) {
		if sess, ok := o.Registry.Get(cid); ok {
			sess.ClearCurrentVoiceRoom(id)
		}
	}
}

// Touch refreshes lastSeen for an active connection.
func (o *Orchestrator) Touch(cid core.ConnectionID) {
	o.Registry.Touch(cid)
}

func isExpected(err error) bool {
	return errors.Is(err, domain.ErrNotInRoom) || errors.Is(err, domain.ErrRoomNotFound)
}
