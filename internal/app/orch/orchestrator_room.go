package orch

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

type PartyMember struct {
	PartyID     string        `json:"partyId"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
	At          time.Time     `json:"at"`
}

func isParty(key domain.RoomKey) bool {
	return strings.HasPrefix(string(key), string(domain.PartyRoomKey("")))
}

func partyPayload(key domain.RoomKey, sess *core.ConnectionSession) PartyMember {
	return PartyMember{
		PartyID:     strings.TrimPrefix(string(key), string(domain.PartyRoomKey(""))),
		UserID:      sess.UserID,
		DisplayName: sess.DisplayName,
		At:          time.Now(),
	}
}

func (o *Orchestrator) session(cid core.ConnectionID) (*core.ConnectionSession, error) {
	sess, ok := o.Registry.Get(cid)
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	return sess, nil
}

// JoinChannel adds the connection to a chat or party channel.
func (o *Orchestrator) JoinChannel(cid core.ConnectionID, key domain.RoomKey) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	if o.Rooms.Join(cid, key) && isParty(key) {
		o.Out.ToRoom(key, EventPartyUserJoined, partyPayload(key, sess), cid)
	}
	return nil
}

func (o *Orchestrator) LeaveChannel(cid core.ConnectionID, key domain.RoomKey) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	if o.Rooms.Leave(cid, key) && isParty(key) {
		o.Out.ToRoom(key, EventPartyUserLeft, partyPayload(key, sess))
	}
	return nil
}

// PublishToChannel broadcasts on behalf of a member of key.
func (o *Orchestrator) PublishToChannel(cid core.ConnectionID, key domain.RoomKey, event string, data any, includeSelf bool) error {
	if !o.Rooms.IsMember(cid, key) {
		return domain.ErrNotInRoom
	}
	if includeSelf {
		o.Out.ToRoom(key, event, data)
	} else {
		o.Out.ToRoom(key, event, data, cid)
	}
	return nil
}

// attach binds every connection of the user that issued the request to the voice channel.
func (o *Orchestrator) attach(sess *core.ConnectionSession, id domain.RoomID, ok *bool) func(*domain.VoiceRoom) {
	return func(*domain.VoiceRoom) {
		*ok = o.Rooms.Join(sess.ID, domain.VoiceRoomKey(id)) || o.Rooms.IsMember(sess.ID, domain.VoiceRoomKey(id))
		if *ok {
			sess.SetCurrentVoiceRoom(id)
		}
	}
}

// detach releases the user's connections from the voice channel. sess is
// included explicitly because it may already be unregistered.
func (o *Orchestrator) detach(sess *core.ConnectionSession, id domain.RoomID) func(*domain.VoiceRoom) {
	return func(*domain.VoiceRoom) {
		key := domain.VoiceRoomKey(id)
		sessions := append(o.Registry.SessionsForUser(sess.UserID), sess)
		for _, s := range sessions {
			if cur, ok := s.CurrentVoiceRoom(); (ok && cur == id) || s.InRoom(key) {
				o.Rooms.Leave(s.ID, key)
				s.ClearCurrentVoiceRoom(id)
			}
		}
	}
}

// leaveCurrentVoice leaves whatever voice room the connection is in, unless it is keep.
func (o *Orchestrator) leaveCurrentVoice(ctx context.Context, sess *core.ConnectionSession, keep domain.RoomID) {
	cur, ok := sess.CurrentVoiceRoom()
	if !ok || cur == keep {
		return
	}
	if err := o.Voice.Leave(ctx, cur, sess.UserID, o.detach(sess, cur)); err != nil && !isExpected(err) {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(cur)).Msg("leave previous voice room")
	}
}

// CreateVoice opens a room hosted by the connection's user and binds the connection to it.
func (o *Orchestrator) CreateVoice(ctx context.Context, cid core.ConnectionID, cfg domain.RoomConfig) (*domain.VoiceRoom, error) {
	sess, err := o.session(cid)
	if err != nil {
		return nil, err
	}
	o.leaveCurrentVoice(ctx, sess, "")
	var attached bool
	room, err := o.Voice.Create(ctx, sess.UserID, cfg, func(r *domain.VoiceRoom) { o.attach(sess, r.ID, &attached)(r) })
	if err != nil {
		return nil, err
	}
	if !attached {
		o.rollback(ctx, sess, room.ID)
	}
	return room, nil
}

// JoinVoice moves the connection into a voice room, leaving its previous one first.
func (o *Orchestrator) JoinVoice(ctx context.Context, cid core.ConnectionID, id domain.RoomID) (*domain.VoiceRoom, error) {
	sess, err := o.session(cid)
	if err != nil {
		return nil, err
	}
	o.leaveCurrentVoice(ctx, sess, id)
	var attached bool
	room, err := o.Voice.Join(ctx, id, sess.UserID, o.attach(sess, id, &attached))
	if err != nil {
		return nil, err
	}
	if !attached {
		o.rollback(ctx, sess, id)
	}
	return room, nil
}

// rollback undoes a join whose connection vanished before it could be attached.
func (o *Orchestrator) rollback(ctx context.Context, sess *core.ConnectionSession, id domain.RoomID) {
	log.Warn().Str("module", "orch").Str("conn", string(sess.ID)).Str("room", string(id)).Msg("connection gone during join")
	_ = o.Voice.Leave(ctx, id, sess.UserID, o.detach(sess, id))
}

func (o *Orchestrator) LeaveVoice(ctx context.Context, cid core.ConnectionID, id domain.RoomID) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	return o.Voice.Leave(ctx, id, sess.UserID, o.detach(sess, id))
}

func (o *Orchestrator) MuteVoice(ctx context.Context, cid core.ConnectionID, id domain.RoomID, target domain.UserID, muted bool) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	if target == "" {
		target = sess.UserID
	}
	return o.Voice.SetMute(ctx, id, target, muted, sess.UserID)
}

func (o *Orchestrator) PromoteVoice(ctx context.Context, cid core.ConnectionID, id domain.RoomID, target domain.UserID) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	return o.Voice.Promote(ctx, id, target, sess.UserID)
}

func (o *Orchestrator) AddVoiceModerator(ctx context.Context, cid core.ConnectionID, id domain.RoomID, target domain.UserID) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	return o.Voice.AddModerator(ctx, id, target, sess.UserID)
}

func (o *Orchestrator) EndVoice(ctx context.Context, cid core.ConnectionID, id domain.RoomID) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	return o.Voice.End(ctx, id, sess.UserID)
}
