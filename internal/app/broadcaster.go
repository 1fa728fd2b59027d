package app

import (
	"encoding/json"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

// Envelope is the wire shape of every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound event once so fan-out reuses the bytes.
func Encode(event string, data any) (core.Frame, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Broadcaster fans events out to connections, rooms, users or everyone.
type Broadcaster struct {
	reg    *Registry
	rooms  *Membership
	policy Policy
}

func NewBroadcaster(reg *Registry, rooms *Membership, policy Policy) *Broadcaster {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Broadcaster{reg: reg, rooms: rooms, policy: policy}
}

func (b *Broadcaster) ToConnection(cid core.ConnectionID, event string, data any) core.PublishResult {
	sess, ok := b.reg.Get(cid)
	if !ok {
		return core.PublishResult{}
	}
	return b.publish(event, data, []*core.ConnectionSession{sess})
}

// ToRoom delivers to whoever is joined to key right now, minus exclude.
func (b *Broadcaster) ToRoom(key domain.RoomKey, event string, data any, exclude ...core.ConnectionID) core.PublishResult {
	return b.publish(event, data, b.sessionsOf(b.rooms.Members(key), exclude))
}

// ToUser delivers to every live connection of uid.
func (b *Broadcaster) ToUser(uid domain.UserID, event string, data any) core.PublishResult {
	return b.publish(event, data, b.reg.SessionsForUser(uid))
}

func (b *Broadcaster) ToUsers(uids []domain.UserID, event string, data any) core.PublishResult {
	var targets []*core.ConnectionSession
	for _, uid := range uids {
		targets = append(targets, b.reg.SessionsForUser(uid)...)
	}
	return b.publish(event, data, targets)
}

func (b *Broadcaster) ToAll(event string, data any, exclude ...core.ConnectionID) core.PublishResult {
	all := b.reg.All()
	targets := all[:0]
	for _, s := range all {
		if !excluded(s.ID, exclude) {
			targets = append(targets, s)
		}
	}
	return b.publish(event, data, targets)
}

func (b *Broadcaster) sessionsOf(cids []core.ConnectionID, exclude []core.ConnectionID) []*core.ConnectionSession {
	out := make([]*core.ConnectionSession, 0, len(cids))
	for _, cid := range cids {
		if excluded(cid, exclude) {
			continue
		}
		if s, ok := b.reg.Get(cid); ok {
			out = append(out, s)
		}
	}
	return out
}

func excluded(cid core.ConnectionID, exclude []core.ConnectionID) bool {
	for _, e := range exclude {
		if e == cid {
			return true
		}
	}
	return false
}

func (b *Broadcaster) publish(event string, data any, targets []*core.ConnectionSession) core.PublishResult {
	res := core.PublishResult{}
	if len(targets) == 0 {
		return res
	}
	frame, err := Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("event", event).Msg("encode")
		return res
	}
	for _, s := range targets {
		if err := s.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, s.ID)
			b.onDropped(s, event, err)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.broadcast").Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (b *Broadcaster) onDropped(s *core.ConnectionSession, event string, err error) {
	action := b.policy.OnBackPressure(s)
	log.Warn().Err(err).Str("module", "app.broadcast").Str("conn", string(s.ID)).Str("event", event).Int("action", int(action)).Msg("frame dropped")
	if action == KickMember {
		b.reg.Cancel(s.ID)
	}
}
