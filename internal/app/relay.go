package app

import (
	"encoding/json"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "candidate"
)

// Event is the outbound event name a relayed message travels under.
func (k SignalKind) Event() string {
	switch k {
	case KindOffer:
		return "webrtc:offer"
	case KindAnswer:
		return "webrtc:answer"
	case KindCandidate:
		return "webrtc:ice-candidate"
	}
	return ""
}

type RelayPayload struct {
	FromUserID domain.UserID   `json:"fromUserId"`
	Kind       SignalKind      `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
}

// Relay forwards opaque peer negotiation messages between two users.
type Relay struct {
	reg *Registry
	out *Broadcaster
}

func NewRelay(reg *Registry, out *Broadcaster) *Relay {
	return &Relay{reg: reg, out: out}
}

// Relay delivers to the target's most recently active connection.
// An offline target is a silent no-op; delivered reports whether a frame was queued.
func (r *Relay) Relay(from, to domain.UserID, kind SignalKind, payload json.RawMessage) (delivered bool) {
	target := r.pick(to)
	if target == nil {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Str("to", string(to)).Str("kind", string(kind)).Msg("target offline, dropped")
		return false
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	res := r.out.ToConnection(target.ID, kind.Event(), RelayPayload{
		FromUserID: from,
		Kind:       kind,
		Payload:    payload,
	})
	return res.SendTo == 1
}

func (r *Relay) pick(uid domain.UserID) *core.ConnectionSession {
	var best *core.ConnectionSession
	for _, s := range r.reg.SessionsForUser(uid) {
		if best == nil || s.LastSeen().After(best.LastSeen()) {
			best = s
		}
	}
	return best
}
