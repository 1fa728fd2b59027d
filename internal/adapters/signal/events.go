package signal

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/domain"
)

var errMalformed = errors.New("malformed payload")

// Event is the closed set of inbound events. Each concrete type is listed in
// decoders and handled in dispatch.
type Event interface {
	validate() error
}

type NowPlayingEvent struct {
	SongID    string  `json:"songId"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Timestamp float64 `json:"timestamp"`
	IsPlaying bool    `json:"isPlaying"`
}

type JoinPartyEvent struct {
	PartyID string `json:"partyId"`
}

type LeavePartyEvent struct {
	PartyID string `json:"partyId"`
}

// PartySyncEvent carries an arbitrary sync payload that must name its party.
type PartySyncEvent struct {
	PartyID string `json:"partyId"`
	Payload json.RawMessage
}

type JoinChatEvent struct {
	ChatID string `json:"chatId"`
}

type LeaveChatEvent struct {
	ChatID string `json:"chatId"`
}

type SendMessageEvent struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type TypingEvent struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

type CreateVoiceEvent struct {
	domain.RoomConfig
}

type JoinVoiceEvent struct {
	RoomID domain.RoomID `json:"roomId"`
}

type LeaveVoiceEvent struct {
	RoomID domain.RoomID `json:"roomId"`
}

type MuteVoiceEvent struct {
	RoomID       domain.RoomID `json:"roomId"`
	IsMuted      bool          `json:"isMuted"`
	TargetUserID domain.UserID `json:"targetUserId"`
}

type PromoteVoiceEvent struct {
	RoomID       domain.RoomID `json:"roomId"`
	TargetUserID domain.UserID `json:"targetUserId"`
}

type AddModeratorEvent struct {
	RoomID       domain.RoomID `json:"roomId"`
	TargetUserID domain.UserID `json:"targetUserId"`
}

type EndVoiceEvent struct {
	RoomID domain.RoomID `json:"roomId"`
}

// SignalEvent is a peer negotiation message. The opaque body may arrive as
// "payload" or under the kind's own field name.
type SignalEvent struct {
	Kind         app.SignalKind  `json:"-"`
	TargetUserID domain.UserID   `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
	Offer        json.RawMessage `json:"offer"`
	Answer       json.RawMessage `json:"answer"`
	Candidate    json.RawMessage `json:"candidate"`
}

type PingEvent struct{}

func required(fields ...string) error {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return errMalformed
		}
	}
	return nil
}

func (e *NowPlayingEvent) validate() error   { return required(e.SongID) }
func (e *JoinPartyEvent) validate() error    { return required(e.PartyID) }
func (e *LeavePartyEvent) validate() error   { return required(e.PartyID) }
func (e *PartySyncEvent) validate() error    { return required(e.PartyID) }
func (e *JoinChatEvent) validate() error     { return required(e.ChatID) }
func (e *LeaveChatEvent) validate() error    { return required(e.ChatID) }
func (e *SendMessageEvent) validate() error  { return required(e.ChatID) }
func (e *TypingEvent) validate() error       { return required(e.ChatID) }
func (e *CreateVoiceEvent) validate() error  { return nil }
func (e *JoinVoiceEvent) validate() error    { return required(string(e.RoomID)) }
func (e *LeaveVoiceEvent) validate() error   { return required(string(e.RoomID)) }
func (e *MuteVoiceEvent) validate() error    { return required(string(e.RoomID)) }
func (e *PromoteVoiceEvent) validate() error { return required(string(e.RoomID), string(e.TargetUserID)) }
func (e *AddModeratorEvent) validate() error { return required(string(e.RoomID), string(e.TargetUserID)) }
func (e *EndVoiceEvent) validate() error     { return required(string(e.RoomID)) }
func (e *PingEvent) validate() error         { return nil }

func (e *SignalEvent) validate() error {
	if err := required(string(e.TargetUserID)); err != nil {
		return err
	}
	if len(e.Payload) == 0 {
		switch e.Kind {
		case app.KindOffer:
			e.Payload = e.Offer
		case app.KindAnswer:
			e.Payload = e.Answer
		case app.KindCandidate:
			e.Payload = e.Candidate
		}
	}
	if len(e.Payload) == 0 {
		return errMalformed
	}
	return nil
}

func (e *PartySyncEvent) UnmarshalJSON(b []byte) error {
	var head struct {
		PartyID string `json:"partyId"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	e.PartyID = head.PartyID
	e.Payload = append(json.RawMessage(nil), b...)
	return nil
}

// decoders is the dispatch table of inbound event names.
var decoders = map[string]func() Event{
	"music:now-playing":    func() Event { return &NowPlayingEvent{} },
	"music:join-party":     func() Event { return &JoinPartyEvent{} },
	"music:leave-party":    func() Event { return &LeavePartyEvent{} },
	"music:party-sync":     func() Event { return &PartySyncEvent{} },
	"chat:join":            func() Event { return &JoinChatEvent{} },
	"chat:leave":           func() Event { return &LeaveChatEvent{} },
	"message:send":         func() Event { return &SendMessageEvent{} },
	"message:typing":       func() Event { return &TypingEvent{} },
	"voice:create-room":    func() Event { return &CreateVoiceEvent{} },
	"voice:join-room":      func() Event { return &JoinVoiceEvent{} },
	"voice:leave-room":     func() Event { return &LeaveVoiceEvent{} },
	"voice:mute":           func() Event { return &MuteVoiceEvent{} },
	"voice:promote":        func() Event { return &PromoteVoiceEvent{} },
	"voice:add-moderator":  func() Event { return &AddModeratorEvent{} },
	"voice:end-room":       func() Event { return &EndVoiceEvent{} },
	"webrtc:offer":         func() Event { return &SignalEvent{Kind: app.KindOffer} },
	"webrtc:answer":        func() Event { return &SignalEvent{Kind: app.KindAnswer} },
	"webrtc:ice-candidate": func() Event { return &SignalEvent{Kind: app.KindCandidate} },
	"ping":                 func() Event { return &PingEvent{} },
}

// decode turns an envelope into a typed event. known is false for names
// outside the table; err is set when the payload has the wrong shape.
func decode(name string, data json.RawMessage) (ev Event, known bool, err error) {
	mk, ok := decoders[name]
	if !ok {
		return nil, false, nil
	}
	ev = mk()
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, ev); err != nil {
			return nil, true, errMalformed
		}
	}
	if err := ev.validate(); err != nil {
		return nil, true, err
	}
	return ev, true, nil
}

// namespace is the prefix used for the event's error channel.
func namespace(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return name
}
