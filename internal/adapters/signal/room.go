package signal

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Resonance/internal/app/orch"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/google/uuid"
)

const (
	EventMessageReceive = "message:receive"
	EventMessageTyping  = "message:typing"
	EventPartySync      = "party:sync"
)

type ChatMessage struct {
	ID         string        `json:"id"`
	ChatID     string        `json:"chatId"`
	SenderID   domain.UserID `json:"senderId"`
	SenderName string        `json:"senderName"`
	Content    string        `json:"content"`
	Type       string        `json:"type"`
	SentAt     time.Time     `json:"sentAt"`
}

type Typing struct {
	ChatID      string        `json:"chatId"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
	IsTyping    bool          `json:"isTyping"`
}

type PartySync struct {
	PartyID    string          `json:"partyId"`
	FromUserID domain.UserID   `json:"fromUserId"`
	Payload    json.RawMessage `json:"payload"`
}

func (ctl *SignalWSController) identity(cid core.ConnectionID) (*core.ConnectionSession, error) {
	sess, ok := ctl.Orch.Registry.Get(cid)
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	return sess, nil
}

func (ctl *SignalWSController) handleMessage(cid core.ConnectionID, ev *SendMessageEvent) error {
	sess, err := ctl.identity(cid)
	if err != nil {
		return err
	}
	if ev.Content == "" {
		return domain.ErrValidation
	}
	typ := ev.Type
	if typ == "" {
		typ = "text"
	}
	msg := ChatMessage{
		ID:         uuid.NewString(),
		ChatID:     ev.ChatID,
		SenderID:   sess.UserID,
		SenderName: sess.DisplayName,
		Content:    ev.Content,
		Type:       typ,
		SentAt:     time.Now(),
	}
	return ctl.Orch.PublishToChannel(cid, domain.ChatRoomKey(ev.ChatID), EventMessageReceive, msg, true)
}

func (ctl *SignalWSController) handleTyping(cid core.ConnectionID, ev *TypingEvent) error {
	sess, err := ctl.identity(cid)
	if err != nil {
		return err
	}
	return ctl.Orch.PublishToChannel(cid, domain.ChatRoomKey(ev.ChatID), EventMessageTyping, Typing{
		ChatID:      ev.ChatID,
		UserID:      sess.UserID,
		DisplayName: sess.DisplayName,
		IsTyping:    ev.IsTyping,
	}, false)
}

func (ctl *SignalWSController) handlePartySync(cid core.ConnectionID, ev *PartySyncEvent) error {
	sess, err := ctl.identity(cid)
	if err != nil {
		return err
	}
	return ctl.Orch.PublishToChannel(cid, domain.PartyRoomKey(ev.PartyID), EventPartySync, PartySync{
		PartyID:    ev.PartyID,
		FromUserID: sess.UserID,
		Payload:    ev.Payload,
	}, false)
}

func (ctl *SignalWSController) handleNowPlaying(cid core.ConnectionID, ev *NowPlayingEvent) error {
	return ctl.Orch.ShareNowPlaying(cid, orch.NowPlaying{
		SongID:    ev.SongID,
		Title:     ev.Title,
		Artist:    ev.Artist,
		Timestamp: ev.Timestamp,
		IsPlaying: ev.IsPlaying,
	})
}
