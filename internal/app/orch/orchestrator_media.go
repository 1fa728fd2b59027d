package orch

import (
	"encoding/json"

	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
)

const EventFriendNowPlaying = "friend:now-playing"

// NowPlaying is what a listener shares about the track it is playing.
type NowPlaying struct {
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
	SongID      string        `json:"songId"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Timestamp   float64       `json:"timestamp"`
	IsPlaying   bool          `json:"isPlaying"`
}

// RelaySignal forwards a peer negotiation payload from the connection's user to target.
func (o *Orchestrator) RelaySignal(cid core.ConnectionID, target domain.UserID, kind app.SignalKind, payload json.RawMessage) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	o.Relay.Relay(sess.UserID, target, kind, payload)
	return nil
}

// ShareNowPlaying announces the user's current track to its audience.
func (o *Orchestrator) ShareNowPlaying(cid core.ConnectionID, np NowPlaying) error {
	sess, err := o.session(cid)
	if err != nil {
		return err
	}
	np.UserID = sess.UserID
	np.DisplayName = sess.DisplayName
	o.Presence.Announce(sess.UserID, EventFriendNowPlaying, np, cid)
	return nil
}
