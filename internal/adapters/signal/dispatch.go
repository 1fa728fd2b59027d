package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

var errUnhandled = errors.New("unhandled event")

type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// dispatch routes a decoded event to its handler. Every type produced by
// decoders must have a case here.
func (ctl *SignalWSController) dispatch(ctx context.Context, cid core.ConnectionID, name string, ev Event) error {
	if err := ctl.throttle(cid, ev); err != nil {
		return err
	}
	switch ev := ev.(type) {
	case *PingEvent:
		ctl.handlePing(cid)
		return nil
	case *NowPlayingEvent:
		return ctl.handleNowPlaying(cid, ev)
	case *JoinPartyEvent:
		return ctl.Orch.JoinChannel(cid, domain.PartyRoomKey(ev.PartyID))
	case *LeavePartyEvent:
		return ctl.Orch.LeaveChannel(cid, domain.PartyRoomKey(ev.PartyID))
	case *PartySyncEvent:
		return ctl.handlePartySync(cid, ev)
	case *JoinChatEvent:
		return ctl.Orch.JoinChannel(cid, domain.ChatRoomKey(ev.ChatID))
	case *LeaveChatEvent:
		return ctl.Orch.LeaveChannel(cid, domain.ChatRoomKey(ev.ChatID))
	case *SendMessageEvent:
		return ctl.handleMessage(cid, ev)
	case *TypingEvent:
		return ctl.handleTyping(cid, ev)
	case *CreateVoiceEvent:
		return ctl.handleCreateVoice(ctx, cid, ev)
	case *JoinVoiceEvent:
		return ctl.handleJoinVoice(ctx, cid, ev)
	case *LeaveVoiceEvent:
		return ctl.Orch.LeaveVoice(ctx, cid, ev.RoomID)
	case *MuteVoiceEvent:
		return ctl.Orch.MuteVoice(ctx, cid, ev.RoomID, ev.TargetUserID, ev.IsMuted)
	case *PromoteVoiceEvent:
		return ctl.Orch.PromoteVoice(ctx, cid, ev.RoomID, ev.TargetUserID)
	case *AddModeratorEvent:
		return ctl.Orch.AddVoiceModerator(ctx, cid, ev.RoomID, ev.TargetUserID)
	case *EndVoiceEvent:
		return ctl.Orch.EndVoice(ctx, cid, ev.RoomID)
	case *SignalEvent:
		return ctl.handleRelay(cid, ev)
	}
	log.Error().Str("module", "signal").Str("event", name).Str("type", fmt.Sprintf("%T", ev)).Msg("no handler for decoded event")
	return errUnhandled
}

// throttle applies the per-user rate limit to chatty client-driven events.
func (ctl *SignalWSController) throttle(cid core.ConnectionID, ev Event) error {
	if ctl.Limiter == nil {
		return nil
	}
	switch ev.(type) {
	case *NowPlayingEvent, *PartySyncEvent, *SendMessageEvent, *TypingEvent:
	default:
		return nil
	}
	sess, ok := ctl.Orch.Registry.Get(cid)
	if !ok {
		return nil
	}
	if !ctl.Limiter.Allow(sess.UserID) {
		return domain.ErrRateLimited
	}
	return nil
}

// sendError reports a handler failure to the originating connection only.
func (ctl *SignalWSController) sendError(cid core.ConnectionID, event string, err error) {
	code := domain.ErrorCode(err)
	if code == "internal" {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("event", event).Msg("handler failed")
	} else {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("event", event).Msg("handler rejected")
	}
	ctl.send(cid, namespace(event)+":error", ErrorPayload{
		Event:   event,
		Code:    code,
		Message: err.Error(),
	})
}
