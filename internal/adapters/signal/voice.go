package signal

import (
	"context"

	"github.com/dkeye/Resonance/internal/app/voice"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
)

const EventRoomState = "voice:room-state"

type RoomSnapshot struct {
	Room *domain.VoiceRoom `json:"room"`
}

func (ctl *SignalWSController) handleCreateVoice(ctx context.Context, cid core.ConnectionID, ev *CreateVoiceEvent) error {
	room, err := ctl.Orch.CreateVoice(ctx, cid, ev.RoomConfig)
	if err != nil {
		return err
	}
	ctl.send(cid, voice.EventRoomCreated, RoomSnapshot{Room: room})
	return nil
}

// handleJoinVoice joins and then hands the joiner a full snapshot.
func (ctl *SignalWSController) handleJoinVoice(ctx context.Context, cid core.ConnectionID, ev *JoinVoiceEvent) error {
	room, err := ctl.Orch.JoinVoice(ctx, cid, ev.RoomID)
	if err != nil {
		return err
	}
	ctl.send(cid, EventRoomState, RoomSnapshot{Room: room})
	return nil
}
