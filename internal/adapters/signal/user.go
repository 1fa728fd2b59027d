package signal

import (
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/pion/webrtc/v4"
)

const EventConnectionReady = "connection:ready"

type ReadyPayload struct {
	ConnectionID core.ConnectionID  `json:"connectionId"`
	UserID       domain.UserID      `json:"userId"`
	DisplayName  string             `json:"displayName"`
	ICEServers   []webrtc.ICEServer `json:"iceServers"`
}

// sendReady greets a freshly registered connection with its identity and ICE servers.
func (ctl *SignalWSController) sendReady(sess *core.ConnectionSession) {
	ice := ctl.ICE
	if ice == nil {
		ice = []webrtc.ICEServer{}
	}
	ctl.send(sess.ID, EventConnectionReady, ReadyPayload{
		ConnectionID: sess.ID,
		UserID:       sess.UserID,
		DisplayName:  sess.DisplayName,
		ICEServers:   ice,
	})
}
