package signal

import (
	"github.com/dkeye/Resonance/internal/core"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards offer/answer/candidate bodies untouched; the server
// never inspects SDP or candidates.
func (ctl *SignalWSController) handleRelay(cid core.ConnectionID, ev *SignalEvent) error {
	log.Debug().Str("module", "signal").Str("conn", string(cid)).Str("to", string(ev.TargetUserID)).Str("kind", string(ev.Kind)).Int("bytes", len(ev.Payload)).Msg("relay")
	return ctl.Orch.RelaySignal(cid, ev.TargetUserID, ev.Kind, ev.Payload)
}
