package signal

import (
	"time"

	"github.com/dkeye/Resonance/internal/core"
)

func (ctl *SignalWSController) handlePing(cid core.ConnectionID) {
	ctl.send(cid, "pong", struct {
		At time.Time `json:"at"`
	}{At: time.Now()})
}
