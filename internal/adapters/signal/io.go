package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when it returns the session is cleaned up.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cid)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		ctl.Orch.Touch(cid)
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleSignal(ctx, cid, data)
	}
}

// handleSignal decodes one inbound frame and dispatches it. Unknown events and
// malformed payloads are dropped; the connection stays open.
func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnectionID, data []byte) {
	var env app.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad json")
		return
	}
	ctl.Orch.Touch(cid)

	ev, known, err := decode(env.Event, env.Data)
	if !known {
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown signal")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("event", env.Event).Msg("dropped payload")
		return
	}
	if err := ctl.dispatch(ctx, cid, env.Event, ev); err != nil {
		ctl.sendError(cid, env.Event, err)
	}
}

func (ctl *SignalWSController) send(cid core.ConnectionID, event string, v any) {
	ctl.Orch.Out.ToConnection(cid, event, v)
}
