// Package testutil holds fakes shared by package tests.
package testutil

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Resonance/internal/core"
)

var (
	ErrFull   = errors.New("buffer full")
	ErrClosed = errors.New("connection closed")
)

type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RecordingConn is a SignalConnection that keeps every frame it accepts.
type RecordingConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func NewRecordingConn() *RecordingConn { return &RecordingConn{} }

func (c *RecordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.full {
		return ErrFull
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *RecordingConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetFull makes subsequent sends fail as if the buffer were saturated.
func (c *RecordingConn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *RecordingConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, 0, len(c.frames))
	for _, f := range c.frames {
		var e Event
		if err := json.Unmarshal(f, &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Named returns the recorded events called name.
func (c *RecordingConn) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *RecordingConn) Count(name string) int { return len(c.Named(name)) }

func (c *RecordingConn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
