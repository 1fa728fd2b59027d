package app

import "github.com/dkeye/Resonance/internal/core"

type BackpressureAction int

const (
	KickMember BackpressureAction = iota
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(sess *core.ConnectionSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.ConnectionSession) BackpressureAction {
	return KickMember
}

// LenientPolicy only drops the frame, for clients that tolerate gaps.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(*core.ConnectionSession) BackpressureAction {
	return DropFrame
}
