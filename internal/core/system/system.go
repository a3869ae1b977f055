package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: drain the inbound feed into the bus
	PhasePersist              // 1: journal flush
	PhaseCleanup              // 2: destroy queued scene nodes
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
