package system

import (
	"time"

	"github.com/l1jgo/cmdbus/internal/core/event"
	coresys "github.com/l1jgo/cmdbus/internal/core/system"
	"github.com/l1jgo/cmdbus/internal/net"
	"go.uber.org/zap"
)

// InputSystem drains the inbound feed and sends each line on the bus.
// Phase 0 (Input).
type InputSystem struct {
	feed       <-chan net.Inbound
	bus        *event.Bus
	maxPerTick int
	log        *zap.Logger

	delivered uint64
	failed    uint64
}

func NewInputSystem(feed <-chan net.Inbound, bus *event.Bus, maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{
		feed:       feed,
		bus:        bus,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case in := <-s.feed:
			if safeSend(s.bus, in.Tag, in.Payload, s.log.With(zap.Uint64("session", in.Session))) {
				s.delivered++
			} else {
				s.failed++
			}
		default:
			return
		}
	}
}

// Stats returns delivered and panicked notification counts.
func (s *InputSystem) Stats() (delivered, failed uint64) {
	return s.delivered, s.failed
}
