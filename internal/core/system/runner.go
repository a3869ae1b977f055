package system

import (
	"sort"
	"time"

	"github.com/l1jgo/cmdbus/internal/core/binding"
)

// Runner executes systems in phase order each tick. Systems in the same
// phase run in registration order.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

// Register adds s to the tick. The returned binding removes it again; a
// system removed during a tick still finishes that tick.
func (r *Runner) Register(s System) binding.Binding {
	r.systems = append(r.systems, s)
	r.sorted = false
	return binding.New(func() { r.remove(s) })
}

func (r *Runner) remove(s System) {
	kept := make([]System, 0, len(r.systems))
	for _, cur := range r.systems {
		if cur != s {
			kept = append(kept, cur)
		}
	}
	r.systems = kept
}

// Len returns the number of registered systems.
func (r *Runner) Len() int { return len(r.systems) }

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

// TickPhase 只執行指定 Phase 的 System。
// 用於高頻輸入輪詢：在完整 tick 之間只跑 Phase 0，縮短命令分派延遲。
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
