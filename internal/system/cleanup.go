package system

import (
	"time"

	coresys "github.com/l1jgo/cmdbus/internal/core/system"
	"github.com/l1jgo/cmdbus/internal/scene"
)

// CleanupSystem frees scene nodes destroyed during the tick.
// Phase 2 (Cleanup).
type CleanupSystem struct {
	scene *scene.Scene
}

func NewCleanupSystem(sc *scene.Scene) *CleanupSystem {
	return &CleanupSystem{scene: sc}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.scene.Flush()
}
