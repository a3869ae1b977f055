package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/cmdbus/internal/core/system"
	"github.com/l1jgo/cmdbus/internal/persist"
	"go.uber.org/zap"
)

// JournalSystem periodically writes the dispatch journal. Phase 1 (Persist).
type JournalSystem struct {
	journal   *persist.Journal
	writer    persist.JournalWriter
	log       *zap.Logger
	tickCount int
	interval  int // flush every N ticks
}

func NewJournalSystem(j *persist.Journal, w persist.JournalWriter, intervalTicks int, log *zap.Logger) *JournalSystem {
	return &JournalSystem{
		journal:  j,
		writer:   w,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush writes everything buffered now. Called on shutdown as well.
func (s *JournalSystem) Flush() {
	n := s.journal.Len()
	if n == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Flush(ctx, s.writer); err != nil {
		s.log.Error("分派日誌寫入失敗", zap.Int("entries", n), zap.Error(err))
	}
}
