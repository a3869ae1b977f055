package system

import (
	"github.com/l1jgo/cmdbus/internal/core/event"
	"go.uber.org/zap"
)

// safeSend delivers one notification with panic recovery so a single bad
// command cannot crash the whole game loop. Reports whether it completed.
func safeSend(bus *event.Bus, tag string, payload any, log *zap.Logger) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("命令 panic 已恢復",
				zap.String("tag", tag),
				zap.Any("panic", rec),
			)
			ok = false
		}
	}()
	bus.Send(tag, payload)
	return true
}
