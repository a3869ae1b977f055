package persist

import (
	"context"
	"time"

	"github.com/l1jgo/cmdbus/internal/command"
	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// JournalEntry records what happened to one delivered notification.
type JournalEntry struct {
	Tag     string
	Outcome string
	Detail  string // JSON document
	At      time.Time
}

// JournalWriter persists a batch of entries.
type JournalWriter interface {
	WriteBatch(ctx context.Context, entries []JournalEntry) error
}

// Journal buffers registry outcomes in memory until the journal system
// flushes them. It implements command.Observer. Game loop goroutine only.
type Journal struct {
	buf     []JournalEntry
	max     int
	dropped int
	now     func() time.Time
	log     *zap.Logger
}

func NewJournal(maxBuffered int, log *zap.Logger) *Journal {
	return &Journal{
		buf: make([]JournalEntry, 0, 64),
		max: maxBuffered,
		now: time.Now,
		log: log,
	}
}

// Observe appends one entry. Past the buffer limit the oldest entry is
// dropped so a stalled database cannot grow memory without bound.
func (j *Journal) Observe(n event.Notification, o command.Outcome) {
	if j.max > 0 && len(j.buf) >= j.max {
		j.buf = j.buf[1:]
		j.dropped++
	}
	j.buf = append(j.buf, JournalEntry{
		Tag:     n.Tag,
		Outcome: o.String(),
		Detail:  j.detail(n),
		At:      j.now(),
	})
}

func (j *Journal) detail(n event.Notification) string {
	doc, _ := sjson.Set("{}", "tag", n.Tag)
	if n.Payload == nil {
		return doc
	}
	var err error
	var withPayload string
	if r, ok := n.Payload.(gjson.Result); ok {
		withPayload, err = sjson.SetRaw(doc, "payload", r.Raw)
	} else {
		withPayload, err = sjson.Set(doc, "payload", n.Payload)
	}
	if err != nil {
		doc, _ = sjson.Set(doc, "payload_error", err.Error())
		return doc
	}
	return withPayload
}

// Len returns the number of buffered entries.
func (j *Journal) Len() int { return len(j.buf) }

// Dropped returns how many entries were discarded because the buffer was full.
func (j *Journal) Dropped() int { return j.dropped }

// Flush hands the buffer to w. On failure the entries stay buffered for the
// next attempt.
func (j *Journal) Flush(ctx context.Context, w JournalWriter) error {
	if len(j.buf) == 0 {
		return nil
	}
	batch := j.buf
	if err := w.WriteBatch(ctx, batch); err != nil {
		return err
	}
	j.buf = make([]JournalEntry, 0, cap(batch))
	j.log.Debug("分派日誌已寫入", zap.Int("entries", len(batch)))
	return nil
}
