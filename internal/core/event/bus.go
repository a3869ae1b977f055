package event

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/l1jgo/cmdbus/internal/core/ref"
)

// Bus maps tags to ordered subscriber lists and delivers synchronously.
// Game loop goroutine only: no locks. Every mutation is safe during an
// in-progress Send because Send iterates a snapshot.
type Bus struct {
	subs map[string][]*Subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Subscription)}
}

var global *Bus

// Global returns the process-wide bus, creating it on first use.
func Global() *Bus {
	if global == nil {
		global = NewBus()
	}
	return global
}

// Subscription is one (tag, callback) registration. It doubles as the
// Binding returned to the subscriber.
type Subscription struct {
	bus     *Bus
	tag     string
	typ     reflect.Type
	owner   ref.Owner
	deliver func(Notification)
	removed bool
}

func (s *Subscription) Tag() string { return s.tag }

// Unbind removes the subscription from its bus. Idempotent.
func (s *Subscription) Unbind() { s.bus.Remove(s) }

// Bound reports whether the subscription is still registered.
func (s *Subscription) Bound() bool { return !s.removed }

// Add registers fn for tag. T is the payload type fn accepts; a subscriber
// declaring Notification receives the whole envelope instead. owner may be
// nil; once it reports invalid the callback is never called again. owner is
// compared by identity in RemoveOwner, so pass a pointer.
func Add[T any](b *Bus, tag string, fn func(T), owner ref.Owner) *Subscription {
	t := reflect.TypeOf((*T)(nil)).Elem()
	s := &Subscription{bus: b, tag: tag, typ: t, owner: owner}
	s.deliver = func(n Notification) {
		if t == notificationType {
			fn(any(n).(T))
			return
		}
		if n.Payload == nil {
			var zero T
			fn(zero)
			return
		}
		p, ok := n.Payload.(T)
		if !ok {
			// Programming error: sender and subscriber disagree on the payload type.
			panic(fmt.Sprintf("event: tag %q sent %T to subscriber of %v", n.Tag, n.Payload, t))
		}
		fn(p)
	}
	b.subs[tag] = append(b.subs[tag], s)
	return s
}

// Remove drops a single subscription. No-op if it is not registered.
func (b *Bus) Remove(s *Subscription) {
	if s == nil || s.removed {
		return
	}
	s.removed = true
	b.drop(s.tag, func(x *Subscription) bool { return x == s })
}

// RemoveOwner drops every subscription registered with owner. Owners are
// matched by identity; an owner whose type is not comparable, such as a
// ref.Ref value, has none and matches nothing.
func (b *Bus) RemoveOwner(owner ref.Owner) {
	if owner == nil || !reflect.TypeOf(owner).Comparable() {
		return
	}
	for tag, list := range b.subs {
		for _, s := range list {
			if sameOwner(s.owner, owner) {
				s.removed = true
			}
		}
		b.drop(tag, func(x *Subscription) bool { return sameOwner(x.owner, owner) })
	}
}

// drop rebuilds the list for tag without the matching entries. A new slice
// is allocated so snapshots held by an in-progress Send stay intact.
func (b *Bus) drop(tag string, match func(*Subscription) bool) {
	list := b.subs[tag]
	kept := make([]*Subscription, 0, len(list))
	for _, s := range list {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, tag)
		return
	}
	b.subs[tag] = kept
}

// Send delivers payload to every subscriber of tag in registration order.
// Unknown tags are a no-op. Subscribers added during delivery are not called
// for this Send; subscribers removed during delivery are skipped.
func (b *Bus) Send(tag string, payload any) {
	list := b.subs[tag]
	if len(list) == 0 {
		return
	}
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)

	n := Notification{Tag: tag, Payload: payload}
	stale := false
	for _, s := range snapshot {
		if s.removed {
			continue
		}
		if s.owner != nil && !s.owner.Valid() {
			stale = true
			continue
		}
		s.deliver(n)
	}
	if stale {
		b.pruneStale(tag)
	}
}

func (b *Bus) pruneStale(tag string) {
	b.drop(tag, func(s *Subscription) bool {
		if s.owner != nil && !s.owner.Valid() {
			s.removed = true
			return true
		}
		return false
	})
}

// Count returns the number of subscribers for tag.
func (b *Bus) Count(tag string) int {
	return len(b.subs[tag])
}

// Tags returns every tag that has at least one subscriber, sorted.
func (b *Bus) Tags() []string {
	tags := make([]string, 0, len(b.subs))
	for t := range b.subs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// sameOwner compares owners without panicking on uncomparable dynamic types.
func sameOwner(a, b ref.Owner) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	return ta == reflect.TypeOf(b) && ta.Comparable() && a == b
}
