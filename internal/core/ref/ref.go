package ref

// Owner is anything whose lifetime is controlled elsewhere and can report
// whether it still exists. Scene nodes, registries and refs all satisfy it.
type Owner interface {
	Valid() bool
}

// Ref observes a referent owned by someone else. The liveness predicate is
// evaluated on every call and the resolved value is never cached, so a Ref
// stored in a bus or binding stays safe after its owner is destroyed.
type Ref[T any] struct {
	v     T
	valid func() bool
}

// New returns a Ref to v guarded by valid. A nil predicate means the
// referent never expires.
func New[T any](v T, valid func() bool) Ref[T] {
	return Ref[T]{v: v, valid: valid}
}

// OwnedBy returns a Ref to v that lives as long as owner does.
func OwnedBy[T any](v T, owner Owner) Ref[T] {
	if owner == nil {
		return Ref[T]{v: v}
	}
	return Ref[T]{v: v, valid: owner.Valid}
}

// Releasable returns a Ref with an intrinsic predicate: it is valid until
// release is called. release is safe to call more than once.
func Releasable[T any](v T) (Ref[T], func()) {
	released := false
	r := Ref[T]{v: v, valid: func() bool { return !released }}
	return r, func() { released = true }
}

// Valid reports whether the referent still exists.
func (r Ref[T]) Valid() bool {
	if r.valid == nil {
		return true
	}
	return r.valid()
}

// Value returns the referent, or T's zero value once the referent is gone.
func (r Ref[T]) Value() T {
	if !r.Valid() {
		var zero T
		return zero
	}
	return r.v
}

// Get is Value with an explicit liveness flag.
func (r Ref[T]) Get() (T, bool) {
	if !r.Valid() {
		var zero T
		return zero, false
	}
	return r.v, true
}

// Guard wraps fn so that it only runs while owner is valid.
func Guard[T any](fn func(T), owner Owner) func(T) {
	return func(v T) {
		if owner != nil && !owner.Valid() {
			return
		}
		fn(v)
	}
}
