package ref

import "testing"

type resource struct {
	name      string
	destroyed bool
}

func (r *resource) Valid() bool { return !r.destroyed }

func TestRef_FlipsAfterDestroy(t *testing.T) {
	res := &resource{name: "door"}
	r := OwnedBy(res, res)

	if !r.Valid() {
		t.Fatal("expected ref to be valid before destroy")
	}
	if got := r.Value(); got != res {
		t.Fatalf("Value() = %v, want %v", got, res)
	}

	res.destroyed = true

	if r.Valid() {
		t.Error("expected ref to be invalid after destroy")
	}
	if got := r.Value(); got != nil {
		t.Errorf("Value() after destroy = %v, want nil", got)
	}
	if _, ok := r.Get(); ok {
		t.Error("Get() reported ok after destroy")
	}
}

func TestRef_PredicateEvaluatedEachCall(t *testing.T) {
	calls := 0
	alive := true
	r := New(42, func() bool {
		calls++
		return alive
	})

	r.Valid()
	r.Value()
	r.Get()
	if calls != 3 {
		t.Errorf("predicate called %d times, want 3", calls)
	}

	alive = false
	if got := r.Value(); got != 0 {
		t.Errorf("Value() = %d, want zero value", got)
	}
	alive = true
	if got := r.Value(); got != 42 {
		t.Errorf("Value() = %d, want 42 once valid again", got)
	}
}

func TestRef_NilPredicateNeverExpires(t *testing.T) {
	r := New("tag", nil)
	if !r.Valid() || r.Value() != "tag" {
		t.Error("ref with nil predicate should always be valid")
	}

	var zero Ref[*resource]
	if !zero.Valid() {
		t.Error("zero Ref should be valid")
	}
	if zero.Value() != nil {
		t.Error("zero Ref should hold nil")
	}

	owned := OwnedBy[string]("x", nil)
	if !owned.Valid() {
		t.Error("OwnedBy(nil) should never expire")
	}
}

func TestReleasable(t *testing.T) {
	r, release := Releasable("handle")
	if !r.Valid() {
		t.Fatal("expected valid before release")
	}
	release()
	release()
	if r.Valid() {
		t.Error("expected invalid after release")
	}
	if r.Value() != "" {
		t.Errorf("Value() = %q after release, want empty", r.Value())
	}
}

func TestGuard(t *testing.T) {
	res := &resource{}
	var got []int
	fn := Guard(func(v int) { got = append(got, v) }, res)

	fn(1)
	res.destroyed = true
	fn(2)

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("guarded calls = %v, want [1]", got)
	}

	unguarded := Guard(func(v int) { got = append(got, v) }, nil)
	unguarded(3)
	if len(got) != 2 {
		t.Errorf("nil owner should not block calls, got %v", got)
	}
}
