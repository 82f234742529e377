package scope

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveAssignsOffsetsInFirstSightedOrder(t *testing.T) {
	s := New()
	for _, name := range []string{"b", "a", "b", "c", "a"} {
		s.Resolve(name)
	}
	want := []Var{{"b", 8}, {"a", 16}, {"c", 24}}
	if diff := cmp.Diff(want, s.Vars()); diff != "" {
		t.Errorf("Vars mismatch (-want +got):\n%s", diff)
	}
	if s.FrameSize() != 24 {
		t.Errorf("FrameSize = %d; want 24", s.FrameSize())
	}
}

func TestResolveReportsCreation(t *testing.T) {
	s := New()
	v1, created := s.Resolve("x")
	if !created {
		t.Error("first Resolve should create the variable")
	}
	v2, created := s.Resolve("x")
	if created {
		t.Error("second Resolve should not create a variable")
	}
	if v1 != v2 {
		t.Error("Resolve returned different entries for the same name")
	}
}

func TestLookupIsExact(t *testing.T) {
	s := New()
	s.Resolve("ab")
	if _, ok := s.Lookup("a"); ok {
		t.Error("Lookup(a) matched a prefix of ab")
	}
	if _, ok := s.Lookup("abc"); ok {
		t.Error("Lookup(abc) matched an extension of ab")
	}
	if v, ok := s.Lookup("ab"); !ok || v.Offset != 8 {
		t.Errorf("Lookup(ab) = %v, %v", v, ok)
	}
	if s.FrameSize() != 8 {
		t.Errorf("Lookup must not allocate; FrameSize = %d", s.FrameSize())
	}
}

func TestEmptyScope(t *testing.T) {
	s := New()
	if s.FrameSize() != 0 || len(s.Vars()) != 0 {
		t.Errorf("new scope has frame %d and %d vars", s.FrameSize(), len(s.Vars()))
	}
}
