package singular

import (
	"cmp"
	"testing"

	"github.com/danmuck/fwdctl/internal/testutil/testlog"
)

type domain struct {
	id    uint32
	learn bool
}

func newStore() *Store[uint32, *domain] {
	return New[uint32, *domain](cmp.Compare[uint32])
}

func TestFindOrAddReturnsSameInstance(t *testing.T) {
	testlog.Start(t)
	s := newStore()
	first, added := s.FindOrAdd(5, func() *domain { return &domain{id: 5, learn: true} })
	if !added {
		t.Fatalf("expected first call to insert")
	}
	builds := 0
	second, added := s.FindOrAdd(5, func() *domain {
		builds++
		return &domain{id: 5, learn: false}
	})
	if added || builds != 0 {
		t.Fatalf("expected existing instance, added=%v builds=%d", added, builds)
	}
	if first != second {
		t.Fatalf("expected identical instance for key 5")
	}
	if !second.learn {
		t.Fatalf("candidate fields must be discarded on hit")
	}
	if s.Refs(5) != 2 || s.Len() != 1 {
		t.Fatalf("refs=%d len=%d", s.Refs(5), s.Len())
	}
}

func TestFindHasNoSideEffects(t *testing.T) {
	testlog.Start(t)
	s := newStore()
	if _, ok := s.Find(1); ok {
		t.Fatalf("unexpected hit on empty store")
	}
	s.FindOrAdd(1, func() *domain { return &domain{id: 1} })
	if _, ok := s.Find(1); !ok {
		t.Fatalf("expected hit")
	}
	if s.Refs(1) != 1 {
		t.Fatalf("find changed refs: %d", s.Refs(1))
	}
}

func TestReleaseDefersDeletion(t *testing.T) {
	testlog.Start(t)
	s := newStore()
	d, _ := s.FindOrAdd(7, func() *domain { return &domain{id: 7} })
	if _, ok := s.Acquire(7); !ok {
		t.Fatalf("acquire failed")
	}
	if left := s.Release(7); left != 1 {
		t.Fatalf("left=%d", left)
	}
	if len(s.Unreferenced()) != 0 {
		t.Fatalf("referenced instance listed as unreferenced")
	}
	if s.Remove(7, d) {
		t.Fatalf("remove must refuse while referenced")
	}
	if left := s.Release(7); left != 0 {
		t.Fatalf("left=%d", left)
	}
	if got, ok := s.Find(7); !ok || got != d {
		t.Fatalf("released instance must stay findable until removed")
	}
	if s.Release(7) != 0 {
		t.Fatalf("release below zero must clamp")
	}
	if s.Release(99) != -1 {
		t.Fatalf("unknown key should report -1")
	}
	if !s.Remove(7, d) {
		t.Fatalf("expected remove at zero refs")
	}
	if _, ok := s.Find(7); ok {
		t.Fatalf("instance still present after remove")
	}
}

func TestRemoveChecksIdentity(t *testing.T) {
	testlog.Start(t)
	s := newStore()
	s.FindOrAdd(3, func() *domain { return &domain{id: 3} })
	s.Release(3)
	if s.Remove(3, &domain{id: 3}) {
		t.Fatalf("remove must not match an equal but distinct instance")
	}
}

func TestOrderedListings(t *testing.T) {
	testlog.Start(t)
	s := newStore()
	for _, id := range []uint32{4, 1, 9, 2} {
		s.FindOrAdd(id, func() *domain { return &domain{id: id} })
	}
	keys := s.Keys()
	want := []uint32{1, 2, 4, 9}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys=%v want=%v", keys, want)
		}
	}
	vals := s.Values()
	if vals[0].id != 1 || vals[3].id != 9 {
		t.Fatalf("values not ordered")
	}

	s.Release(1)
	s.Release(9)
	unref := s.Unreferenced()
	if len(unref) != 2 || unref[0].id != 9 || unref[1].id != 1 {
		t.Fatalf("unreferenced should be descending: %v", unref)
	}

	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("clear left %d entries", s.Len())
	}
}
