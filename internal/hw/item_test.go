package hw

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/fwdctl/internal/testutil/testlog"
)

func TestItemCreateCycle(t *testing.T) {
	testlog.Start(t)
	item := NewItem[uint32](5)
	if item.Status() != StatusUnset || item.Applied() {
		t.Fatalf("new item should be unset: %s", item)
	}
	if item.Current(5) {
		t.Fatalf("unset item must not be current")
	}

	item.Begin(5)
	if item.Status() != StatusPending {
		t.Fatalf("expected pending, got %s", item.Status())
	}
	item.Resolve(nil)
	if !item.Applied() || !item.Current(5) {
		t.Fatalf("expected applied 5, got %s", item)
	}
	if item.Current(6) {
		t.Fatalf("different value must not be current")
	}
}

func TestItemInvalidateOnlyFromApplied(t *testing.T) {
	testlog.Start(t)
	item := NewItem[uint32](1)
	item.Invalidate()
	if item.Status() != StatusUnset {
		t.Fatalf("invalidate of unset item changed status to %s", item.Status())
	}

	item = AppliedItem[uint32](1)
	item.Invalidate()
	if item.Status() != StatusStale {
		t.Fatalf("expected stale, got %s", item.Status())
	}
	item.Begin(2)
	if item.Status() != StatusPending || item.Data() != 2 {
		t.Fatalf("expected pending 2, got %s", item)
	}
}

func TestItemRestoreAfterFailedDelete(t *testing.T) {
	testlog.Start(t)
	item := AppliedItem[uint32](1)
	item.Invalidate()
	item.Restore(&RejectedError{Retval: -4})
	if !item.Current(1) {
		t.Fatalf("rejected delete must restore applied, got %s", item)
	}

	item.Invalidate()
	item.Restore(fmt.Errorf("issue: %w", ErrTransportTimeout))
	if item.Status() != StatusPending || item.Data() != 1 {
		t.Fatalf("timed out delete must leave pending 1, got %s", item)
	}

	item = NewItem[uint32](1)
	item.Restore(nil)
	if item.Status() != StatusUnset {
		t.Fatalf("restore only applies to stale items, got %s", item)
	}
}

func TestItemResolveOutcomes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		err  error
		want Status
	}{
		{name: "ok", err: nil, want: StatusApplied},
		{name: "rejected", err: &RejectedError{Cmd: "x", Retval: -6}, want: StatusFailed},
		{name: "failure", err: fmt.Errorf("%w: reset", ErrTransportFailure), want: StatusFailed},
		{name: "timeout", err: fmt.Errorf("%w: slow", ErrTransportTimeout), want: StatusPending},
	}
	for _, tc := range cases {
		item := NewItem("tap0")
		item.Begin("tap0")
		item.Resolve(tc.err)
		if item.Status() != tc.want {
			t.Fatalf("%s: status=%s want=%s", tc.name, item.Status(), tc.want)
		}
	}
}

func TestItemResolveIgnoredWhenNotPending(t *testing.T) {
	testlog.Start(t)
	item := AppliedItem[uint32](3)
	item.Resolve(errors.New("late reply"))
	if !item.Applied() {
		t.Fatalf("resolve without begin must not change status: %s", item.Status())
	}
}

func TestItemResolveWithAssignsValueOnlyOnSuccess(t *testing.T) {
	testlog.Start(t)
	item := NewItem[uint32](0)
	item.Begin(0)
	item.ResolveWith(9, nil)
	if !item.Current(9) {
		t.Fatalf("expected applied 9, got %s", item)
	}

	failed := NewItem[uint32](0)
	failed.Begin(0)
	failed.ResolveWith(9, &RejectedError{Retval: -1})
	if failed.Data() != 0 || failed.Status() != StatusFailed {
		t.Fatalf("expected failed 0, got %s", failed)
	}
}

func TestItemString(t *testing.T) {
	testlog.Start(t)
	item := AppliedItem[uint32](5)
	if got := item.String(); got != "[5:applied]" {
		t.Fatalf("unexpected string %q", got)
	}
}
