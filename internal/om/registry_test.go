package om

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/danmuck/fwdctl/internal/singular"
	"github.com/danmuck/fwdctl/internal/testutil/testlog"
)

// world is a tiny two-kind model: tables and rows that reference a table.
type world struct {
	log      []string
	failures map[string]error
	tables   *singular.Store[int, *table]
	rows     *singular.Store[int, *row]
}

func newWorld() *world {
	return &world{
		failures: make(map[string]error),
		tables:   singular.New[int, *table](cmp.Compare[int]),
		rows:     singular.New[int, *row](cmp.Compare[int]),
	}
}

func (w *world) issue(op string) error {
	if err := w.failures[op]; err != nil {
		return err
	}
	w.log = append(w.log, op)
	return nil
}

type table struct {
	w    *world
	id   int
	live bool
}

func (t *table) Key() int       { return t.id }
func (t *table) Live() bool     { return t.live }
func (t *table) String() string { return fmt.Sprintf("table %d live:%v", t.id, t.live) }
func (t *table) Release()       { t.w.tables.Release(t.id) }

func (t *table) Replay(ctx context.Context) (bool, error) {
	if !t.live {
		return false, nil
	}
	if err := t.w.issue(fmt.Sprintf("create table %d", t.id)); err != nil {
		t.live = false
		return true, err
	}
	return true, nil
}

func (t *table) Sweep(ctx context.Context) error {
	if !t.live {
		return nil
	}
	if err := t.w.issue(fmt.Sprintf("delete table %d", t.id)); err != nil {
		return err
	}
	t.live = false
	return nil
}

type row struct {
	w     *world
	id    int
	table *table
	live  bool
}

func (r *row) Key() int       { return r.id }
func (r *row) Live() bool     { return r.live }
func (r *row) String() string { return fmt.Sprintf("row %d table:%d live:%v", r.id, r.table.id, r.live) }
func (r *row) Release()       { r.w.rows.Release(r.id) }

func (r *row) Replay(ctx context.Context) (bool, error) {
	if !r.live {
		return false, nil
	}
	return true, r.w.issue(fmt.Sprintf("create row %d", r.id))
}

func (r *row) Sweep(ctx context.Context) error {
	if r.live {
		if err := r.w.issue(fmt.Sprintf("delete row %d", r.id)); err != nil {
			return err
		}
		r.live = false
	}
	r.table.Release()
	return nil
}

type desiredTable struct {
	w  *world
	id int
}

func (d desiredTable) Commit(ctx context.Context) (Object, error) {
	t, _ := d.w.tables.FindOrAdd(d.id, func() *table { return &table{w: d.w, id: d.id} })
	if t.live {
		return t, nil
	}
	if err := d.w.issue(fmt.Sprintf("create table %d", d.id)); err != nil {
		return t, err
	}
	t.live = true
	return t, nil
}

type desiredRow struct {
	w     *world
	id    int
	table int
}

func (d desiredRow) Commit(ctx context.Context) (Object, error) {
	if existing, ok := d.w.rows.Find(d.id); ok && existing.live {
		d.w.rows.Acquire(d.id)
		return existing, nil
	}
	t, ok := d.w.tables.Acquire(d.table)
	if !ok {
		return nil, Unresolved("table", d.table)
	}
	r, added := d.w.rows.FindOrAdd(d.id, func() *row { return &row{w: d.w, id: d.id, table: t} })
	if !added {
		t.Release()
	}
	if err := d.w.issue(fmt.Sprintf("create row %d", d.id)); err != nil {
		return r, err
	}
	r.live = true
	return r, nil
}

func newRegistry(t *testing.T, w *world) *Registry {
	t.Helper()
	reg := NewRegistry()
	populateTables := func(ctx context.Context) ([]*table, error) {
		tb, _ := w.tables.FindOrAdd(100, func() *table { return &table{w: w, id: 100, live: true} })
		return []*table{tb}, nil
	}
	if err := reg.Register(NewKind[int, *row]("row", DepEntry, w.rows, nil)); err != nil {
		t.Fatalf("register row: %v", err)
	}
	if err := reg.Register(NewKind[int, *table]("table", DepTable, w.tables, populateTables)); err != nil {
		t.Fatalf("register table: %v", err)
	}
	return reg
}

func TestRegisterOrdersAndRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	got := strings.Join(reg.Listeners(), ",")
	if got != "table,row" {
		t.Fatalf("listeners=%s", got)
	}
	err := reg.Register(NewKind[int, *table]("table", DepTable, w.tables, nil))
	if !errors.Is(err, ErrDuplicateListener) {
		t.Fatalf("expected duplicate listener, got %v", err)
	}
}

func TestPopulateRunsOnceAndBootSessionSweeps(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	boot := NewSessionKey("boot")

	if err := reg.Populate(ctx, boot); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if reg.State() != StatePopulated {
		t.Fatalf("state=%s", reg.State())
	}
	if err := reg.Populate(ctx, boot); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second populate to fail, got %v", err)
	}
	if w.tables.Refs(100) != 1 {
		t.Fatalf("populated table refs=%d", w.tables.Refs(100))
	}

	report, err := reg.Remove(ctx, boot)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if report.Attempted != 1 || report.Failed != 0 {
		t.Fatalf("report=%+v", report)
	}
	if strings.Join(w.log, ";") != "delete table 100" {
		t.Fatalf("log=%v", w.log)
	}
	if w.tables.Len() != 0 {
		t.Fatalf("table still stored")
	}
}

func TestWriteTwiceKeepsOneReference(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	client := NewSessionKey("client")

	first, err := reg.Write(ctx, client, desiredTable{w: w, id: 5})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	second, err := reg.Write(ctx, client, desiredTable{w: w, id: 5})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if first != second {
		t.Fatalf("expected canonical handle")
	}
	if w.tables.Refs(5) != 1 {
		t.Fatalf("refs=%d", w.tables.Refs(5))
	}
	if len(w.log) != 1 {
		t.Fatalf("expected one create, got %v", w.log)
	}
	if reg.State() != StateSteady {
		t.Fatalf("state=%s", reg.State())
	}
}

func TestSweepDeletesDependentsFirst(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	client := NewSessionKey("client")

	tb, _ := reg.Write(ctx, client, desiredTable{w: w, id: 5})
	rw, err := reg.Write(ctx, client, desiredRow{w: w, id: 1, table: 5})
	if err != nil {
		t.Fatalf("write row: %v", err)
	}

	if !reg.Release(client, tb) {
		t.Fatalf("release table failed")
	}
	report, _ := reg.Sweep(ctx)
	if report.Attempted != 0 {
		t.Fatalf("table still referenced by row must not be swept: %+v", report)
	}

	if !reg.Release(client, rw) {
		t.Fatalf("release row failed")
	}
	if reg.Release(client, rw) {
		t.Fatalf("second release must report false")
	}
	report, _ = reg.Sweep(ctx)
	if report.Attempted != 2 || report.Failed != 0 {
		t.Fatalf("report=%+v", report)
	}
	want := "create table 5;create row 1;delete row 1;delete table 5"
	if got := strings.Join(w.log, ";"); got != want {
		t.Fatalf("log=%s want=%s", got, want)
	}
}

func TestSweepKeepsEntityWhenDeleteFails(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	client := NewSessionKey("client")

	reg.Write(ctx, client, desiredTable{w: w, id: 5})
	w.failures["delete table 5"] = errors.New("busy")
	report, err := reg.Remove(ctx, client)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if report.Failed != 1 || report.Err() == nil {
		t.Fatalf("report=%+v", report)
	}
	if _, ok := w.tables.Find(5); !ok {
		t.Fatalf("failed delete must keep the entity")
	}

	delete(w.failures, "delete table 5")
	report, _ = reg.Sweep(ctx)
	if report.Attempted != 1 || report.Failed != 0 || w.tables.Len() != 0 {
		t.Fatalf("retry sweep report=%+v len=%d", report, w.tables.Len())
	}
}

func TestWriteUnresolvedDependency(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	obj, err := reg.Write(context.Background(), NewSessionKey("client"), desiredRow{w: w, id: 1, table: 42})
	if !errors.Is(err, ErrDependencyUnresolved) || obj != nil {
		t.Fatalf("expected unresolved dependency, obj=%v err=%v", obj, err)
	}
	if w.rows.Len() != 0 || len(reg.Clients()) != 0 {
		t.Fatalf("failed construction must leave no trace")
	}
}

func TestReplayOrderAndSkipOnFailure(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	if _, err := reg.Replay(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected replay before any state to fail, got %v", err)
	}
	client := NewSessionKey("client")

	reg.Write(ctx, client, desiredRow{w: w, id: 2, table: 7})
	reg.Write(ctx, client, desiredTable{w: w, id: 7})
	reg.Write(ctx, client, desiredTable{w: w, id: 3})
	reg.Write(ctx, client, desiredRow{w: w, id: 2, table: 7})
	reg.Write(ctx, client, desiredRow{w: w, id: 1, table: 3})
	w.log = nil

	w.failures["create table 3"] = errors.New("rejected")
	report, err := reg.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if report.Attempted != 4 || report.Failed != 1 {
		t.Fatalf("report=%+v", report)
	}
	want := "create table 7;create row 1;create row 2"
	if got := strings.Join(w.log, ";"); got != want {
		t.Fatalf("log=%s want=%s", got, want)
	}
	if reg.State() != StateSteady {
		t.Fatalf("state=%s", reg.State())
	}
}

func TestMarkAndSweepStale(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	file := NewSessionKey("file")

	reg.Write(ctx, file, desiredTable{w: w, id: 1})
	reg.Write(ctx, file, desiredTable{w: w, id: 2})

	if n := reg.Mark(file); n != 2 {
		t.Fatalf("marked=%d", n)
	}
	reg.Write(ctx, file, desiredTable{w: w, id: 2})
	clients := reg.Clients()
	if len(clients) != 1 || clients[0].Stale != 1 {
		t.Fatalf("clients=%+v", clients)
	}

	report, err := reg.SweepStale(ctx, file)
	if err != nil {
		t.Fatalf("sweep stale: %v", err)
	}
	if report.Attempted != 1 {
		t.Fatalf("report=%+v", report)
	}
	if _, ok := w.tables.Find(1); ok {
		t.Fatalf("stale table 1 should be gone")
	}
	if _, ok := w.tables.Find(2); !ok {
		t.Fatalf("rewritten table 2 must survive")
	}
}

func TestShowAndTeardown(t *testing.T) {
	testlog.Start(t)
	w := newWorld()
	reg := newRegistry(t, w)
	ctx := context.Background()
	client := NewSessionKey("client")
	reg.Write(ctx, client, desiredTable{w: w, id: 9})
	reg.Write(ctx, client, desiredTable{w: w, id: 4})

	var buf bytes.Buffer
	if err := reg.Show(&buf, "table"); err != nil {
		t.Fatalf("show: %v", err)
	}
	want := "table: 2\n  table 4 live:true refs:1\n  table 9 live:true refs:1\n"
	if buf.String() != want {
		t.Fatalf("show=%q want=%q", buf.String(), want)
	}
	if err := reg.Show(&buf, "nope"); !errors.Is(err, ErrUnknownListener) {
		t.Fatalf("expected unknown listener, got %v", err)
	}

	buf.Reset()
	if err := reg.ShowAll(&buf); err != nil {
		t.Fatalf("show all: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "table: 2\n") || !strings.Contains(buf.String(), "row: 0\n") {
		t.Fatalf("show all=%q", buf.String())
	}

	reg.Teardown()
	if reg.State() != StateTornDown || w.tables.Len() != 0 || len(reg.Clients()) != 0 {
		t.Fatalf("teardown left state=%s tables=%d", reg.State(), w.tables.Len())
	}
	if _, err := reg.Write(ctx, client, desiredTable{w: w, id: 1}); !errors.Is(err, ErrTornDown) {
		t.Fatalf("expected torn down, got %v", err)
	}
	if len(w.log) != 2 {
		t.Fatalf("teardown must not touch the dataplane: %v", w.log)
	}
}

func TestNewSessionKeyIsUnique(t *testing.T) {
	testlog.Start(t)
	a, b := NewSessionKey("boot"), NewSessionKey("boot")
	if a == b || !strings.HasPrefix(string(a), "boot-") {
		t.Fatalf("keys a=%s b=%s", a, b)
	}
	if !strings.HasPrefix(string(NewSessionKey(" ")), "session-") {
		t.Fatalf("blank prefix should default")
	}
}
