package om

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/fwdctl/internal/observability"
	"github.com/rs/zerolog/log"
)

// State is the registry lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StatePopulated
	StateSteady
	StateReplaying
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePopulated:
		return "populated"
	case StateSteady:
		return "steady"
	case StateReplaying:
		return "replaying"
	case StateTornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Registry is the desired-state ledger and pass coordinator for every
// registered object kind.
type Registry struct {
	mu        sync.Mutex
	state     atomic.Int32
	listeners []Listener
	clients   map[ClientKey]map[Object]*association
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[ClientKey]map[Object]*association)}
}

func (r *Registry) State() State {
	return State(r.state.Load())
}

// Register adds l, keeping listeners sorted by order then name.
func (r *Registry) Register(l Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateTornDown {
		return ErrTornDown
	}
	for _, existing := range r.listeners {
		if existing.Name() == l.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateListener, l.Name())
		}
	}
	r.listeners = append(r.listeners, l)
	slices.SortStableFunc(r.listeners, func(a, b Listener) int {
		if a.Order() != b.Order() {
			return int(a.Order()) - int(b.Order())
		}
		if a.Name() < b.Name() {
			return -1
		}
		if a.Name() > b.Name() {
			return 1
		}
		return 0
	})
	return nil
}

// Populate reads existing dataplane objects of every kind, in ascending
// dependency order, and associates them with key. It runs once.
func (r *Registry) Populate(ctx context.Context, key ClientKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.expect(StateUninitialized); err != nil {
		return err
	}
	start := time.Now()
	total := 0
	for _, l := range r.listeners {
		objs, err := l.HandlePopulate(ctx)
		for _, obj := range objs {
			r.associate(key, obj)
		}
		total += len(objs)
		observability.RecordPass("populate", len(objs), 0)
		if err != nil {
			r.observe()
			return fmt.Errorf("populate %s: %w", l.Name(), err)
		}
		log.Debug().Str("kind", l.Name()).Int("objects", len(objs)).Msg("om.Registry populate kind")
	}
	r.state.Store(int32(StatePopulated))
	r.observe()
	log.Info().
		Str("client", string(key)).
		Int("objects", total).
		Dur("elapsed", time.Since(start)).
		Msg("om.Registry populate complete")
	return nil
}

// Write commits desired and records it against key. The canonical handle is
// returned even when the commit failed, so the caller can retry with another
// Write or give it up with Release.
func (r *Registry) Write(ctx context.Context, key ClientKey, desired Desired) (Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateTornDown {
		return nil, ErrTornDown
	}
	obj, err := desired.Commit(ctx)
	if obj == nil {
		return nil, err
	}
	r.associate(key, obj)
	r.state.Store(int32(StateSteady))
	r.observe()
	return obj, err
}

// Release gives up key's interest in obj. Nothing is sent to the dataplane
// until the next Sweep.
func (r *Registry) Release(key ClientKey, obj Object) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	objs, ok := r.clients[key]
	if !ok {
		return false
	}
	if _, ok := objs[obj]; !ok {
		return false
	}
	delete(objs, obj)
	if len(objs) == 0 {
		delete(r.clients, key)
	}
	obj.Release()
	return true
}

// Mark flags every association of key as stale. A later Write of the same
// object clears the flag; SweepStale releases whatever is still flagged.
func (r *Registry) Mark(key ClientKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	objs := r.clients[key]
	for _, a := range objs {
		a.stale = true
	}
	return len(objs)
}

// SweepStale releases key's stale associations and sweeps.
func (r *Registry) SweepStale(ctx context.Context, key ClientKey) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateTornDown {
		return Report{}, ErrTornDown
	}
	released := 0
	for obj, a := range r.clients[key] {
		if !a.stale {
			continue
		}
		delete(r.clients[key], obj)
		obj.Release()
		released++
	}
	if len(r.clients[key]) == 0 {
		delete(r.clients, key)
	}
	log.Debug().Str("client", string(key)).Int("released", released).Msg("om.Registry stale released")
	return r.sweep(ctx), nil
}

// Remove tears down the session key: every association is released and the
// registry is swept.
func (r *Registry) Remove(ctx context.Context, key ClientKey) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateTornDown {
		return Report{}, ErrTornDown
	}
	objs := r.clients[key]
	delete(r.clients, key)
	for obj := range objs {
		obj.Release()
	}
	log.Debug().Str("client", string(key)).Int("released", len(objs)).Msg("om.Registry client removed")
	return r.sweep(ctx), nil
}

// Sweep deletes every object no holder references, dependents first.
func (r *Registry) Sweep(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateTornDown {
		return Report{}, ErrTornDown
	}
	return r.sweep(ctx), nil
}

// Replay re-creates every applied object after a reconnect, in ascending
// dependency order. A failed object is counted and skipped.
func (r *Registry) Replay(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.State()
	if prev == StateTornDown {
		return Report{}, ErrTornDown
	}
	if prev == StateUninitialized {
		return Report{}, fmt.Errorf("%w: replay before populate or write", ErrInvalidState)
	}
	r.state.Store(int32(StateReplaying))
	defer r.state.Store(int32(StateSteady))

	start := time.Now()
	var report Report
	for _, l := range r.listeners {
		part := l.HandleReplay(ctx)
		observability.RecordPass("replay", part.Attempted, part.Failed)
		report.Merge(part)
	}
	r.observe()
	log.Info().
		Int("attempted", report.Attempted).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("om.Registry replay complete")
	return report, nil
}

// Teardown drops every object and session without touching the dataplane.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateTornDown {
		return
	}
	for i := len(r.listeners) - 1; i >= 0; i-- {
		r.listeners[i].HandleTeardown()
	}
	clear(r.clients)
	r.observe()
	r.state.Store(int32(StateTornDown))
	log.Info().Msg("om.Registry torn down")
}

// Listeners returns listener names in pass order.
func (r *Registry) Listeners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l.Name())
	}
	return out
}

// Show writes the listing of the named kind.
func (r *Registry) Show(w io.Writer, name string) error {
	l, ok := r.listener(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownListener, name)
	}
	return l.Show(w)
}

// ShowAll writes every kind in pass order.
func (r *Registry) ShowAll(w io.Writer) error {
	r.mu.Lock()
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()
	for _, l := range listeners {
		if err := l.Show(w); err != nil {
			return err
		}
	}
	return nil
}

// Clients lists sessions sorted by key with their objects sorted by name.
func (r *Registry) Clients() []ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := slices.Sorted(maps.Keys(r.clients))
	out := make([]ClientInfo, 0, len(keys))
	for _, key := range keys {
		info := ClientInfo{Key: key}
		for obj, a := range r.clients[key] {
			info.Objects = append(info.Objects, obj.String())
			if a.stale {
				info.Stale++
			}
		}
		slices.Sort(info.Objects)
		out = append(out, info)
	}
	return out
}

func (r *Registry) listener(name string) (Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		if l.Name() == name {
			return l, true
		}
	}
	return nil, false
}

// associate records obj for key. A repeated association releases the extra
// reference taken by Commit and clears the stale mark.
func (r *Registry) associate(key ClientKey, obj Object) {
	objs, ok := r.clients[key]
	if !ok {
		objs = make(map[Object]*association)
		r.clients[key] = objs
	}
	if a, ok := objs[obj]; ok {
		a.stale = false
		obj.Release()
		return
	}
	objs[obj] = &association{}
}

func (r *Registry) sweep(ctx context.Context) Report {
	start := time.Now()
	var report Report
	for i := len(r.listeners) - 1; i >= 0; i-- {
		part := r.listeners[i].HandleSweep(ctx)
		observability.RecordPass("sweep", part.Attempted, part.Failed)
		report.Merge(part)
	}
	r.observe()
	log.Info().
		Int("attempted", report.Attempted).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("om.Registry sweep complete")
	return report
}

func (r *Registry) expect(want State) error {
	got := r.State()
	if got == StateTornDown {
		return ErrTornDown
	}
	if got != want {
		return fmt.Errorf("%w: %s, want %s", ErrInvalidState, got, want)
	}
	return nil
}

func (r *Registry) observe() {
	for _, l := range r.listeners {
		observability.SetObjectCount(l.Name(), l.Count())
	}
}
