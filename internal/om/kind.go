package om

import (
	"context"
	"fmt"
	"io"

	"github.com/danmuck/fwdctl/internal/singular"
	"github.com/rs/zerolog/log"
)

// Entity is the behaviour the registry needs from one object kind.
type Entity[K comparable] interface {
	comparable
	Object
	Key() K
	// Live reports whether any of the entity's items is applied.
	Live() bool
	// Replay re-issues Create for an applied entity. The bool reports whether a
	// command was attempted.
	Replay(ctx context.Context) (bool, error)
	// Sweep deletes the entity from the dataplane and releases its dependencies.
	// On error the entity keeps its dependencies and stays in the store.
	Sweep(ctx context.Context) error
}

// PopulateFunc reads existing dataplane objects into the store as applied,
// holding one reference each.
type PopulateFunc[V any] func(ctx context.Context) ([]V, error)

// Kind is the generic Listener over a singular store.
type Kind[K comparable, V Entity[K]] struct {
	name     string
	order    Dependency
	store    *singular.Store[K, V]
	populate PopulateFunc[V]
}

// NewKind wraps store as the listener called name. populate may be nil when
// the kind cannot be read back from the dataplane.
func NewKind[K comparable, V Entity[K]](name string, order Dependency, store *singular.Store[K, V], populate PopulateFunc[V]) *Kind[K, V] {
	return &Kind[K, V]{name: name, order: order, store: store, populate: populate}
}

func (k *Kind[K, V]) Name() string {
	return k.name
}

func (k *Kind[K, V]) Order() Dependency {
	return k.order
}

// Count is the number of stored entities, including unreferenced ones.
func (k *Kind[K, V]) Count() int {
	return k.store.Len()
}

func (k *Kind[K, V]) HandlePopulate(ctx context.Context) ([]Object, error) {
	if k.populate == nil {
		return nil, nil
	}
	values, err := k.populate(ctx)
	out := make([]Object, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out, err
}

// HandleReplay walks the store in ascending key order.
func (k *Kind[K, V]) HandleReplay(ctx context.Context) Report {
	var report Report
	for _, v := range k.store.Values() {
		attempted, err := v.Replay(ctx)
		if !attempted {
			continue
		}
		if err != nil {
			err = fmt.Errorf("replay %s: %w", v, err)
			log.Warn().Str("kind", k.name).Str("object", v.String()).Err(err).Msg("om.Kind replay failed")
		}
		report.Add(err)
	}
	return report
}

// HandleSweep deletes and removes every zero-reference entity.
func (k *Kind[K, V]) HandleSweep(ctx context.Context) Report {
	var report Report
	for _, v := range k.store.Unreferenced() {
		if k.store.Refs(v.Key()) > 0 {
			continue
		}
		if err := v.Sweep(ctx); err != nil {
			err = fmt.Errorf("sweep %s: %w", v, err)
			log.Warn().Str("kind", k.name).Str("object", v.String()).Err(err).Msg("om.Kind sweep failed")
			report.Add(err)
			continue
		}
		k.store.Remove(v.Key(), v)
		report.Add(nil)
	}
	return report
}

func (k *Kind[K, V]) HandleTeardown() {
	k.store.Clear()
}

// Show writes one line per entity in ascending key order.
func (k *Kind[K, V]) Show(w io.Writer) error {
	keys := k.store.Keys()
	if _, err := fmt.Fprintf(w, "%s: %d\n", k.name, len(keys)); err != nil {
		return err
	}
	for _, key := range keys {
		v, ok := k.store.Find(key)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s refs:%d\n", v, k.store.Refs(key)); err != nil {
			return err
		}
	}
	return nil
}
