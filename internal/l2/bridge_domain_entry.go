package l2

import (
	"cmp"
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/danmuck/fwdctl/internal/om"
	"github.com/rs/zerolog/log"
)

// EntryKey identifies a forwarding entry within its bridge domain.
type EntryKey struct {
	BD  uint32
	MAC MAC
}

func (k EntryKey) Compare(other EntryKey) int {
	if c := cmp.Compare(k.BD, other.BD); c != 0 {
		return c
	}
	return k.MAC.Compare(other.MAC)
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%d/%s", k.BD, k.MAC)
}

// BridgeDomainEntry forwards frames for one MAC in one bridge domain to an
// egress interface. It holds a reference on both for its whole lifetime.
type BridgeDomainEntry struct {
	m      *Model
	key    EntryKey
	domain *BridgeDomain

	mu      sync.Mutex
	tx      *Interface
	binding hw.Item[string]
}

func (e *BridgeDomainEntry) Key() EntryKey {
	return e.key
}

func (e *BridgeDomainEntry) Domain() *BridgeDomain {
	return e.domain
}

func (e *BridgeDomainEntry) Tx() *Interface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx
}

func (e *BridgeDomainEntry) Status() hw.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.binding.Status()
}

func (e *BridgeDomainEntry) Live() bool {
	return e.Status() == hw.StatusApplied
}

func (e *BridgeDomainEntry) Release() {
	e.m.entries.Release(e.key)
}

func (e *BridgeDomainEntry) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("bridge-domain-entry bd:%d mac:%s tx:%s", e.key.BD, e.key.MAC, e.binding)
}

// update points the entry at itf, consuming the caller's reference on it.
// Moving to another interface deletes the old binding first; if that delete
// does not go through the entry keeps its old interface and binding.
func (e *BridgeDomainEntry) update(ctx context.Context, itf *Interface) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tx == itf {
		itf.Release()
		if e.binding.Current(itf.name) {
			return nil
		}
		return e.create(ctx)
	}

	if e.tx != nil {
		if present(e.binding.Status()) {
			e.binding.Invalidate()
			_, err := e.m.issue(ctx, DeleteEntry{BD: e.key.BD, MAC: e.key.MAC})
			if !deleted(err) {
				e.binding.Restore(err)
				itf.Release()
				return err
			}
		}
		e.tx.Release()
	}
	e.tx = itf
	return e.create(ctx)
}

// create programs the binding. Nothing is issued unless both the domain and
// the tx interface are applied. An applied or pending binding keeps its status
// so sweep still deletes it; any other is marked failed.
func (e *BridgeDomainEntry) create(ctx context.Context) error {
	if err := e.unresolved(); err != nil {
		if st := e.binding.Status(); st != hw.StatusApplied && st != hw.StatusPending {
			e.binding.Begin(e.tx.name)
			e.binding.Fail()
		}
		return err
	}
	handle, _ := e.tx.Handle()
	e.binding.Begin(e.tx.name)
	_, err := e.m.issue(ctx, CreateEntry{BD: e.key.BD, MAC: e.key.MAC, TxHandle: handle})
	e.binding.Resolve(err)
	return err
}

func (e *BridgeDomainEntry) unresolved() error {
	if !e.domain.Live() {
		return om.Unresolved(KindBridgeDomain, e.key.BD)
	}
	if !e.tx.Live() {
		return om.Unresolved(KindInterface, e.tx.name)
	}
	return nil
}

// Replay reports an entry whose domain or interface did not come back as a
// failure without issuing anything; it stays applied and is retried next time.
func (e *BridgeDomainEntry) Replay(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.binding.Applied() {
		return false, nil
	}
	return true, e.create(ctx)
}

// Sweep deletes the entry and drops its references on the domain and
// interface.
func (e *BridgeDomainEntry) Sweep(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if present(e.binding.Status()) {
		_, err := e.m.issue(ctx, DeleteEntry{BD: e.key.BD, MAC: e.key.MAC})
		if !deleted(err) {
			return err
		}
	}
	e.binding.Clear()
	if e.tx != nil {
		e.tx.Release()
		e.tx = nil
	}
	e.domain.Release()
	return nil
}

// DesiredEntry asks for MAC in bridge domain BD to forward to Interface.
type DesiredEntry struct {
	m         *Model
	Key       EntryKey
	Interface string
}

func (m *Model) Entry(bd uint32, mac MAC, itf string) DesiredEntry {
	return DesiredEntry{m: m, Key: EntryKey{BD: bd, MAC: mac}, Interface: itf}
}

// DefaultEntry is an entry in the default bridge domain.
func (m *Model) DefaultEntry(mac MAC, itf string) DesiredEntry {
	return m.Entry(DefaultBridgeDomain, mac, itf)
}

// Commit fails with om.ErrDependencyUnresolved, creating nothing, when the
// interface or bridge domain is not in its store.
func (d DesiredEntry) Commit(ctx context.Context) (om.Object, error) {
	itf, ok := d.m.interfaces.Acquire(d.Interface)
	if !ok {
		return nil, om.Unresolved(KindInterface, d.Interface)
	}
	domain, ok := d.m.domains.Acquire(d.Key.BD)
	if !ok {
		itf.Release()
		return nil, om.Unresolved(KindBridgeDomain, d.Key.BD)
	}
	entry, added := d.m.entries.FindOrAdd(d.Key, func() *BridgeDomainEntry {
		return &BridgeDomainEntry{m: d.m, key: d.Key, domain: domain}
	})
	if added {
		log.Debug().Str("entry", d.Key.String()).Str("tx", d.Interface).Msg("l2.BridgeDomainEntry added")
	} else {
		domain.Release()
	}
	return entry, entry.update(ctx, itf)
}

func (m *Model) populateEntries(ctx context.Context) ([]*BridgeDomainEntry, error) {
	records, err := m.issuer.Dump(ctx, DumpEntries{})
	if err != nil {
		return nil, err
	}
	out := make([]*BridgeDomainEntry, 0, len(records))
	for _, rec := range records {
		bd, okBD := rec.Uint32(ArgBDID)
		handle, okTx := rec.Uint32(ArgSwIfIndex)
		mac, macErr := ParseMAC(rec[ArgMAC])
		if !okBD || !okTx || macErr != nil {
			log.Warn().Str("record", rec.String()).Msg("l2.BridgeDomainEntry populate skipped malformed record")
			continue
		}
		entry, ok := m.adoptEntry(EntryKey{BD: bd, MAC: mac}, handle)
		if !ok {
			log.Warn().Str("record", rec.String()).Msg("l2.BridgeDomainEntry populate skipped unresolved record")
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// adoptEntry stores an entry read from the dataplane as applied.
func (m *Model) adoptEntry(key EntryKey, handle uint32) (*BridgeDomainEntry, bool) {
	itf, ok := m.interfaceByHandle(handle)
	if !ok {
		return nil, false
	}
	domain, ok := m.domains.Acquire(key.BD)
	if !ok {
		return nil, false
	}
	m.interfaces.Acquire(itf.name)
	entry, added := m.entries.FindOrAdd(key, func() *BridgeDomainEntry {
		return &BridgeDomainEntry{m: m, key: key, domain: domain, tx: itf, binding: hw.AppliedItem(itf.name)}
	})
	if !added {
		domain.Release()
		itf.Release()
	}
	return entry, true
}
