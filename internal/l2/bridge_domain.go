package l2

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/danmuck/fwdctl/internal/om"
	"github.com/rs/zerolog/log"
)

// BridgeDomain is a layer-2 forwarding domain keyed by id.
type BridgeDomain struct {
	m  *Model
	id uint32

	mu    sync.Mutex
	state hw.Item[uint32]
}

func (b *BridgeDomain) Key() uint32 {
	return b.id
}

func (b *BridgeDomain) ID() uint32 {
	return b.id
}

func (b *BridgeDomain) Status() hw.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Status()
}

func (b *BridgeDomain) Live() bool {
	return b.Status() == hw.StatusApplied
}

func (b *BridgeDomain) Release() {
	b.m.domains.Release(b.id)
}

func (b *BridgeDomain) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("bridge-domain %d %s", b.id, b.state)
}

func (b *BridgeDomain) update(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Current(b.id) {
		return nil
	}
	return b.create(ctx)
}

func (b *BridgeDomain) create(ctx context.Context) error {
	b.state.Begin(b.id)
	_, err := b.m.issue(ctx, CreateBridgeDomain{ID: b.id})
	b.state.Resolve(err)
	return err
}

func (b *BridgeDomain) Replay(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.Applied() {
		return false, nil
	}
	return true, b.create(ctx)
}

// Sweep deletes the domain. The default domain is only forgotten.
func (b *BridgeDomain) Sweep(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.id != DefaultBridgeDomain && present(b.state.Status()) {
		_, err := b.m.issue(ctx, DeleteBridgeDomain{ID: b.id})
		if !deleted(err) {
			return err
		}
	}
	b.state.Clear()
	return nil
}

// DesiredBridgeDomain asks for the bridge domain with the given id.
type DesiredBridgeDomain struct {
	m  *Model
	ID uint32
}

func (m *Model) BridgeDomain(id uint32) DesiredBridgeDomain {
	return DesiredBridgeDomain{m: m, ID: id}
}

func (d DesiredBridgeDomain) Commit(ctx context.Context) (om.Object, error) {
	bd, added := d.m.domains.FindOrAdd(d.ID, func() *BridgeDomain {
		return &BridgeDomain{m: d.m, id: d.ID, state: hw.NewItem(d.ID)}
	})
	if added {
		log.Debug().Uint32("bd", d.ID).Msg("l2.BridgeDomain added")
	}
	return bd, bd.update(ctx)
}

func (m *Model) populateBridgeDomains(ctx context.Context) ([]*BridgeDomain, error) {
	records, err := m.issuer.Dump(ctx, DumpBridgeDomains{})
	if err != nil {
		return nil, err
	}
	out := make([]*BridgeDomain, 0, len(records))
	for _, rec := range records {
		id, ok := rec.Uint32(ArgBDID)
		if !ok {
			log.Warn().Str("record", rec.String()).Msg("l2.BridgeDomain populate skipped malformed record")
			continue
		}
		bd, _ := m.domains.FindOrAdd(id, func() *BridgeDomain {
			return &BridgeDomain{m: m, id: id, state: hw.AppliedItem(id)}
		})
		out = append(out, bd)
	}
	return out, nil
}
