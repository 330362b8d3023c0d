package l2

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/danmuck/fwdctl/internal/om"
	"github.com/rs/zerolog/log"
)

// Interface is an egress port, keyed by name. The dataplane assigns its
// sw_if_index on Create.
type Interface struct {
	m    *Model
	name string

	mu     sync.Mutex
	handle hw.Item[uint32]
}

func (i *Interface) Key() string {
	return i.name
}

func (i *Interface) Name() string {
	return i.name
}

// Handle returns the sw_if_index and whether it is applied.
func (i *Interface) Handle() (uint32, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.handle.Data(), i.handle.Applied()
}

func (i *Interface) Status() hw.Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.handle.Status()
}

func (i *Interface) Live() bool {
	return i.Status() == hw.StatusApplied
}

func (i *Interface) Release() {
	i.m.interfaces.Release(i.name)
}

func (i *Interface) String() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return fmt.Sprintf("interface %s sw_if_index:%s", i.name, i.handle)
}

func (i *Interface) update(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.handle.Applied() {
		return nil
	}
	return i.create(ctx)
}

func (i *Interface) create(ctx context.Context) error {
	i.handle.Begin(i.handle.Data())
	reply, err := i.m.issue(ctx, CreateInterface{Name: i.name})
	i.handle.ResolveWith(uint32(reply.Retval), err)
	return err
}

func (i *Interface) Replay(ctx context.Context) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.handle.Applied() {
		return false, nil
	}
	return true, i.create(ctx)
}

func (i *Interface) Sweep(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if present(i.handle.Status()) {
		_, err := i.m.issue(ctx, DeleteInterface{Name: i.name, Handle: i.handle.Data()})
		if !deleted(err) {
			return err
		}
	}
	i.handle.Clear()
	return nil
}

// DesiredInterface asks for an interface with the given name.
type DesiredInterface struct {
	m    *Model
	Name string
}

func (m *Model) Interface(name string) DesiredInterface {
	return DesiredInterface{m: m, Name: name}
}

func (d DesiredInterface) Commit(ctx context.Context) (om.Object, error) {
	itf, added := d.m.interfaces.FindOrAdd(d.Name, func() *Interface {
		return &Interface{m: d.m, name: d.Name}
	})
	if added {
		log.Debug().Str("interface", d.Name).Msg("l2.Interface added")
	}
	return itf, itf.update(ctx)
}

func (m *Model) populateInterfaces(ctx context.Context) ([]*Interface, error) {
	records, err := m.issuer.Dump(ctx, DumpInterfaces{})
	if err != nil {
		return nil, err
	}
	out := make([]*Interface, 0, len(records))
	for _, rec := range records {
		name := rec[ArgName]
		handle, ok := rec.Uint32(ArgSwIfIndex)
		if name == "" || !ok {
			log.Warn().Str("record", rec.String()).Msg("l2.Interface populate skipped malformed record")
			continue
		}
		itf, _ := m.interfaces.FindOrAdd(name, func() *Interface {
			return &Interface{m: m, name: name, handle: hw.AppliedItem(handle)}
		})
		out = append(out, itf)
	}
	return out, nil
}

func (m *Model) interfaceByHandle(handle uint32) (*Interface, bool) {
	for _, itf := range m.interfaces.Values() {
		if h, ok := itf.Handle(); ok && h == handle {
			return itf, true
		}
	}
	return nil, false
}
