package l2

import (
	"cmp"
	"context"
	"errors"

	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/danmuck/fwdctl/internal/om"
	"github.com/danmuck/fwdctl/internal/singular"
)

// Listener names, also used as the inspect kind path.
const (
	KindInterface         = "interface"
	KindBridgeDomain      = "bridge-domain"
	KindBridgeDomainEntry = "bridge-domain-entry"
)

// Model owns the singular stores of every l2 kind and the issuer they share.
type Model struct {
	issuer     *hw.Issuer
	interfaces *singular.Store[string, *Interface]
	domains    *singular.Store[uint32, *BridgeDomain]
	entries    *singular.Store[EntryKey, *BridgeDomainEntry]
}

func NewModel(issuer *hw.Issuer) *Model {
	return &Model{
		issuer:     issuer,
		interfaces: singular.New[string, *Interface](cmp.Compare[string]),
		domains:    singular.New[uint32, *BridgeDomain](cmp.Compare[uint32]),
		entries:    singular.New[EntryKey, *BridgeDomainEntry](EntryKey.Compare),
	}
}

// Register adds one listener per kind to reg.
func (m *Model) Register(reg *om.Registry) error {
	listeners := []om.Listener{
		om.NewKind[string, *Interface](KindInterface, om.DepInterface, m.interfaces, m.populateInterfaces),
		om.NewKind[uint32, *BridgeDomain](KindBridgeDomain, om.DepForwardingDomain, m.domains, m.populateBridgeDomains),
		om.NewKind[EntryKey, *BridgeDomainEntry](KindBridgeDomainEntry, om.DepEntry, m.entries, m.populateEntries),
	}
	for _, l := range listeners {
		if err := reg.Register(l); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) FindInterface(name string) (*Interface, bool) {
	return m.interfaces.Find(name)
}

func (m *Model) FindBridgeDomain(id uint32) (*BridgeDomain, bool) {
	return m.domains.Find(id)
}

func (m *Model) FindEntry(key EntryKey) (*BridgeDomainEntry, bool) {
	return m.entries.Find(key)
}

func (m *Model) Counts() (interfaces, domains, entries int) {
	return m.interfaces.Len(), m.domains.Len(), m.entries.Len()
}

func (m *Model) issue(ctx context.Context, cmd hw.Cmd) (hw.Reply, error) {
	return m.issuer.Issue(ctx, cmd)
}

// deleted reports whether a Delete outcome leaves the object absent. A
// rejection saying the object does not exist counts as absent.
func deleted(err error) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, hw.ErrRejectedByHardware) {
		return false
	}
	rv, _ := hw.Retval(err)
	switch rv {
	case RetvalNoSuchEntry, RetvalNoSuchBridgeDomain, RetvalInvalidSwIfIndex:
		return true
	}
	return false
}

// present reports whether an item may exist in the dataplane.
func present(s hw.Status) bool {
	return s == hw.StatusApplied || s == hw.StatusPending || s == hw.StatusStale
}
