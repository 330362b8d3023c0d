package dataplane

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/danmuck/fwdctl/internal/l2"
	"github.com/rs/zerolog/log"
)

var ErrDown = errors.New("dataplane: down")

// Fault alters the outcome of the next matching messages. Empty Object and
// zero Kind match anything.
type Fault struct {
	Object string
	Kind   hw.Kind
	// Times is how many messages the fault applies to; zero means one.
	Times  int
	Delay  time.Duration
	Retval int32
	Err    error
}

func (f Fault) matches(msg hw.Message) bool {
	return (f.Object == "" || f.Object == msg.Object) && (f.Kind == 0 || f.Kind == msg.Kind)
}

type fibKey struct {
	bd  uint32
	mac l2.MAC
}

// Sim is an in-memory dataplane with interfaces, bridge domains and an L2
// forwarding table. Bridge domain 0 always exists.
type Sim struct {
	mu         sync.Mutex
	nextHandle uint32
	interfaces map[string]uint32
	domains    map[uint32]struct{}
	fib        map[fibKey]uint32
	faults     []Fault
	down       bool
	history    []hw.Message
}

func NewSim() *Sim {
	s := &Sim{}
	s.reset()
	return s
}

func (s *Sim) reset() {
	s.interfaces = make(map[string]uint32)
	s.domains = map[uint32]struct{}{l2.DefaultBridgeDomain: {}}
	s.fib = make(map[fibKey]uint32)
}

// Restart wipes all forwarding state. Handles are not reused.
func (s *Sim) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	log.Info().Msg("dataplane.Sim restarted")
}

// SetDown makes every message fail with ErrDown until cleared.
func (s *Sim) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *Sim) Inject(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Times <= 0 {
		f.Times = 1
	}
	s.faults = append(s.faults, f)
}

func (s *Sim) History() []hw.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Sim) ResetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Sim) InterfaceHandle(name string) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.interfaces[name]
	return h, ok
}

func (s *Sim) HasBridgeDomain(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.domains[id]
	return ok
}

// Entry returns the egress handle programmed for mac in bd.
func (s *Sim) Entry(bd uint32, mac l2.MAC) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.fib[fibKey{bd: bd, mac: mac}]
	return h, ok
}

func (s *Sim) Call(ctx context.Context, msg hw.Message) (hw.Reply, error) {
	fault, err := s.admit(ctx, msg)
	if err != nil {
		return hw.Reply{}, err
	}
	if fault != nil && fault.Retval != 0 {
		return hw.Reply{Retval: fault.Retval}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Kind {
	case hw.KindCreate, hw.KindDelete:
	default:
		return hw.Reply{Retval: l2.RetvalUnsupported}, nil
	}
	switch msg.Object {
	case l2.ObjectInterface:
		return s.interfaceCall(msg), nil
	case l2.ObjectBridgeDomain:
		return s.domainCall(msg), nil
	case l2.ObjectL2FIB:
		return s.fibCall(msg), nil
	default:
		return hw.Reply{Retval: l2.RetvalUnsupported}, nil
	}
}

func (s *Sim) Dump(ctx context.Context, msg hw.Message) ([]hw.Args, error) {
	if _, err := s.admit(ctx, msg); err != nil {
		return nil, err
	}
	if msg.Kind != hw.KindDump {
		return nil, fmt.Errorf("dataplane: dump with %s message", msg.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Object {
	case l2.ObjectInterface:
		names := slices.SortedFunc(maps.Keys(s.interfaces), func(a, b string) int {
			return cmp.Compare(s.interfaces[a], s.interfaces[b])
		})
		out := make([]hw.Args, 0, len(names))
		for _, name := range names {
			out = append(out, hw.Args{l2.ArgName: name, l2.ArgSwIfIndex: u32(s.interfaces[name])})
		}
		return out, nil
	case l2.ObjectBridgeDomain:
		ids := slices.Sorted(maps.Keys(s.domains))
		out := make([]hw.Args, 0, len(ids))
		for _, id := range ids {
			out = append(out, hw.Args{l2.ArgBDID: u32(id)})
		}
		return out, nil
	case l2.ObjectL2FIB:
		keys := slices.SortedFunc(maps.Keys(s.fib), func(a, b fibKey) int {
			return l2.EntryKey{BD: a.bd, MAC: a.mac}.Compare(l2.EntryKey{BD: b.bd, MAC: b.mac})
		})
		out := make([]hw.Args, 0, len(keys))
		for _, k := range keys {
			out = append(out, hw.Args{
				l2.ArgBDID:      u32(k.bd),
				l2.ArgMAC:       k.mac.String(),
				l2.ArgSwIfIndex: u32(s.fib[k]),
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dataplane: unknown object %q", msg.Object)
	}
}

// admit records msg and applies the first matching fault.
func (s *Sim) admit(ctx context.Context, msg hw.Message) (*Fault, error) {
	s.mu.Lock()
	s.history = append(s.history, hw.Message{Object: msg.Object, Kind: msg.Kind, Args: msg.Args.Clone()})
	if s.down {
		s.mu.Unlock()
		return nil, ErrDown
	}
	var fault *Fault
	for i := range s.faults {
		if !s.faults[i].matches(msg) {
			continue
		}
		f := s.faults[i]
		s.faults[i].Times--
		if s.faults[i].Times <= 0 {
			s.faults = slices.Delete(s.faults, i, i+1)
		}
		fault = &f
		break
	}
	s.mu.Unlock()

	if fault == nil {
		return nil, nil
	}
	if fault.Delay > 0 {
		if err := sleepCtx(ctx, fault.Delay); err != nil {
			return nil, err
		}
	}
	if fault.Err != nil {
		return nil, fault.Err
	}
	return fault, nil
}

func (s *Sim) interfaceCall(msg hw.Message) hw.Reply {
	name := msg.Args[l2.ArgName]
	if name == "" {
		return hw.Reply{Retval: l2.RetvalInvalidArgument}
	}
	handle, exists := s.interfaces[name]
	if msg.Kind == hw.KindCreate {
		if !exists {
			s.nextHandle++
			handle = s.nextHandle
			s.interfaces[name] = handle
		}
		return hw.Reply{Retval: int32(handle)}
	}
	if !exists {
		return hw.Reply{Retval: l2.RetvalInvalidSwIfIndex}
	}
	for _, tx := range s.fib {
		if tx == handle {
			return hw.Reply{Retval: l2.RetvalInUse}
		}
	}
	delete(s.interfaces, name)
	return hw.Reply{}
}

func (s *Sim) domainCall(msg hw.Message) hw.Reply {
	id, ok := msg.Args.Uint32(l2.ArgBDID)
	if !ok {
		return hw.Reply{Retval: l2.RetvalInvalidArgument}
	}
	if msg.Kind == hw.KindCreate {
		s.domains[id] = struct{}{}
		return hw.Reply{}
	}
	if id == l2.DefaultBridgeDomain {
		return hw.Reply{}
	}
	if _, ok := s.domains[id]; !ok {
		return hw.Reply{Retval: l2.RetvalNoSuchBridgeDomain}
	}
	for k := range s.fib {
		if k.bd == id {
			return hw.Reply{Retval: l2.RetvalInUse}
		}
	}
	delete(s.domains, id)
	return hw.Reply{}
}

func (s *Sim) fibCall(msg hw.Message) hw.Reply {
	bd, ok := msg.Args.Uint32(l2.ArgBDID)
	if !ok {
		return hw.Reply{Retval: l2.RetvalInvalidArgument}
	}
	mac, err := l2.ParseMAC(msg.Args[l2.ArgMAC])
	if err != nil {
		return hw.Reply{Retval: l2.RetvalInvalidArgument}
	}
	key := fibKey{bd: bd, mac: mac}
	if msg.Kind == hw.KindDelete {
		if _, ok := s.fib[key]; !ok {
			return hw.Reply{Retval: l2.RetvalNoSuchEntry}
		}
		delete(s.fib, key)
		return hw.Reply{}
	}
	if _, ok := s.domains[bd]; !ok {
		return hw.Reply{Retval: l2.RetvalNoSuchBridgeDomain}
	}
	tx, ok := msg.Args.Uint32(l2.ArgSwIfIndex)
	if !ok || !slices.Contains(slices.Collect(maps.Values(s.interfaces)), tx) {
		return hw.Reply{Retval: l2.RetvalInvalidSwIfIndex}
	}
	s.fib[key] = tx
	return hw.Reply{}
}

func u32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
