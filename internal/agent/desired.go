package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/fwdctl/internal/l2"
	"github.com/danmuck/fwdctl/internal/om"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDesiredState = errors.New("agent: invalid desired state")

// DesiredState is the YAML document listing what the agent keeps programmed.
//
//	interfaces: [tap0, tap1]
//	bridge_domains: [5]
//	entries:
//	  - bridge_domain: 5
//	    mac: aa:bb:cc:dd:ee:ff
//	    interface: tap0
type DesiredState struct {
	Interfaces    []string    `yaml:"interfaces"`
	BridgeDomains []uint32    `yaml:"bridge_domains"`
	Entries       []EntrySpec `yaml:"entries"`
}

type EntrySpec struct {
	BridgeDomain uint32 `yaml:"bridge_domain"`
	MAC          string `yaml:"mac"`
	Interface    string `yaml:"interface"`
}

func LoadDesiredState(path string) (DesiredState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DesiredState{}, fmt.Errorf("load desired state: %w", err)
	}
	return ParseDesiredState(data)
}

func ParseDesiredState(data []byte) (DesiredState, error) {
	var ds DesiredState
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return DesiredState{}, fmt.Errorf("%w: %w", ErrInvalidDesiredState, err)
	}
	if err := ds.Validate(); err != nil {
		return DesiredState{}, err
	}
	return ds, nil
}

func (d DesiredState) Validate() error {
	for i, name := range d.Interfaces {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: interfaces[%d] empty", ErrInvalidDesiredState, i)
		}
	}
	seen := make(map[l2.EntryKey]struct{}, len(d.Entries))
	for i, e := range d.Entries {
		mac, err := l2.ParseMAC(e.MAC)
		if err != nil {
			return fmt.Errorf("%w: entries[%d] mac: %w", ErrInvalidDesiredState, i, err)
		}
		if strings.TrimSpace(e.Interface) == "" {
			return fmt.Errorf("%w: entries[%d] missing interface", ErrInvalidDesiredState, i)
		}
		key := l2.EntryKey{BD: e.BridgeDomain, MAC: mac}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: entries[%d] duplicates %s", ErrInvalidDesiredState, i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Apply writes every object under key, dependencies first. A failed object is
// counted and the rest are still written.
func (d DesiredState) Apply(ctx context.Context, reg *om.Registry, model *l2.Model, key om.ClientKey) om.Report {
	var report om.Report
	write := func(desired om.Desired) {
		_, err := reg.Write(ctx, key, desired)
		report.Add(err)
	}
	for _, name := range d.Interfaces {
		write(model.Interface(strings.TrimSpace(name)))
	}
	for _, id := range d.BridgeDomains {
		write(model.BridgeDomain(id))
	}
	for _, e := range d.Entries {
		mac, err := l2.ParseMAC(e.MAC)
		if err != nil {
			report.Add(err)
			continue
		}
		write(model.Entry(e.BridgeDomain, mac, strings.TrimSpace(e.Interface)))
	}
	return report
}
