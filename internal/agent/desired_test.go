package agent

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/fwdctl/internal/testutil/testlog"
)

const sampleDesired = `
interfaces: [tap0, tap1]
bridge_domains: [5]
entries:
  - bridge_domain: 5
    mac: aa:bb:cc:dd:ee:ff
    interface: tap0
`

func TestParseDesiredState(t *testing.T) {
	testlog.Start(t)
	ds, err := ParseDesiredState([]byte(sampleDesired))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ds.Interfaces) != 2 || ds.Interfaces[1] != "tap1" {
		t.Fatalf("interfaces=%v", ds.Interfaces)
	}
	if len(ds.BridgeDomains) != 1 || ds.BridgeDomains[0] != 5 {
		t.Fatalf("bridge_domains=%v", ds.BridgeDomains)
	}
	if len(ds.Entries) != 1 || ds.Entries[0].Interface != "tap0" || ds.Entries[0].BridgeDomain != 5 {
		t.Fatalf("entries=%+v", ds.Entries)
	}
}

func TestParseDesiredStateRejectsBadDocuments(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"yaml":      "interfaces: [tap0",
		"empty itf": "interfaces: [\"  \"]",
		"bad mac": `
entries:
  - bridge_domain: 5
    mac: not-a-mac
    interface: tap0
`,
		"no interface": `
entries:
  - bridge_domain: 5
    mac: aa:bb:cc:dd:ee:ff
`,
		"duplicate": `
entries:
  - bridge_domain: 5
    mac: aa:bb:cc:dd:ee:ff
    interface: tap0
  - bridge_domain: 5
    mac: AA:BB:CC:DD:EE:FF
    interface: tap1
`,
	}
	for name, doc := range cases {
		if _, err := ParseDesiredState([]byte(doc)); !errors.Is(err, ErrInvalidDesiredState) {
			t.Fatalf("%s: expected ErrInvalidDesiredState, got %v", name, err)
		}
	}
}

func TestLoadDesiredStateMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadDesiredState(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
