package om

import (
	"strings"

	"github.com/google/uuid"
)

// ClientKey names one client session in the desired-state ledger.
type ClientKey string

// NewSessionKey returns a unique key such as "boot-6f1c...".
func NewSessionKey(prefix string) ClientKey {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "session"
	}
	return ClientKey(prefix + "-" + uuid.NewString())
}

// ClientInfo summarizes one session for introspection.
type ClientInfo struct {
	Key     ClientKey `json:"key"`
	Objects []string  `json:"objects"`
	Stale   int       `json:"stale"`
}

type association struct {
	stale bool
}
