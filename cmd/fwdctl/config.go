package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/fwdctl/internal/agent"
)

type fileConfig struct {
	ID                 string   `toml:"id"`
	DataplaneAddress   string   `toml:"dataplane_address"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	ReadTimeout        string   `toml:"read_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	IssueTimeout       string   `toml:"issue_timeout"`
	HeartbeatInterval  string   `toml:"heartbeat_interval"`
	DesiredStatePath   string   `toml:"desired_state_path"`
	InspectListenAddr  string   `toml:"inspect_listen_addr"`
	InspectCORSOrigins []string `toml:"inspect_cors_origins"`
	InspectToken       string   `toml:"inspect_token"`
	PopulateOnBoot     bool     `toml:"populate_on_boot"`
}

func loadServiceConfig(path string) (agent.ServiceConfig, error) {
	cfg := agent.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return agent.ServiceConfig{}, fmt.Errorf("load fwdctl config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.AgentID = id
		}
	}

	if meta.IsDefined("dataplane_address") {
		cfg.Dataplane.Address = strings.TrimSpace(raw.DataplaneAddress)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Dataplane.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Dataplane.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Dataplane.WriteTimeout},
		{"issue_timeout", raw.IssueTimeout, &cfg.IssueTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return agent.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_connect_attempts") {
		if raw.MaxConnectAttempts < 0 {
			return agent.ServiceConfig{}, fmt.Errorf("max_connect_attempts must be >= 0, got %d", raw.MaxConnectAttempts)
		}
		cfg.Dataplane.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	if meta.IsDefined("desired_state_path") {
		cfg.DesiredStatePath = strings.TrimSpace(raw.DesiredStatePath)
	}

	if meta.IsDefined("inspect_listen_addr") {
		cfg.InspectListenAddr = strings.TrimSpace(raw.InspectListenAddr)
	}

	if meta.IsDefined("inspect_cors_origins") {
		cfg.InspectCORSOrigins = normalizeOrigins(raw.InspectCORSOrigins)
	}

	if meta.IsDefined("inspect_token") {
		cfg.InspectToken = strings.TrimSpace(raw.InspectToken)
	}

	if meta.IsDefined("populate_on_boot") {
		cfg.PopulateOnBoot = raw.PopulateOnBoot
	}

	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
