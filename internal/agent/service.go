package agent

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/fwdctl/internal/dataplane"
	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/danmuck/fwdctl/internal/l2"
	"github.com/danmuck/fwdctl/internal/om"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidHeartbeatInterval = errors.New("agent: invalid heartbeat interval")
	ErrNoDesiredStatePath       = errors.New("agent: no desired state path")
)

// ServiceConfig is the agent runtime configuration. When InspectToken is set
// it is required as a bearer token on the /actions routes.
type ServiceConfig struct {
	AgentID            string
	Dataplane          dataplane.Config
	IssueTimeout       time.Duration
	HeartbeatInterval  time.Duration
	DesiredStatePath   string
	InspectListenAddr  string
	InspectCORSOrigins []string
	InspectToken       string
	PopulateOnBoot     bool
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		AgentID:           "fwdctl.local",
		Dataplane:         dataplane.DefaultConfig(),
		IssueTimeout:      hw.DefaultTimeout,
		HeartbeatInterval: 5 * time.Second,
		InspectListenAddr: "127.0.0.1:7430",
		PopulateOnBoot:    true,
	}
}

// Service owns the dataplane session, the registry and the l2 model.
type Service struct {
	cfg ServiceConfig

	client   *dataplane.Client
	issuer   *hw.Issuer
	registry *om.Registry
	model    *l2.Model
	fileKey  om.ClientKey

	started    time.Time
	connected  atomic.Bool
	reconnects atomic.Int64

	reloadMu   sync.Mutex
	lastReload time.Time
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.AgentID) == "" {
		cfg.AgentID = def.AgentID
	}
	if cfg.IssueTimeout <= 0 {
		cfg.IssueTimeout = def.IssueTimeout
	}
	cfg.Dataplane = cfg.Dataplane.WithDefaults()

	client := dataplane.NewClient(cfg.Dataplane)
	issuer := hw.NewIssuer(client, hw.Config{Timeout: cfg.IssueTimeout})
	svc := &Service{
		cfg:      cfg,
		client:   client,
		issuer:   issuer,
		registry: om.NewRegistry(),
		model:    l2.NewModel(issuer),
		fileKey:  om.ClientKey("file:" + cfg.AgentID),
		started:  time.Now(),
	}
	if err := svc.model.Register(svc.registry); err != nil {
		// Listener names are fixed, so this only fires on a programming error.
		panic(err)
	}
	return svc
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

func (s *Service) Registry() *om.Registry {
	return s.registry
}

func (s *Service) Model() *l2.Model {
	return s.model
}

func (s *Service) Connected() bool {
	return s.connected.Load()
}

func (s *Service) Reconnects() int64 {
	return s.reconnects.Load()
}

// LastReload reports when the desired-state file was last applied.
func (s *Service) LastReload() time.Time {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return s.lastReload
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Bootstrap(ctx); err != nil {
		s.Close()
		return err
	}
	return s.Serve(ctx)
}

// Bootstrap connects, adopts existing dataplane state under a boot session,
// applies the desired-state file and then drops the boot session so objects
// nobody wants are swept.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	s.connected.Store(true)

	var boot om.ClientKey
	if s.cfg.PopulateOnBoot {
		boot = om.NewSessionKey("boot")
		if err := s.registry.Populate(ctx, boot); err != nil {
			return err
		}
	}
	if strings.TrimSpace(s.cfg.DesiredStatePath) != "" {
		if err := s.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("agent.Service.Bootstrap desired state incomplete")
		}
	}
	if boot != "" {
		report, err := s.registry.Remove(ctx, boot)
		if err != nil {
			return err
		}
		log.Info().
			Int("swept", report.Attempted).
			Int("failed", report.Failed).
			Msg("agent.Service.Bootstrap boot session removed")
	}

	interfaces, domains, entries := s.model.Counts()
	log.Info().
		Str("agent", s.cfg.AgentID).
		Str("dataplane", s.client.Address()).
		Int("interfaces", interfaces).
		Int("bridge_domains", domains).
		Int("entries", entries).
		Msg("agent.Service.Bootstrap ready")
	return nil
}

// Reload re-reads the desired-state file and converges on it: objects no
// longer listed are released and swept.
func (s *Service) Reload(ctx context.Context) error {
	path := strings.TrimSpace(s.cfg.DesiredStatePath)
	if path == "" {
		return ErrNoDesiredStatePath
	}
	ds, err := LoadDesiredState(path)
	if err != nil {
		return err
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.registry.Mark(s.fileKey)
	applied := ds.Apply(ctx, s.registry, s.model, s.fileKey)
	swept, err := s.registry.SweepStale(ctx, s.fileKey)
	if err != nil {
		return err
	}
	s.lastReload = time.Now()
	log.Info().
		Str("path", path).
		Int("written", applied.Attempted).
		Int("write_failed", applied.Failed).
		Int("swept", swept.Attempted).
		Int("sweep_failed", swept.Failed).
		Msg("agent.Service.Reload complete")
	return errors.Join(applied.Err(), swept.Err())
}

// Reconnect re-establishes the dataplane session and replays desired state.
func (s *Service) Reconnect(ctx context.Context) (om.Report, error) {
	s.connected.Store(false)
	if err := s.client.Redial(ctx); err != nil {
		return om.Report{}, err
	}
	s.connected.Store(true)
	s.reconnects.Add(1)
	return s.registry.Replay(ctx)
}

// Serve runs heartbeats, SIGHUP reloads and the inspect endpoint until ctx
// ends.
func (s *Service) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer s.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	inspectErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.InspectListenAddr); addr != "" {
		go func() {
			inspectErr <- s.serveInspect(ctx, addr)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agent.Service.Serve shutdown")
			return nil
		case err := <-inspectErr:
			if err != nil {
				return err
			}
		case <-hup:
			if err := s.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("agent.Service.Serve reload failed")
			}
		case <-ticker.C:
			s.heartbeat(ctx)
		}
	}
}

func (s *Service) heartbeat(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, s.issuer.Timeout())
	err := s.client.Ping(pingCtx)
	cancel()
	if err == nil {
		s.connected.Store(true)
		interfaces, domains, entries := s.model.Counts()
		log.Debug().
			Str("agent", s.cfg.AgentID).
			Str("state", s.registry.State().String()).
			Int("interfaces", interfaces).
			Int("bridge_domains", domains).
			Int("entries", entries).
			Msg("agent.Service.heartbeat")
		return
	}
	if ctx.Err() != nil {
		return
	}
	log.Warn().Err(err).Msg("agent.Service.heartbeat dataplane unreachable")
	report, err := s.Reconnect(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("agent.Service.heartbeat reconnect failed")
		return
	}
	if report.Failed > 0 {
		log.Warn().
			Int("attempted", report.Attempted).
			Int("failed", report.Failed).
			Err(report.Err()).
			Msg("agent.Service.heartbeat replay incomplete")
	}
}

// Close drops all in-memory state and the dataplane session.
func (s *Service) Close() {
	s.registry.Teardown()
	s.connected.Store(false)
	if err := s.client.Close(); err != nil {
		log.Debug().Err(err).Msg("agent.Service.Close session close")
	}
}
