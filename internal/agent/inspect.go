package agent

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/fwdctl/internal/auth"
	"github.com/danmuck/fwdctl/internal/observability"
	"github.com/danmuck/fwdctl/internal/om"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrActionNotFound = errors.New("agent: action not found")

const inspectShutdownTimeout = 2 * time.Second

// Router builds the inspect endpoint. It is read-mostly: the only mutating
// routes trigger the same passes SIGHUP and the heartbeat do.
func (s *Service) Router() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestObserver(observability.Logger("inspect"), s.cfg.AgentID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.InspectCORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"agent":      s.cfg.AgentID,
			"uptime":     time.Since(s.started).String(),
			"connected":  s.Connected(),
			"state":      s.registry.State().String(),
			"reconnects": s.Reconnects(),
			"reloaded":   s.LastReload(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/inspect", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":     s.registry.State().String(),
			"listeners": s.registry.Listeners(),
			"clients":   s.registry.Clients(),
		})
	})

	r.GET("/inspect/:kind", func(c *gin.Context) {
		var buf bytes.Buffer
		if err := s.registry.Show(&buf, c.Param("kind")); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, om.ErrUnknownListener) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.String(http.StatusOK, buf.String())
	})

	actions := r.Group("/actions")
	if token := strings.TrimSpace(s.cfg.InspectToken); token != "" {
		actions.Use(auth.RequireToken(auth.StaticToken{Token: token}))
	}
	actions.POST("/:action", func(c *gin.Context) {
		report, err := s.ExecuteAction(c.Request.Context(), c.Param("action"))
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, ErrActionNotFound):
				status = http.StatusNotFound
			case errors.Is(err, om.ErrInvalidState), errors.Is(err, ErrNoDesiredStatePath):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{
				"error":     err.Error(),
				"attempted": report.Attempted,
				"failed":    report.Failed,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"attempted": report.Attempted,
			"failed":    report.Failed,
		})
	})
	return r
}

// ExecuteAction runs one named maintenance pass: reload, replay or sweep.
func (s *Service) ExecuteAction(ctx context.Context, action string) (om.Report, error) {
	switch action {
	case "reload":
		return om.Report{}, s.Reload(ctx)
	case "replay":
		report, err := s.registry.Replay(ctx)
		if err != nil {
			return report, err
		}
		return report, report.Err()
	case "sweep":
		report, err := s.registry.Sweep(ctx)
		if err != nil {
			return report, err
		}
		return report, report.Err()
	default:
		return om.Report{}, ErrActionNotFound
	}
}

func (s *Service) serveInspect(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), inspectShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("addr", addr).Msg("agent.Service inspect listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
