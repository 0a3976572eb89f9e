package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"oiflow/cache"
	appconfig "oiflow/config"
	"oiflow/logger"
)

// PollerStatus is the slice of the poll loop the status endpoint reports on.
type PollerStatus interface {
	SessionAge() time.Duration
}

// Server exposes the latest totals snapshot over HTTP. Handlers only read
// the snapshot cache; they never block on or participate in the poll cycle.
type Server struct {
	cfg        appconfig.ServerConfig
	log        *logger.Log
	store      *cache.SnapshotStore
	poller     PollerStatus
	httpServer *http.Server
	started    time.Time
}

func NewServer(cfg appconfig.ServerConfig, store *cache.SnapshotStore, poller PollerStatus) *Server {
	return &Server{
		cfg:     cfg,
		log:     logger.GetLogger(),
		store:   store,
		poller:  poller,
		started: time.Now(),
	}
}

// Run starts the HTTP server and blocks until the provided context is
// cancelled or the underlying server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter(ctx)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    normalizeAddress(s.cfg.Address),
		Handler: router,
	}

	log := s.log.WithComponent("server")
	log.WithFields(logger.Fields{"address": s.httpServer.Addr}).Info("starting read endpoint")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		log.Info("read endpoint stopped")
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) buildRouter(ctx context.Context) (*gin.Engine, error) {
	if appconfig.IsProductionLike(appconfig.AppEnvironment()) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/", s.handleTotals)
	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	router.GET("/ws", s.handleWS(ctx))

	return router, nil
}

// handleTotals serves the last-known-good snapshot. Before the first
// successful fetch it answers 503; afterwards it always serves the latest
// snapshot even if every subsequent cycle has failed.
func (s *Server) handleTotals(c *gin.Context) {
	snap := s.store.Get()
	if !snap.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Data not yet available; try again in a few seconds.",
		})
		return
	}
	c.JSON(http.StatusOK, snap.Totals)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.store.Get()
	successes, failures, refreshes := logger.PollerCounters()

	status := gin.H{
		"ready":            snap.Ready(),
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"fetch_successes":  successes,
		"fetch_failures":   failures,
		"cookie_refreshes": refreshes,
	}
	if snap.Ready() {
		status["last_update"] = snap.Timestamp.Format(time.RFC3339Nano)
		status["staleness_seconds"] = int64(time.Since(snap.Timestamp).Seconds())
	}
	if s.poller != nil {
		status["cookie_age_seconds"] = int64(s.poller.SessionAge().Seconds())
	}

	cpuPct, memPct := hostStats()
	status["cpu_percent"] = cpuPct
	status["memory_percent"] = memPct

	c.JSON(http.StatusOK, status)
}

func hostStats() (float64, float64) {
	cpuPct := 0.0
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	memPct := 0.0
	if stats, err := mem.VirtualMemory(); err == nil {
		memPct = stats.UsedPercent
	}
	return cpuPct, memPct
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8000"
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8000"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8000")
	}

	return addr
}
