package node

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"

	"github.com/ctengel/simpler-objects/health"
	"github.com/ctengel/simpler-objects/health/checks"
	"github.com/ctengel/simpler-objects/internal/dcontext"
)

// Config holds the knobs cmd/storage-node exposes as flags/env vars.
type Config struct {
	Directory       string
	MaxWriters      int
	HealthInterval  time.Duration
	HealthThreshold int
}

// Server bundles the node's driver, router and background health poller
// into one process-lifetime object, the same shape as the teacher's
// registry.NewApp plus its health.Poll goroutines in cmd/registry/main.go.
type Server struct {
	Handler http.Handler
	Disk    *checks.DiskSpaceChecker

	cancel context.CancelFunc
}

// NewServer builds the storage node App, wraps it with access logging and
// a request-scoped logger, and starts the background disk-space poller.
func NewServer(cfg Config) *Server {
	driver := New(cfg.Directory, cfg.MaxWriters)
	disk := checks.NewDiskSpaceChecker(cfg.Directory)

	ctx, cancel := context.WithCancel(context.Background())
	updater := health.NewThresholdStatusUpdater(cfg.HealthThreshold)
	health.Register("disk", updater)
	go health.Poll(ctx, updater, disk, cfg.HealthInterval)

	app := NewApp(driver, disk)

	loggingHandler := handlers.CombinedLoggingHandler(os.Stdout, dcontext.Middleware(app))

	return &Server{
		Handler: loggingHandler,
		Disk:    disk,
		cancel:  cancel,
	}
}

// Close stops the background health poller.
func (s *Server) Close() {
	s.cancel()
}
