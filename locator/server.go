package locator

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"

	"github.com/ctengel/simpler-objects/internal/dcontext"
)

// Config holds the knobs cmd/locator exposes as flags/env vars.
type Config struct {
	Nodes   []string
	Timeout time.Duration
}

// NewServer builds the locator's HTTP handler, wrapped with access
// logging and a request-scoped logger the same way the storage node's
// server is.
func NewServer(cfg Config) http.Handler {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout == 0 {
		client.Timeout = 5 * time.Second
	}

	l := New(cfg.Nodes, client)
	app := NewApp(l)

	return handlers.CombinedLoggingHandler(os.Stdout, dcontext.Middleware(app))
}
