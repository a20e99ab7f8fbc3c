package locator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ctengel/simpler-objects/internal/dcontext"
	"github.com/ctengel/simpler-objects/metrics"
)

var (
	placementsTotal = metrics.LocatorNamespace.NewCounter("placements_total", "number of write placements chosen")
	redirectsTotal  = metrics.LocatorNamespace.NewCounter("redirects_total", "number of read redirects issued")
	noNodeTotal     = metrics.LocatorNamespace.NewCounter("no_eligible_node_total", "number of writes rejected for lack of an eligible node")
)

// App exposes the locator's three operations as HTTP handlers: redirecting
// reads and writes to a chosen node, and serving an aggregated bucket
// view. It never proxies bytes itself, only 307-redirects, so a client
// talks to the chosen storage node directly for the transfer.
type App struct {
	locator *Locator
	router  *mux.Router
}

// NewApp builds the locator's router.
func NewApp(l *Locator) *App {
	a := &App{locator: l}

	r := mux.NewRouter()
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{bucket}/", a.handleBucket).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}/{key}", a.handleObject).Methods(http.MethodGet, http.MethodHead, http.MethodPut)
	a.router = r

	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// nodeHealth mirrors a node's own health record (spec.md §3/§6:
// {read, write, available, percent}), plus Reachable/Error for nodes the
// locator could not probe at all.
type nodeHealth struct {
	Reachable bool   `json:"reachable"`
	Read      bool   `json:"read"`
	Write     bool   `json:"write"`
	Available uint64 `json:"available,omitempty"`
	Percent   int    `json:"percent,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleHealth answers with {"servers": {<node>: <health>}} for every
// configured node, the shape spec.md §4.2 names for GET /health.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	statuses := a.locator.ProbeAll(r.Context())
	servers := make(map[string]nodeHealth, len(statuses))
	for _, s := range statuses {
		h := nodeHealth{Reachable: s.Reachable, Read: s.Read, Write: s.Write, Available: s.Available, Percent: s.Percent}
		if s.Err != nil {
			h.Error = s.Err.Error()
		}
		servers[s.URL] = h
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Servers map[string]nodeHealth `json:"servers"`
	}{Servers: servers})
}

func (a *App) handleObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, key := vars["bucket"], vars["key"]
	log := dcontext.GetLogger(r.Context())

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		readers := a.locator.FindReaders(r.Context(), bucket, key)
		if len(readers) == 0 {
			http.NotFound(w, r)
			return
		}
		redirectsTotal.Inc()
		http.Redirect(w, r, readers[0]+"/"+bucket+"/"+key, http.StatusTemporaryRedirect)

	case http.MethodPut:
		if r.ContentLength <= 0 {
			http.Error(w, "Content-Length required", http.StatusBadRequest)
			return
		}

		node, err := a.locator.ChooseWrite(r.Context(), bucket, key, r.ContentLength)
		if err != nil {
			switch {
			case errors.Is(err, ErrAlreadyExists):
				http.Error(w, "object already exists", http.StatusConflict)
			case errors.Is(err, ErrNoEligibleNode):
				noNodeTotal.Inc()
				http.Error(w, "no eligible storage node", http.StatusInsufficientStorage)
			default:
				log.Errorf("locator: choosing write target for %s/%s: %v", bucket, key, err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		placementsTotal.Inc()
		http.Redirect(w, r, node+"/"+bucket+"/"+key, http.StatusTemporaryRedirect)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleBucket answers GET /{bucket}/ with the aggregated, cluster-wide
// view of the bucket: every key any node holds, merged, with which nodes
// hold each one.
func (a *App) handleBucket(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	log := dcontext.GetLogger(r.Context())

	agg, err := a.locator.Aggregate(r.Context(), bucket)
	if err != nil {
		log.Errorf("locator: aggregating %s: %v", bucket, err)
		http.Error(w, "storage node unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(agg); err != nil {
		log.Errorf("locator: encoding aggregate response for %s: %v", bucket, err)
	}
}
