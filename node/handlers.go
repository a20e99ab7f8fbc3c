package node

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ctengel/simpler-objects/health/checks"
	"github.com/ctengel/simpler-objects/internal/dcontext"
	"github.com/ctengel/simpler-objects/internal/digestheader"
	"github.com/ctengel/simpler-objects/metrics"
)

var (
	writesTotal    = metrics.NodeNamespace.NewCounter("writes_total", "number of objects accepted")
	conflictsTotal = metrics.NodeNamespace.NewCounter("conflicts_total", "number of PUTs rejected for an existing key")
	readsTotal     = metrics.NodeNamespace.NewCounter("reads_total", "number of objects served")
	errorsTotal    = metrics.NodeNamespace.NewCounter("errors_total", "number of requests that failed with a 5xx")
)

// App wires the storage node's driver to an HTTP router. It holds no
// request state of its own: every handler method is safe to call
// concurrently from many goroutines, one per in-flight request, the same
// model the teacher's registry app uses.
type App struct {
	driver *Driver
	disk   *checks.DiskSpaceChecker
	router *mux.Router
}

// NewApp builds the storage node's router: health, single-object GET/HEAD
// and PUT, and per-bucket listing.
func NewApp(driver *Driver, disk *checks.DiskSpaceChecker) *App {
	a := &App{driver: driver, disk: disk}

	r := mux.NewRouter()
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{bucket}/", a.handleList).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{bucket}/{key}", a.handleObject).Methods(http.MethodGet, http.MethodHead, http.MethodPut)
	a.router = r

	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// healthResponse is the node's GET /health wire shape, spec.md §3/§6:
// {read, write, available, percent}.
type healthResponse struct {
	Read      bool   `json:"read"`
	Write     bool   `json:"write"`
	Available uint64 `json:"available"`
	Percent   int    `json:"percent"`
}

// handleHealth answers the locator's liveness probe and bucket-placement
// weighting query in one response: read/write capability plus the most
// recent free-space reading, refreshed by a background health.Poll loop
// rather than statted on every request (see cmd/storage-node).
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := a.disk.Stats()
	resp := healthResponse{
		Read:      true,
		Write:     true,
		Available: stats.Available,
		Percent:   stats.Percent,
	}

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		dcontext.GetLogger(r.Context()).Errorf("node: encoding health response: %v", err)
	}
}

func (a *App) handleObject(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		a.handleGet(w, r)
	case http.MethodPut:
		a.handlePut(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, key := vars["bucket"], vars["key"]
	log := dcontext.GetLogger(r.Context())

	f, size, err := a.driver.Reader(bucket, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		var inv InvalidNameError
		if errors.As(err, &inv) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Errorf("node: opening %s/%s: %v", bucket, key, err)
		errorsTotal.Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if digest, ok, err := a.driver.LookupDigest(bucket, key); err == nil && ok {
		w.Header().Set("Repr-Digest", digestFromHex(digest))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(size))

	readsTotal.Inc()
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := io.Copy(w, f); err != nil {
		log.Errorf("node: streaming %s/%s: %v", bucket, key, err)
	}
}

func digestFromHex(hexDigest string) string {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return ""
	}
	return digestheader.Format(raw)
}

// handlePut implements the write path in spec.md §4.1: exclusive create,
// buffered streaming copy while hashing, digest verification against any
// client-supplied Repr-Digest/Content-Digest, and a ledger append — in
// that order, so nothing is recorded in the ledger unless the bytes on
// disk are known good.
func (a *App) handlePut(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, key := vars["bucket"], vars["key"]
	log := dcontext.GetLogger(r.Context())

	clientDigest, err := digestheader.ParseHeaders(r.Header.Get("Repr-Digest"), r.Header.Get("Content-Digest"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writer, err := a.driver.CreateExclusive(r.Context(), bucket, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			conflictsTotal.Inc()
			http.Error(w, "object already exists", http.StatusConflict)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "bucket does not exist", http.StatusNotFound)
		default:
			var inv InvalidNameError
			if errors.As(err, &inv) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Errorf("node: creating %s/%s: %v", bucket, key, err)
			errorsTotal.Inc()
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	hasher := sha256.New()
	dest := io.MultiWriter(writer, hasher)

	written, copyErr := io.Copy(dest, r.Body)
	if copyErr != nil {
		writer.Abort()
		log.Errorf("node: body truncated writing %s/%s after %d bytes: %v", bucket, key, written, copyErr)
		errorsTotal.Inc()
		http.Error(w, "request body truncated", http.StatusBadGateway)
		return
	}

	if r.ContentLength >= 0 && written != r.ContentLength {
		writer.Abort()
		log.Errorf("node: wrote %d bytes for %s/%s, Content-Length declared %d", written, bucket, key, r.ContentLength)
		errorsTotal.Inc()
		http.Error(w, "content length mismatch", http.StatusInternalServerError)
		return
	}

	if err := writer.Close(); err != nil {
		log.Errorf("node: closing %s/%s: %v", bucket, key, err)
		errorsTotal.Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sum := hasher.Sum(nil)
	if clientDigest != nil && !equalDigest(sum, clientDigest) {
		a.driver.Unlink(bucket, key)
		http.Error(w, "digest mismatch", http.StatusBadRequest)
		return
	}

	hexDigest := hex.EncodeToString(sum)
	if err := a.driver.AppendLedger(bucket, hexDigest, key); err != nil {
		log.Errorf("node: appending ledger for %s/%s: %v", bucket, key, err)
		errorsTotal.Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writesTotal.Inc()
	w.Header().Set("Repr-Digest", digestheader.Format(sum))
	w.WriteHeader(http.StatusCreated)
}

func equalDigest(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type listEntry struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	Directory bool   `json:"directory"`
	Digest    string `json:"checksum"`
}

type listResponse struct {
	Bucket  string      `json:"bucket"`
	Objects []listEntry `json:"objects"`
}

// handleList answers a locator's aggregation fan-out: the flat set of
// keys this node holds for bucket, each with size and recorded digest
// when the ledger has one.
func (a *App) handleList(w http.ResponseWriter, r *http.Request) {
	bucket := mux.Vars(r)["bucket"]
	log := dcontext.GetLogger(r.Context())

	if r.Method == http.MethodHead {
		exists, err := a.driver.BucketExists(bucket)
		if err != nil {
			log.Errorf("node: checking bucket %s: %v", bucket, err)
			errorsTotal.Inc()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	entries, err := a.driver.List(bucket)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Errorf("node: listing %s: %v", bucket, err)
		errorsTotal.Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ledger, err := a.driver.ReadLedger(bucket)
	if err != nil {
		log.Errorf("node: reading ledger for %s: %v", bucket, err)
	}

	resp := listResponse{Bucket: bucket, Objects: make([]listEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Objects = append(resp.Objects, listEntry{
			Key:       e.Name,
			Size:      e.Size,
			Directory: e.Directory,
			Digest:    ledger[e.Name],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("node: encoding list response for %s: %v", bucket, err)
	}
}
