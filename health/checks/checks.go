package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ctengel/simpler-objects/health"
)

// FileChecker checks the existence of a file and returns an error
// if the file exists.
func FileChecker(f string) health.Checker {
	return health.CheckFunc(func(context.Context) error {
		absoluteFilePath, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %q: %v", f, err)
		}

		_, err = os.Stat(absoluteFilePath)
		if err == nil {
			return errors.New("file exists")
		} else if os.IsNotExist(err) {
			return nil
		}

		return err
	})
}

// HTTPChecker does a HEAD request and verifies that the HTTP status code
// returned matches statusCode.
func HTTPChecker(r string, statusCode int, timeout time.Duration, headers http.Header) health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		client := http.Client{
			Timeout: timeout,
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, r, nil)
		if err != nil {
			return fmt.Errorf("%v: error creating request: %w", r, err)
		}
		for headerName, headerValues := range headers {
			for _, headerValue := range headerValues {
				req.Header.Add(headerName, headerValue)
			}
		}
		response, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%v: error while checking: %w", r, err)
		}
		defer response.Body.Close()
		if response.StatusCode != statusCode {
			return fmt.Errorf("%v: downstream service returned unexpected status: %d", r, response.StatusCode)
		}
		return nil
	})
}

// TCPChecker attempts to open a TCP connection.
func TCPChecker(addr string, timeout time.Duration) health.Checker {
	return health.CheckFunc(func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("%v: connection failed: %w", addr, err)
		}
		conn.Close()
		return nil
	})
}

// DiskStats is a point-in-time reading of free space under a root
// directory, the shape the storage node reports on GET /health.
type DiskStats struct {
	Available uint64
	Percent   int
}

// DiskSpaceChecker fails Check only when the directory cannot be statted;
// it is meant to be driven by health.Poll and read back out via Stats.
// A node's free space is a
// reading, not a pass/fail condition, so it is exposed separately from
// the Checker/Updater error channel rather than forced into one.
type DiskSpaceChecker struct {
	dir string

	mu    sync.RWMutex
	stats DiskStats
}

// NewDiskSpaceChecker returns a checker that, on each Check, statfs's dir
// and records the free-space reading for later retrieval via Stats.
func NewDiskSpaceChecker(dir string) *DiskSpaceChecker {
	return &DiskSpaceChecker{dir: dir}
}

// Check implements health.Checker. It always returns nil unless the
// filesystem cannot be statted at all, since a nearly-full disk is
// reported through Stats rather than treated as a health failure.
func (d *DiskSpaceChecker) Check(context.Context) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(d.dir, &stat); err != nil {
		return fmt.Errorf("statfs %q: %w", d.dir, err)
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	percent := 0
	if total > 0 {
		percent = int(float64(available) / float64(total) * 100.0)
	}

	d.mu.Lock()
	d.stats = DiskStats{Available: available, Percent: percent}
	d.mu.Unlock()

	return nil
}

// Stats returns the last successfully observed reading.
func (d *DiskSpaceChecker) Stats() DiskStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}
