// Package node implements the storage node: a content-addressed, digest
// verified write path over a local filesystem root, one directory per
// bucket, with an append-only digest ledger sibling to each bucket.
package node

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// writeBufferSize is the buffered-write chunk size suggested by spec.md
// for the PUT path: large enough that a multi-gigabyte object is never
// held in memory in one piece, small enough not to matter for tiny ones.
const writeBufferSize = 64 * 1024 * 1024

// componentRegexp matches a single path component of a bucket or key: it
// must be non-empty and must not be "." or "..", which keeps a PUT or GET
// from escaping the driver's root directory. Unlike the teacher's
// storagedriver.PathRegexp (registry/storage/driver/base), object keys
// here are not required to look like repository names, so this only
// excludes traversal, not arbitrary characters.
var componentRegexp = regexp.MustCompile(`^[^/\\]+$`)

// InvalidNameError is returned when a bucket or key would escape the
// driver's root directory.
type InvalidNameError struct {
	Name string
}

func (e InvalidNameError) Error() string {
	return fmt.Sprintf("invalid bucket or key name: %q", e.Name)
}

// ErrConflict is returned by CreateExclusive when the target object
// already exists. It is the Go-level signal behind the HTTP 409 the spec
// requires on PUT to an existing (bucket, key).
var ErrConflict = errors.New("object already exists")

// ErrNotFound is returned when a bucket or object does not exist.
var ErrNotFound = errors.New("not found")

// Driver owns a root directory on the local filesystem and provides the
// bucket/key-scoped operations the storage node's HTTP handlers need. It
// deliberately does not implement a generic pluggable storagedriver.
// StorageDriver interface the way the teacher's registry/storage/driver
// packages do — this system has exactly one backend (local disk) and
// never swaps it at runtime, so the factory/base-regulator/multi-backend
// machinery those packages provide has nothing to select between.
type Driver struct {
	root string

	// writers bounds the number of concurrently open writable file
	// descriptors, the same role registry/storage/driver/base's
	// Regulator plays for the filesystem storage driver, sized smaller
	// here since object PUTs, not small metadata writes, dominate.
	writers chan struct{}

	// ledgerCacheMu guards ledgerCache, an mtime-invalidated cache of each
	// bucket's parsed ledger. A single-object GET only needs one digest
	// out of the whole ledger, but rescanning the entire file on every
	// request falls over under a thundering herd of locator health/read
	// probes; the cache turns repeat GETs between writes into no further
	// disk reads.
	ledgerCacheMu sync.RWMutex
	ledgerCache   map[string]cachedLedger
}

type cachedLedger struct {
	modTime time.Time
	entries map[string]string
}

// New constructs a Driver rooted at dir, allowing at most maxWriters
// concurrent in-flight PUTs to hold an open file descriptor.
func New(dir string, maxWriters int) *Driver {
	if maxWriters < 1 {
		maxWriters = 1
	}
	return &Driver{
		root:        dir,
		writers:     make(chan struct{}, maxWriters),
		ledgerCache: make(map[string]cachedLedger),
	}
}

// Root returns the driver's root directory.
func (d *Driver) Root() string {
	return d.root
}

func validComponent(name string) bool {
	return name != "" && name != "." && name != ".." && componentRegexp.MatchString(name)
}

func (d *Driver) objectPath(bucket, key string) (string, error) {
	if !validComponent(bucket) {
		return "", InvalidNameError{Name: bucket}
	}
	if !validComponent(key) {
		return "", InvalidNameError{Name: key}
	}
	return filepath.Join(d.root, bucket, key), nil
}

func (d *Driver) bucketPath(bucket string) (string, error) {
	if !validComponent(bucket) {
		return "", InvalidNameError{Name: bucket}
	}
	return filepath.Join(d.root, bucket), nil
}

func (d *Driver) ledgerPath(bucket string) (string, error) {
	if !validComponent(bucket) {
		return "", InvalidNameError{Name: bucket}
	}
	return filepath.Join(d.root, bucket+".sha256"), nil
}

// Exists reports whether (bucket, key) already has an object on disk.
func (d *Driver) Exists(bucket, key string) (bool, error) {
	path, err := d.objectPath(bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Stat returns the on-disk size of (bucket, key).
func (d *Driver) Stat(bucket, key string) (int64, error) {
	path, err := d.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return fi.Size(), nil
}

// Reader opens (bucket, key) for reading in full from the start. The
// caller must Close it.
func (d *Driver) Reader(bucket, key string) (*os.File, int64, error) {
	path, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// CreateExclusive creates (bucket, key) for writing, failing with
// ErrConflict if it already exists. The bucket directory must already
// exist (bucket creation is outside this core's scope, per spec.md §9).
func (d *Driver) CreateExclusive(ctx context.Context, bucket, key string) (*Writer, error) {
	path, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	select {
	case d.writers <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		<-d.writers
		if os.IsExist(err) {
			return nil, ErrConflict
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bucket %q does not exist: %w", bucket, ErrNotFound)
		}
		return nil, err
	}

	return &Writer{
		file:    f,
		bw:      bufio.NewWriterSize(f, writeBufferSize),
		release: func() { <-d.writers },
	}, nil
}

// Unlink removes (bucket, key). Used to roll back a digest mismatch or a
// body that was truncated mid-transfer.
func (d *Driver) Unlink(bucket, key string) error {
	path, err := d.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// BucketExists reports whether bucket is a directory under the root.
func (d *Driver) BucketExists(bucket string) (bool, error) {
	path, err := d.bucketPath(bucket)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.IsDir(), nil
}

// Entry describes one directory entry returned by List.
type Entry struct {
	Name      string
	Directory bool
	Size      int64
}

// List enumerates the direct children of bucket. It does not recurse:
// spec.md's bucket view is a single flat namespace per bucket.
func (d *Driver) List(bucket string) ([]Entry, error) {
	path, err := d.bucketPath(bucket)
	if err != nil {
		return nil, err
	}

	dir, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer dir.Close()

	infos, err := dir.ReadDir(0)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			entries = append(entries, Entry{Name: info.Name(), Directory: true})
			continue
		}
		fi, err := info.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: info.Name(), Size: fi.Size()})
	}

	return entries, nil
}

// Writer streams bytes to a newly created object. Unlike
// registry/storage/driver/filesystem's fileWriter, it has no Commit/Cancel
// pair over a temp-file rename — the file was created under its final
// name up front so that a concurrent second CreateExclusive sees it
// immediately, per spec.md's anti-overwrite invariant. Close finalizes
// the write; Abort removes the file instead, used on digest mismatch or
// a truncated body.
type Writer struct {
	file    *os.File
	bw      *bufio.Writer
	size    int64
	release func()
	done    bool
}

// Write implements io.Writer, buffering through the underlying file.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.bw.Write(p)
	w.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Close flushes, fsyncs and closes the file, leaving it on disk as the
// committed object.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.release()

	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Abort closes and removes the file without committing it.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.release()

	w.file.Close()
	err := os.Remove(w.file.Name())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Name returns the path being written to, for callers that need to
// unlink it through the Driver instead (e.g. after Close succeeded but a
// post-hoc digest check failed).
func (w *Writer) Name() string {
	return w.file.Name()
}

var _ io.Writer = (*Writer)(nil)
