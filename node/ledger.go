package node

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// AppendLedger records that key's content has digest hexDigest in
// bucket's ledger file, <root>/<bucket>.sha256. The line format, two
// spaces between digest and key and a trailing newline, matches the
// ledger files the Python original (object_server.py) writes and reads,
// so a node upgraded in place can still make sense of its own history.
func (d *Driver) AppendLedger(bucket, hexDigest, key string) error {
	path, err := d.ledgerPath(bucket)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s  %s\n", hexDigest, key); err != nil {
		return err
	}
	return f.Sync()
}

// ReadLedger loads bucket's full ledger into memory, keyed by object key.
// A truncated final line (no trailing newline, e.g. because a prior
// append was interrupted mid-write) is discarded rather than treated as
// an error, since the object it would describe is either absent or will
// be overwritten by a future append.
//
// The parsed result is cached per bucket and reused as long as the
// ledger file's mtime hasn't moved, so a burst of single-object GETs
// between writes costs one file read, not one per request.
func (d *Driver) ReadLedger(bucket string) (map[string]string, error) {
	path, err := d.ledgerPath(bucket)
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(path)
	if statErr == nil {
		d.ledgerCacheMu.RLock()
		cached, ok := d.ledgerCache[bucket]
		d.ledgerCacheMu.RUnlock()
		if ok && cached.modTime.Equal(info.ModTime()) {
			return cached.entries, nil
		}
	} else if os.IsNotExist(statErr) {
		return map[string]string{}, nil
	} else {
		return nil, statErr
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	entries, err := parseLedger(f)
	if err != nil {
		return nil, err
	}

	d.ledgerCacheMu.Lock()
	d.ledgerCache[bucket] = cachedLedger{modTime: info.ModTime(), entries: entries}
	d.ledgerCacheMu.Unlock()

	return entries, nil
}

// parseLedger reads r line by line with bufio.Reader rather than
// bufio.Scanner: a Scanner's ScanLines split function returns a final
// line lacking a trailing newline as an ordinary token at EOF, which
// would accept a truncated interrupted append into the ledger. Reading
// with ReadString('\n') instead lets a line reaching EOF without its
// terminator be told apart from a complete one and discarded.
func parseLedger(r io.Reader) (map[string]string, error) {
	entries := make(map[string]string)
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err == io.EOF {
			if line == "" {
				break
			}
			// Reached EOF without a trailing newline: this line was
			// never fully appended, discard it.
			break
		}

		line = strings.TrimSuffix(line, "\n")
		digest, key, ok := strings.Cut(line, "  ")
		if !ok {
			continue
		}
		if digest == "" || key == "" {
			continue
		}
		entries[key] = digest
	}

	return entries, nil
}

// LookupDigest returns the ledger-recorded digest for key in bucket.
func (d *Driver) LookupDigest(bucket, key string) (string, bool, error) {
	entries, err := d.ReadLedger(bucket)
	if err != nil {
		return "", false, err
	}
	digest, ok := entries[key]
	return digest, ok, nil
}
