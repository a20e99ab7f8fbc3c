package node

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndReadLedger(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "bucket"), 0o755); err != nil {
		t.Fatal(err)
	}
	d := New(dir, 4)

	if err := d.AppendLedger("bucket", "abc123", "key-one"); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendLedger("bucket", "def456", "key-two"); err != nil {
		t.Fatal(err)
	}

	entries, err := d.ReadLedger("bucket")
	if err != nil {
		t.Fatal(err)
	}
	if entries["key-one"] != "abc123" {
		t.Errorf("key-one = %q, want abc123", entries["key-one"])
	}
	if entries["key-two"] != "def456" {
		t.Errorf("key-two = %q, want def456", entries["key-two"])
	}
}

func TestReadLedgerMissingFile(t *testing.T) {
	d := New(t.TempDir(), 4)
	entries, err := d.ReadLedger("never-written")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %v", entries)
	}
}

func TestReadLedgerTruncatedLastLine(t *testing.T) {
	path, err := writeLedgerFile(t, "complete-digest  complete-key\nabcd")
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	entries, err := parseLedger(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the complete line, got %v", entries)
	}
	if entries["complete-key"] != "complete-digest" {
		t.Errorf("unexpected entry: %v", entries)
	}
}

func writeLedgerFile(t *testing.T, content string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func TestReadLedgerCacheInvalidatesOnAppend(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "bucket"), 0o755); err != nil {
		t.Fatal(err)
	}
	d := New(dir, 4)

	if err := d.AppendLedger("bucket", "digest-one", "key-one"); err != nil {
		t.Fatal(err)
	}
	first, err := d.ReadLedger("bucket")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 entry, got %v", first)
	}

	if err := d.AppendLedger("bucket", "digest-two", "key-two"); err != nil {
		t.Fatal(err)
	}
	second, err := d.ReadLedger("bucket")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Fatalf("expected the cache to pick up the new append, got %v", second)
	}
}

func TestLedgerLineFormat(t *testing.T) {
	dir := t.TempDir()
	d := New(dir, 4)
	if err := os.Mkdir(filepath.Join(dir, "bucket"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendLedger("bucket", "digest", "key"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "bucket.sha256"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "digest  key\n") {
		t.Fatalf("unexpected ledger line: %q", raw)
	}
}
