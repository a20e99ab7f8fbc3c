package checks

import (
	"context"
	"testing"
)

func TestFileChecker(t *testing.T) {
	if err := FileChecker("/tmp").Check(context.Background()); err == nil {
		t.Errorf("/tmp was expected as exists")
	}

	if err := FileChecker("NoSuchFileFromMoon").Check(context.Background()); err != nil {
		t.Errorf("NoSuchFileFromMoon was expected as not exists, error:%v", err)
	}
}

func TestHTTPChecker(t *testing.T) {
	if err := HTTPChecker("https://www.google.cybertron", 200, 0, nil).Check(context.Background()); err == nil {
		t.Errorf("Google on Cybertron was expected as not exists")
	}

	if err := HTTPChecker("https://www.google.pt", 200, 0, nil).Check(context.Background()); err != nil {
		t.Errorf("Google at Portugal was expected as exists, error:%v", err)
	}
}

func TestDiskSpaceChecker(t *testing.T) {
	dir := t.TempDir()
	checker := NewDiskSpaceChecker(dir)

	if err := checker.Check(context.Background()); err != nil {
		t.Fatalf("Check failed on a real directory: %v", err)
	}

	stats := checker.Stats()
	if stats.Percent < 0 || stats.Percent > 100 {
		t.Errorf("Percent out of range: %d", stats.Percent)
	}
	if stats.Available == 0 {
		t.Errorf("Available reported as 0 on a real filesystem")
	}
}

func TestDiskSpaceCheckerMissingDir(t *testing.T) {
	checker := NewDiskSpaceChecker("/no/such/path/should/exist")
	if err := checker.Check(context.Background()); err == nil {
		t.Errorf("expected statfs on a missing path to fail")
	}
}
