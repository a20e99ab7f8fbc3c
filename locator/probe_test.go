package locator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func healthServer(t *testing.T, available uint64, percent int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(healthBody{Read: true, Write: true, Available: available, Percent: percent})
	}))
}

func TestProbeAllMarksUnreachable(t *testing.T) {
	up := healthServer(t, 1000, 50)
	defer up.Close()

	l := New([]string{up.URL, "http://127.0.0.1:1"}, nil)
	statuses := l.ProbeAll(context.Background())

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}

	foundReachable, foundUnreachable := false, false
	for _, s := range statuses {
		if s.Reachable {
			foundReachable = true
		} else {
			foundUnreachable = true
		}
	}
	if !foundReachable || !foundUnreachable {
		t.Fatalf("expected one reachable and one unreachable status: %+v", statuses)
	}
}

func TestPickRandomWithoutReplacement(t *testing.T) {
	picked := pickRandom(5, 3)
	if len(picked) != 3 {
		t.Fatalf("expected 3 picks, got %d", len(picked))
	}
	seen := make(map[int]bool)
	for _, i := range picked {
		if seen[i] {
			t.Fatalf("pickRandom picked index %d twice", i)
		}
		seen[i] = true
	}
}
