package node

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctengel/simpler-objects/health/checks"
)

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "bucket"), 0o755); err != nil {
		t.Fatal(err)
	}
	driver := New(dir, 4)
	disk := checks.NewDiskSpaceChecker(dir)
	return NewApp(driver, disk), dir
}

func TestPutThenGet(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPut, "/bucket/key", bytes.NewBufferString("payload"))
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Repr-Digest") == "" {
		t.Error("expected a Repr-Digest header on successful PUT")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/bucket/key", nil)
	getRec := httptest.NewRecorder()
	app.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", getRec.Code)
	}
	if getRec.Body.String() != "payload" {
		t.Fatalf("GET body = %q, want %q", getRec.Body.String(), "payload")
	}
}

func TestPutConflict(t *testing.T) {
	app, _ := newTestApp(t)

	first := httptest.NewRequest(http.MethodPut, "/bucket/key", bytes.NewBufferString("one"))
	app.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPut, "/bucket/key", bytes.NewBufferString("two"))
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, second)

	if rec.Code != http.StatusConflict {
		t.Fatalf("second PUT status = %d, want 409", rec.Code)
	}
}

func TestPutDigestMismatchRejected(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPut, "/bucket/key", bytes.NewBufferString("payload"))
	req.Header.Set("Repr-Digest", "sha-256=:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=:")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 on digest mismatch", rec.Code)
	}

	exists, err := app.driver.Exists("bucket", "key")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("object with mismatched digest should have been unlinked")
	}
}

func TestGetMissingObject(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/bucket/nosuchkey", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListBucket(t *testing.T) {
	app, _ := newTestApp(t)

	put := httptest.NewRequest(http.MethodPut, "/bucket/a", bytes.NewBufferString("x"))
	app.ServeHTTP(httptest.NewRecorder(), put)

	req := httptest.NewRequest(http.MethodGet, "/bucket/", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Objects) != 1 || resp.Objects[0].Key != "a" {
		t.Fatalf("unexpected list response: %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
