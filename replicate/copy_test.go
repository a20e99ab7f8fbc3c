package replicate

import (
	"context"
	"crypto/sha256"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ctengel/simpler-objects/internal/digestheader"
)

// fakeNode is a minimal in-memory storage node used to exercise StreamCopy
// without spinning up the real node package, mirroring the way the
// teacher's storage driver tests exercise a driver through its interface
// rather than a live filesystem server.
type fakeNode struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeNode() *fakeNode {
	return &fakeNode{objects: make(map[string][]byte)}
}

func (n *fakeNode) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		switch r.Method {
		case http.MethodHead:
			n.mu.Lock()
			body, ok := n.objects[key]
			n.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			sum := sha256.Sum256(body)
			w.Header().Set("Repr-Digest", digestheader.Format(sum[:]))
			w.Header().Set("Content-Length", itoa(len(body)))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			n.mu.Lock()
			body, ok := n.objects[key]
			n.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			sum := sha256.Sum256(body)
			w.Header().Set("Repr-Digest", digestheader.Format(sum[:]))
			w.WriteHeader(http.StatusOK)
			w.Write(body)
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			n.mu.Lock()
			n.objects[key] = body
			n.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestStreamCopySuccess(t *testing.T) {
	source := newFakeNode()
	source.objects["/b/k"] = []byte("replicated payload")
	srcServer := httptest.NewServer(source.handler())
	defer srcServer.Close()

	dest := newFakeNode()
	destServer := httptest.NewServer(dest.handler())
	defer destServer.Close()

	err := StreamCopy(context.Background(), http.DefaultClient, srcServer.URL+"/b/k", destServer.URL+"/b/k")
	if err != nil {
		t.Fatal(err)
	}

	if string(dest.objects["/b/k"]) != "replicated payload" {
		t.Fatalf("destination holds %q", dest.objects["/b/k"])
	}
}

func TestStreamCopyFailsWhenDestinationAlreadyExists(t *testing.T) {
	source := newFakeNode()
	source.objects["/b/k"] = []byte("payload")
	srcServer := httptest.NewServer(source.handler())
	defer srcServer.Close()

	dest := newFakeNode()
	dest.objects["/b/k"] = []byte("already here")
	destServer := httptest.NewServer(dest.handler())
	defer destServer.Close()

	err := StreamCopy(context.Background(), http.DefaultClient, srcServer.URL+"/b/k", destServer.URL+"/b/k")
	if err == nil {
		t.Fatal("expected an error when destination already has the object")
	}
}

func TestStreamCopyFailsWhenSourceMissing(t *testing.T) {
	source := newFakeNode()
	srcServer := httptest.NewServer(source.handler())
	defer srcServer.Close()

	dest := newFakeNode()
	destServer := httptest.NewServer(dest.handler())
	defer destServer.Close()

	err := StreamCopy(context.Background(), http.DefaultClient, srcServer.URL+"/b/nosuchkey", destServer.URL+"/b/nosuchkey")
	if err == nil {
		t.Fatal("expected an error when source object is missing")
	}
}
