// Package locator implements the stateless placement and discovery tier:
// it holds no object bytes of its own, only a fixed list of storage node
// base URLs, and answers every request by probing those nodes live.
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// NodeStatus is one storage node's answer to GET /health, plus whatever
// the locator learned trying to reach it.
type NodeStatus struct {
	URL       string
	Reachable bool
	Read      bool
	Write     bool
	Available uint64
	Percent   int
	Err       error
}

// healthBody is the node's GET /health wire shape, spec.md §3/§6:
// {read, write, available, percent}.
type healthBody struct {
	Read      bool   `json:"read"`
	Write     bool   `json:"write"`
	Available uint64 `json:"available"`
	Percent   int    `json:"percent"`
}

// Locator fans requests for an object or bucket view out across a fixed
// set of storage node base URLs.
type Locator struct {
	Nodes      []string
	HTTPClient *http.Client
}

// New builds a Locator over nodes, each a storage node's base URL such
// as "http://node-a:46579".
func New(nodes []string, client *http.Client) *Locator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Locator{Nodes: nodes, HTTPClient: client}
}

// ProbeAll queries GET /health on every configured node concurrently. A
// node that errors or times out is reported as unreachable rather than
// dropped, so callers can distinguish "no nodes configured" from "nodes
// configured but all down".
func (l *Locator) ProbeAll(ctx context.Context) []NodeStatus {
	statuses := make([]NodeStatus, len(l.Nodes))

	g, ctx := errgroup.WithContext(ctx)
	for i, node := range l.Nodes {
		i, node := i, node
		g.Go(func() error {
			statuses[i] = l.probeOne(ctx, node)
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

func (l *Locator) probeOne(ctx context.Context, node string) NodeStatus {
	status := NodeStatus{URL: node}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node+"/health", nil)
	if err != nil {
		status.Err = err
		return status
	}

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		status.Err = err
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Err = fmt.Errorf("node %s: health returned %d", node, resp.StatusCode)
		return status
	}

	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		status.Err = fmt.Errorf("node %s: decoding health response: %w", node, err)
		return status
	}

	status.Reachable = true
	status.Read = body.Read
	status.Write = body.Write
	status.Available = body.Available
	status.Percent = body.Percent
	return status
}

// objectExists issues a HEAD for (bucket, key) against node. Per the
// resolved Open Question in spec.md ("what should a locator do if a node
// errors while checking for existing objects"), a probe error takes the
// node out of consideration for this write rather than being treated as
// "does not exist" — a transient error must never look like free space
// to write into.
func (l *Locator) objectExists(ctx context.Context, node, bucket, key string) (exists bool, reachable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/%s/%s", node, bucket, key), nil)
	if err != nil {
		return false, false
	}

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return false, false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, true
	case http.StatusNotFound:
		return false, true
	default:
		return false, false
	}
}

// bucketExists issues a HEAD for <node>/<bucket>/ to confirm the bucket
// directory exists there before the locator commits to it as a write
// target, per spec.md §4.2 step 5.
func (l *Locator) bucketExists(ctx context.Context, node, bucket string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/%s/", node, bucket), nil)
	if err != nil {
		return false
	}

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// pickRandom chooses n distinct indices from [0, total) without
// replacement, the sampling strategy resolved for the replicator's
// destination selection Open Question and reused here where the locator
// itself needs to pick among several equally-eligible read candidates.
func pickRandom(total, n int) []int {
	if n > total {
		n = total
	}
	pool := rand.Perm(total)
	return pool[:n]
}
