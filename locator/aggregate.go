package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ObjectLocation is one key's merged view across every node that reports
// holding it. Size and Digest are nulled out (via pointer) the moment two
// nodes disagree about them, per spec.md §4.2's aggregation merge rule;
// Error records that a disagreement happened so callers know to skip the
// entry rather than trust a stale field.
type ObjectLocation struct {
	Key       string   `json:"key"`
	Size      *int64   `json:"size"`
	Directory *bool    `json:"directory"`
	Digest    *string  `json:"checksum"`
	Locations []string `json:"locations"`
	Err       bool     `json:"error"`
}

type nodeObject struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	Directory bool   `json:"directory"`
	Digest    string `json:"checksum"`
}

type nodeListResponse struct {
	Bucket  string       `json:"bucket"`
	Objects []nodeObject `json:"objects"`
}

// AggregateBucket is the locator's answer to GET /{bucket}/: every key any
// node reports, merged.
type AggregateBucket struct {
	Bucket  string           `json:"bucket"`
	Objects []ObjectLocation `json:"objects"`
}

// Aggregate sends GET /{bucket}/ to every configured node, one node after
// another (the nodes are not queried in parallel), and merges the results
// per spec.md §4.2. A node answering 404 for the bucket
// contributes nothing; any other non-2xx is a cluster-wide failure the
// caller should surface as a 503, so Aggregate returns an error for it
// rather than silently degrading.
func (l *Locator) Aggregate(ctx context.Context, bucket string) (AggregateBucket, error) {
	byKey := make(map[string]*ObjectLocation)
	order := make([]string, 0)

	for _, node := range l.Nodes {
		resp, ok, err := l.fetchBucketList(ctx, node, bucket)
		if err != nil {
			return AggregateBucket{}, fmt.Errorf("locator: aggregating bucket %q: %w", bucket, err)
		}
		if !ok {
			continue
		}
		for _, obj := range resp.Objects {
			mergeObject(byKey, &order, node, obj)
		}
	}

	out := AggregateBucket{Bucket: bucket, Objects: make([]ObjectLocation, 0, len(order))}
	for _, key := range order {
		out.Objects = append(out.Objects, *byKey[key])
	}
	return out, nil
}

func mergeObject(byKey map[string]*ObjectLocation, order *[]string, node string, obj nodeObject) {
	existing, ok := byKey[obj.Key]
	if !ok {
		size, dir, digest := obj.Size, obj.Directory, obj.Digest
		byKey[obj.Key] = &ObjectLocation{
			Key:       obj.Key,
			Size:      &size,
			Directory: &dir,
			Digest:    &digest,
			Locations: []string{node},
		}
		*order = append(*order, obj.Key)
		return
	}

	existing.Locations = append(existing.Locations, node)

	if existing.Size == nil || *existing.Size != obj.Size {
		existing.Size = nil
		existing.Err = true
	}
	if existing.Directory == nil || *existing.Directory != obj.Directory {
		existing.Directory = nil
		existing.Err = true
	}
	if existing.Digest == nil || *existing.Digest != obj.Digest {
		existing.Digest = nil
		existing.Err = true
	}
}

// fetchBucketList returns (response, found, error). found is false when
// the node reports 404 for the bucket, which the aggregation treats as
// "this node has nothing to contribute" rather than a failure.
func (l *Locator) fetchBucketList(ctx context.Context, node, bucket string) (*nodeListResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/", node, bucket), nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, false, fmt.Errorf("node %s: list returned %d", node, resp.StatusCode)
	}

	var out nodeListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

// FindReaders probes the configured nodes for (bucket, key), in
// randomized order, and returns the first reachable one that holds it
// (nil if none does). Reads route to the first hit rather than waiting on
// every node, so the order is randomized per request to spread load
// instead of favoring whichever node happens to be listed first.
func (l *Locator) FindReaders(ctx context.Context, bucket, key string) []string {
	order := pickRandom(len(l.Nodes), len(l.Nodes))

	for _, i := range order {
		node := l.Nodes[i]
		exists, reachable := l.objectExists(ctx, node, bucket, key)
		if reachable && exists {
			return []string{node}
		}
	}
	return nil
}
