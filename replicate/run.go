package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/ctengel/simpler-objects/metrics"
)

var (
	objectsScanned    = metrics.ReplicatorNamespace.NewCounter("objects_scanned_total", "objects examined across all runs")
	objectsReplicated = metrics.ReplicatorNamespace.NewCounter("objects_replicated_total", "objects successfully copied to a new node")
	objectsAbandoned  = metrics.ReplicatorNamespace.NewCounter("objects_abandoned_total", "objects left under-replicated after a run")
)

// minPercentFree and minExtraBytes are the destination eligibility margins
// named directly in spec.md §4.3 step c.
const (
	minPercentFree = 1
	minExtraBytes  = 1 << 20 // 1 MiB
)

type aggregatedObject struct {
	Key       string   `json:"key"`
	Size      *int64   `json:"size"`
	Digest    *string  `json:"checksum"`
	Locations []string `json:"locations"`
	Err       bool     `json:"error"`
}

type aggregateResponse struct {
	Bucket  string             `json:"bucket"`
	Objects []aggregatedObject `json:"objects"`
}

type serverHealth struct {
	Reachable bool   `json:"reachable"`
	Write     bool   `json:"write"`
	Available uint64 `json:"available"`
	Percent   int    `json:"percent"`
}

type healthResponse struct {
	Servers map[string]serverHealth `json:"servers"`
}

// Warning records one object the run could not bring to full replication.
type Warning struct {
	Key    string
	Reason string
}

// Result summarizes one Auto or Mirror run.
type Result struct {
	Bucket     string
	Scanned    int
	Replicated int
	Warnings   []Warning
}

// Success reports whether every object reached the requested replica
// count, the condition spec.md §4.3 step 3 ties the process exit code to.
func (r Result) Success() bool {
	return len(r.Warnings) == 0
}

// Runner drives the locator-based replication algorithm in spec.md §4.3.
type Runner struct {
	LocatorURL string
	Client     *http.Client
}

// NewRunner builds a Runner against locatorURL, defaulting to an HTTP
// client with a 10-second timeout when client is nil.
func NewRunner(locatorURL string, client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Runner{LocatorURL: locatorURL, Client: client}
}

// Auto runs the replicator once against bucket, driving every
// under-replicated object up to replicas copies.
func (run *Runner) Auto(ctx context.Context, bucket string, replicas int) (Result, error) {
	agg, err := run.fetchAggregate(ctx, bucket)
	if err != nil {
		return Result{}, err
	}

	result := Result{Bucket: bucket}

	for _, obj := range agg.Objects {
		objectsScanned.Inc()
		result.Scanned++

		if obj.Err || obj.Digest == nil || *obj.Digest == "" {
			result.Warnings = append(result.Warnings, Warning{Key: obj.Key, Reason: "ambiguous source (aggregation disagreement)"})
			continue
		}

		deficit := replicas - len(obj.Locations)
		if deficit < 1 {
			continue
		}

		size := int64(0)
		if obj.Size != nil {
			size = *obj.Size
		}

		health, err := run.fetchHealth(ctx)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Key: obj.Key, Reason: fmt.Sprintf("querying locator health: %v", err)})
			continue
		}

		candidates := run.eligibleDestinations(ctx, health, obj.Locations, bucket, size)
		if len(candidates) == 0 {
			result.Warnings = append(result.Warnings, Warning{Key: obj.Key, Reason: "no eligible destination node"})
			continue
		}

		destinations := sampleWithoutReplacement(candidates, minInt(deficit, len(candidates)))

		copied := 0
		for _, dest := range destinations {
			source := obj.Locations[rand.Intn(len(obj.Locations))]
			sourceURL := fmt.Sprintf("%s/%s/%s", source, bucket, obj.Key)
			destURL := fmt.Sprintf("%s/%s/%s", dest, bucket, obj.Key)

			if err := StreamCopy(ctx, run.Client, sourceURL, destURL); err != nil {
				result.Warnings = append(result.Warnings, Warning{Key: obj.Key, Reason: err.Error()})
				continue
			}
			copied++
			objectsReplicated.Inc()
		}

		if copied < deficit {
			objectsAbandoned.Inc()
			if len(destinations) < deficit {
				result.Warnings = append(result.Warnings, Warning{Key: obj.Key, Reason: fmt.Sprintf("only %d eligible destination node(s) for a deficit of %d", len(destinations), deficit)})
			}
		}
		result.Replicated += copied
	}

	return result, nil
}

func (run *Runner) eligibleDestinations(ctx context.Context, health healthResponse, locations []string, bucket string, size int64) []string {
	already := make(map[string]bool, len(locations))
	for _, loc := range locations {
		already[loc] = true
	}

	var candidates []string
	for node, h := range health.Servers {
		if already[node] {
			continue
		}
		if !h.Reachable || !h.Write || h.Percent <= minPercentFree || h.Available <= uint64(size)+minExtraBytes {
			continue
		}
		if !run.bucketExists(ctx, node, bucket) {
			continue
		}
		candidates = append(candidates, node)
	}
	return candidates
}

func (run *Runner) bucketExists(ctx context.Context, node, bucket string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fmt.Sprintf("%s/%s/", node, bucket), nil)
	if err != nil {
		return false
	}
	resp, err := run.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (run *Runner) fetchAggregate(ctx context.Context, bucket string) (aggregateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/", run.LocatorURL, bucket), nil)
	if err != nil {
		return aggregateResponse{}, err
	}
	resp, err := run.Client.Do(req)
	if err != nil {
		return aggregateResponse{}, fmt.Errorf("replicate: fetching aggregate view of %q: %w", bucket, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return aggregateResponse{}, fmt.Errorf("replicate: locator returned %d for %q", resp.StatusCode, bucket)
	}

	var out aggregateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return aggregateResponse{}, fmt.Errorf("replicate: decoding aggregate view: %w", err)
	}
	return out, nil
}

func (run *Runner) fetchHealth(ctx context.Context) (healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, run.LocatorURL+"/health", nil)
	if err != nil {
		return healthResponse{}, err
	}
	resp, err := run.Client.Do(req)
	if err != nil {
		return healthResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return healthResponse{}, fmt.Errorf("locator health returned %d", resp.StatusCode)
	}

	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return healthResponse{}, err
	}
	return out, nil
}

// sampleWithoutReplacement resolves the Open Question in spec.md §9 over
// destination sampling: without replacement, so a single run never picks
// the same node twice for one object.
func sampleWithoutReplacement(pool []string, n int) []string {
	if n >= len(pool) {
		return pool
	}
	perm := rand.Perm(len(pool))
	chosen := make([]string, n)
	for i := 0; i < n; i++ {
		chosen[i] = pool[perm[i]]
	}
	return chosen
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
