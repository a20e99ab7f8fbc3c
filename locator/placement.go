package locator

import (
	"context"
	"errors"
	"math/rand"
)

// ErrAlreadyExists means a node in S already holds (bucket, key): the
// locator must not place the write anywhere else and instead report the
// conflict to the client.
var ErrAlreadyExists = errors.New("locator: object already exists on a node")

// ErrNoEligibleNode means no configured node survived the placement
// filter: none are reachable and writable with enough free space, or
// none of those have the bucket directory.
var ErrNoEligibleNode = errors.New("locator: no eligible node for write")

// minPercentFree and minExtraBytes are the literal candidate-filter
// margins named in spec.md §4.2 step 3: "percent > 1", "available >
// size + 1 MiB".
const (
	minPercentFree = 1
	minExtraBytes  = 1 << 20 // 1 MiB
)

// candidate is an eligible write target with the weight its free space
// earns it in the random draw.
type candidate struct {
	URL    string
	Weight float64
}

// ChooseWrite selects one node to receive a PUT of size bytes for
// (bucket, key), implementing the placement algorithm in spec.md §4.2
// verbatim:
//  1. (caller's responsibility: size must already be a positive
//     Content-Length, rejected before this is called.)
//  2. Probe health on every node in S.
//  3. Build the initial candidate set: write == true, percent > 1,
//     available > size + 1 MiB margin.
//  4. HEAD the object path on every node in S, not just candidates — any
//     node that already holds the key aborts the whole write with a
//     conflict.
//  5. HEAD each surviving candidate's bucket path; drop those where the
//     bucket directory doesn't exist.
//  6. 507 if no candidates remain.
//  7. Weight survivors by available × percent and sample one.
func (l *Locator) ChooseWrite(ctx context.Context, bucket, key string, size int64) (string, error) {
	statuses := l.ProbeAll(ctx)

	excluded := make(map[string]bool)
	for _, node := range l.Nodes {
		exists, reachable := l.objectExists(ctx, node, bucket, key)
		if !reachable {
			// Per the resolved Open Question in spec.md §9: a probe
			// error excludes the node from consideration rather than
			// being treated as "does not exist" — a transient error
			// must never look like free space to write into.
			excluded[node] = true
			continue
		}
		if exists {
			return "", ErrAlreadyExists
		}
	}

	var candidates []candidate
	for _, s := range statuses {
		if !s.Reachable || !s.Write || excluded[s.URL] {
			continue
		}
		if s.Percent <= minPercentFree || s.Available <= uint64(size)+minExtraBytes {
			continue
		}
		if !l.bucketExists(ctx, s.URL, bucket) {
			continue
		}
		weight := float64(s.Available) * float64(s.Percent)
		if weight <= 0 {
			weight = 1
		}
		candidates = append(candidates, candidate{URL: s.URL, Weight: weight})
	}

	if len(candidates) == 0 {
		return "", ErrNoEligibleNode
	}

	return weightedPick(candidates), nil
}

func weightedPick(candidates []candidate) string {
	var total float64
	for _, c := range candidates {
		total += c.Weight
	}

	r := rand.Float64() * total
	for _, c := range candidates {
		r -= c.Weight
		if r <= 0 {
			return c.URL
		}
	}
	return candidates[len(candidates)-1].URL
}
