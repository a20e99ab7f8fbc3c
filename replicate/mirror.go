package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Mirror implements the bucket-to-bucket replication mode supplemented
// from original_source/simpler_objects/async_replicate.py's
// replicate_bucket/replicate_object: given two bare storage-node bucket
// URLs (not a locator), copy any object present in source but absent in
// dest, and flag any key present in both whose size or digest disagrees.
func Mirror(ctx context.Context, client *http.Client, sourceBucketURL, destBucketURL string) (Result, error) {
	sourceObjects, err := listBucket(ctx, client, sourceBucketURL)
	if err != nil {
		return Result{}, fmt.Errorf("replicate: listing source bucket: %w", err)
	}
	destObjects, err := listBucket(ctx, client, destBucketURL)
	if err != nil {
		return Result{}, fmt.Errorf("replicate: listing destination bucket: %w", err)
	}

	destByKey := make(map[string]nodeObjectMirror, len(destObjects))
	for _, o := range destObjects {
		destByKey[o.Key] = o
	}

	result := Result{Bucket: sourceBucketURL}

	for _, obj := range sourceObjects {
		result.Scanned++

		if existing, ok := destByKey[obj.Key]; ok {
			if existing.Size != obj.Size || existing.Digest != obj.Digest {
				result.Warnings = append(result.Warnings, Warning{
					Key:    obj.Key,
					Reason: fmt.Sprintf("destination already holds %q with a different size or digest", obj.Key),
				})
			}
			continue
		}

		sourceURL := sourceBucketURL + "/" + obj.Key
		destURL := destBucketURL + "/" + obj.Key
		if err := StreamCopy(ctx, client, sourceURL, destURL); err != nil {
			result.Warnings = append(result.Warnings, Warning{Key: obj.Key, Reason: err.Error()})
			continue
		}
		objectsReplicated.Inc()
		result.Replicated++
	}

	return result, nil
}

type nodeObjectMirror struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	Directory bool   `json:"directory"`
	Digest    string `json:"checksum"`
}

type nodeListing struct {
	Bucket  string             `json:"bucket"`
	Objects []nodeObjectMirror `json:"objects"`
}

func listBucket(ctx context.Context, client *http.Client, bucketURL string) ([]nodeObjectMirror, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bucketURL+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s/ returned %d", bucketURL, resp.StatusCode)
	}

	var out nodeListing
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	objects := out.Objects[:0:0]
	for _, o := range out.Objects {
		if o.Directory {
			continue
		}
		objects = append(objects, o)
	}
	return objects, nil
}
