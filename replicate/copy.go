// Package replicate implements the one-shot replicator: a single-task
// driver that reads cluster state from a locator (or, in mirror mode, two
// bare bucket URLs) and streams objects between storage nodes to correct
// under-replication.
package replicate

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/ctengel/simpler-objects/internal/digestheader"
)

// objectMeta is what a HEAD request on an object reveals.
type objectMeta struct {
	Size   int64
	Digest []byte
}

// headObject issues HEAD url and extracts size and Repr-Digest. A non-200
// status is returned with a nil error, which lets the destination-absence
// check (step 2 of the streaming copy) treat 404 as a valid, expected
// outcome instead of an error.
func headObject(ctx context.Context, client *http.Client, url string) (objectMeta, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return objectMeta{}, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return objectMeta{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return objectMeta{}, resp.StatusCode, nil
	}

	digest, err := digestheader.Parse(resp.Header.Get("Repr-Digest"))
	if err != nil {
		return objectMeta{}, resp.StatusCode, err
	}

	return objectMeta{Size: resp.ContentLength, Digest: digest}, resp.StatusCode, nil
}

// StreamCopy implements spec.md §4.3.1: verify the source has a
// well-formed object, require the destination to be empty, stream the
// body across with its digest carried on Content-Digest, then re-HEAD the
// destination to confirm size and digest match. It never buffers the
// full object in memory — the response body is piped directly into the
// PUT request body.
func StreamCopy(ctx context.Context, client *http.Client, source, dest string) error {
	srcMeta, status, err := headObject(ctx, client, source)
	if err != nil {
		return fmt.Errorf("replicate: HEAD source %s: %w", source, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("replicate: source %s: HEAD returned %d", source, status)
	}
	if srcMeta.Size <= 0 || len(srcMeta.Digest) == 0 {
		return fmt.Errorf("replicate: source %s: missing size or digest", source)
	}

	_, destStatus, err := headObject(ctx, client, dest)
	if err != nil {
		return fmt.Errorf("replicate: HEAD destination %s: %w", dest, err)
	}
	if destStatus != http.StatusNotFound {
		return fmt.Errorf("replicate: destination %s: expected 404 before copy, got %d", dest, destStatus)
	}

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return err
	}
	getResp, err := client.Do(getReq)
	if err != nil {
		return fmt.Errorf("replicate: GET source %s: %w", source, err)
	}
	defer getResp.Body.Close()

	if getResp.StatusCode != http.StatusOK {
		return fmt.Errorf("replicate: GET source %s returned %d", source, getResp.StatusCode)
	}
	if getResp.ContentLength >= 0 && getResp.ContentLength != srcMeta.Size {
		return fmt.Errorf("replicate: source %s: GET Content-Length %d disagrees with HEAD size %d", source, getResp.ContentLength, srcMeta.Size)
	}
	getDigest, err := digestheader.Parse(getResp.Header.Get("Repr-Digest"))
	if err != nil {
		return fmt.Errorf("replicate: source %s: parsing GET Repr-Digest: %w", source, err)
	}
	if len(getDigest) > 0 && !equalBytes(getDigest, srcMeta.Digest) {
		return fmt.Errorf("replicate: source %s: GET digest disagrees with HEAD digest", source)
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, dest, getResp.Body)
	if err != nil {
		return err
	}
	putReq.ContentLength = srcMeta.Size
	putReq.Header.Set("Content-Digest", digestheader.Format(srcMeta.Digest))

	putResp, err := client.Do(putReq)
	if err != nil {
		return fmt.Errorf("replicate: PUT destination %s: %w", dest, err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusCreated {
		return fmt.Errorf("replicate: PUT destination %s returned %d", dest, putResp.StatusCode)
	}

	finalMeta, finalStatus, err := headObject(ctx, client, dest)
	if err != nil {
		return fmt.Errorf("replicate: re-HEAD destination %s: %w", dest, err)
	}
	if finalStatus != http.StatusOK {
		return fmt.Errorf("replicate: destination %s: re-HEAD returned %d", dest, finalStatus)
	}
	if finalMeta.Size != srcMeta.Size || !equalBytes(finalMeta.Digest, srcMeta.Digest) {
		return fmt.Errorf("replicate: destination %s: post-copy size/digest mismatch (destination left as-is)", dest)
	}

	return nil
}

func equalBytes(a, b []byte) bool {
	return hex.EncodeToString(a) == hex.EncodeToString(b)
}
