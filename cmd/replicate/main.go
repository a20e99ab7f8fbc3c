// Command replicate is the one-shot replicator driver, per spec.md §4.3.
// It exits 0 only if every object it examined reached its target replica
// count (auto) or was copied or already present with matching size and
// digest (mirror).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctengel/simpler-objects/replicate"
)

func main() {
	root := &cobra.Command{
		Use:   "replicate",
		Short: "Detect under-replication and copy objects between storage nodes",
	}

	root.AddCommand(autoCmd(), mirrorCmd())

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func autoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto <locator-url> <bucket> <replicas>",
		Short: "Bring every object in bucket up to the requested replica count",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			locatorURL, bucket := args[0], args[1]
			replicas, err := strconv.Atoi(args[2])
			if err != nil {
				logrus.Fatalf("replicate: replicas must be an integer: %v", err)
			}

			runner := replicate.NewRunner(locatorURL, &http.Client{Timeout: 10 * time.Second})
			result, err := runner.Auto(context.Background(), bucket, replicas)
			if err != nil {
				logrus.Fatalf("replicate: run failed: %v", err)
			}

			report(result)
			if !result.Success() {
				os.Exit(1)
			}
		},
	}
}

func mirrorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mirror <source-bucket-url> <dest-bucket-url>",
		Short: "Copy objects present in the source bucket but missing from the destination",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			sourceURL, destURL := args[0], args[1]

			client := &http.Client{Timeout: 10 * time.Second}
			result, err := replicate.Mirror(context.Background(), client, sourceURL, destURL)
			if err != nil {
				logrus.Fatalf("replicate: mirror failed: %v", err)
			}

			report(result)
			if !result.Success() {
				os.Exit(1)
			}
		},
	}
}

func report(result replicate.Result) {
	logrus.Infof("replicate: scanned %d, replicated %d, warnings %d", result.Scanned, result.Replicated, len(result.Warnings))
	for _, w := range result.Warnings {
		logrus.Warnf("replicate: %s: %s", w.Key, w.Reason)
	}
	fmt.Fprintf(os.Stdout, "bucket=%s scanned=%d replicated=%d warnings=%d\n", result.Bucket, result.Scanned, result.Replicated, len(result.Warnings))
}
