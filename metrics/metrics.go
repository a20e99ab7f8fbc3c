// Package metrics defines the prometheus namespaces shared by the storage
// node, locator and replicator binaries.
package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "simpler_objects"
)

var (
	// NodeNamespace is the prometheus namespace of storage node operations:
	// writes, reads, conflicts and 5xx errors.
	NodeNamespace = metrics.NewNamespace(NamespacePrefix, "node", nil)

	// LocatorNamespace is the prometheus namespace of locator operations:
	// write placements, read redirects and writes rejected for lack of an
	// eligible node.
	LocatorNamespace = metrics.NewNamespace(NamespacePrefix, "locator", nil)

	// ReplicatorNamespace is the prometheus namespace of replicator runs:
	// objects scanned, replicated and abandoned.
	ReplicatorNamespace = metrics.NewNamespace(NamespacePrefix, "replicator", nil)
)

func init() {
	metrics.Register(NodeNamespace)
	metrics.Register(LocatorNamespace)
	metrics.Register(ReplicatorNamespace)
}
