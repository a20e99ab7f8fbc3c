// Command locator runs the stateless placement and discovery tier over a
// fixed set of storage node base URLs, per spec.md §4.2.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctengel/simpler-objects/locator"
)

const defaultPort = 46579

func main() {
	var (
		servers string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "locator",
		Short: "Route reads and writes across a set of storage nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if servers == "" {
				servers = os.Getenv("OBJECT_SERVERS")
			}
			if servers == "" {
				return fmt.Errorf("locator: --servers or OBJECT_SERVERS must be set")
			}

			nodes := splitServers(servers)
			handler := locator.NewServer(locator.Config{
				Nodes:   nodes,
				Timeout: 5 * time.Second,
			})

			addr := fmt.Sprintf(":%d", port)
			logrus.Infof("locator: routing across %d nodes on %s", len(nodes), addr)
			return http.ListenAndServe(addr, handler)
		},
	}

	cmd.Flags().StringVar(&servers, "servers", "", "comma-separated storage node base URLs (falls back to OBJECT_SERVERS)")
	cmd.Flags().IntVar(&port, "port", defaultPort, "listen port")

	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func splitServers(s string) []string {
	parts := strings.Split(s, ",")
	nodes := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		nodes = append(nodes, strings.TrimRight(p, "/"))
	}
	return nodes
}
