// Command storage-node serves the content-addressed write/read path for
// one local directory, per spec.md §4.1.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ctengel/simpler-objects/node"
)

const defaultPort = 46579

func main() {
	var (
		dir        string
		port       int
		maxWriters int
	)

	cmd := &cobra.Command{
		Use:   "storage-node",
		Short: "Serve object storage over one local directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = os.Getenv("OBJECT_DIRECTORY")
			}
			if dir == "" {
				return fmt.Errorf("storage-node: --dir or OBJECT_DIRECTORY must be set")
			}

			srv := node.NewServer(node.Config{
				Directory:       dir,
				MaxWriters:      maxWriters,
				HealthInterval:  5 * time.Second,
				HealthThreshold: 3,
			})
			defer srv.Close()

			addr := fmt.Sprintf(":%d", port)
			logrus.Infof("storage-node: serving %s on %s", dir, addr)
			return http.ListenAndServe(addr, srv.Handler)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "root directory for object storage (falls back to OBJECT_DIRECTORY)")
	cmd.Flags().IntVar(&port, "port", defaultPort, "listen port")
	cmd.Flags().IntVar(&maxWriters, "max-writers", 32, "maximum concurrent in-flight writes")

	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
