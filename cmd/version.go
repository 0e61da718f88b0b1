// cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-driver/internal/server"
)

// Build metadata, set at build time:
// go build -ldflags "-X github.com/xkilldash9x/scalpel-driver/cmd.Version=1.0.0 -X github.com/xkilldash9x/scalpel-driver/cmd.Revision=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Revision  = "unknown"
	BuildTime = "unknown"
)

func buildInfo() server.BuildInfo {
	return server.BuildInfo{Version: Version, Revision: Revision, Time: BuildTime}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "scalpel-driver %s (revision %s, built %s)\n", Version, Revision, BuildTime)
			return err
		},
	}
}
