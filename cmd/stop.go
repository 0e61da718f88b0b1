// cmd/stop.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-driver/internal/shutdown"
)

func newStopCmd() *cobra.Command {
	var pid int
	stopCmd := &cobra.Command{
		Use:         "stop",
		Short:       "Ask a running driver to shut down gracefully",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid <= 0 {
				return fmt.Errorf("--pid must be a positive process id")
			}
			path := shutdown.EventPath(pid)
			if err := shutdown.Trigger(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "shutdown requested for pid %d\n", pid)
			return err
		},
	}
	stopCmd.Flags().IntVar(&pid, "pid", 0, "process id of the driver to stop")
	_ = stopCmd.MarkFlagRequired("pid")
	return stopCmd
}
