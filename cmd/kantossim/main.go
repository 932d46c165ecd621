// Command kantossim is a host-side demonstration and scenario runner
// for the kantos scheduler: it wires up arch.Sim in place of real
// Cortex-M33 silicon and drives the same kernel.Start/Yield/Sleep
// surface a board binding would use.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kantossim",
		Short: "Run and inspect the kantos scheduler against a simulated board",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newScenarioCmd())
	return root
}
