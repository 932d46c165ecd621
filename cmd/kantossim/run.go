package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mibez/kantos/arch"
	"github.com/Mibez/kantos/config"
	"github.com/Mibez/kantos/kernel"
	"github.com/Mibez/kantos/logging"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var ticks int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "boot the demo task set on a virtual board and advance it a fixed number of ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := config.Default()
			if configPath != "" {
				board, err = config.Load(configPath)
			}
			if err != nil {
				return err
			}

			log, err := logging.New(board.LogConfig)
			if err != nil {
				return err
			}

			arenaSize := board.TaskStackBytes + board.TaskStackBytes + board.IdleStackBytes
			sim := arch.NewVirtualSim(arenaSize)

			table, err := buildDemoTable(sim, 50, board.TaskStackBytes)
			if err != nil {
				return err
			}

			sched, err = kernel.NewScheduler(sim, table, log)
			if err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = sched.Run(board.TickIntervalMS)
			}()

			sim.AdvanceTick(ticks)

			snap := sched.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(),
				"after %d ticks: ready=%#010b pending=%#010b running=%#010b\n",
				ticks, snap.Ready, snap.Pending, snap.Running)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "board profile YAML file")
	cmd.Flags().IntVar(&ticks, "ticks", 100, "number of ticks to advance")
	return cmd
}
