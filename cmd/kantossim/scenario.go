package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mibez/kantos/arch"
	"github.com/Mibez/kantos/kernel"
	"github.com/Mibez/kantos/logging"
)

// scenario names a canned demonstration matching one of spec.md §8's
// end-to-end scenarios: sleepTicks controls how long task A sleeps
// before yielding back, and steps bounds how many ticks are printed.
type scenario struct {
	name       string
	sleepTicks uint32
	steps      int
}

var scenarios = map[string]scenario{
	"sleep-wake": {name: "sleep-wake", sleepTicks: 5, steps: 12},
	"busy-yield": {name: "busy-yield", sleepTicks: 0, steps: 6},
}

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "scenario <name>",
		Short:     "run one of the canned demonstration scenarios and print a per-tick trace",
		Args:      cobra.ExactArgs(1),
		ValidArgs: scenarioNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, ok := scenarios[args[0]]
			if !ok {
				return fmt.Errorf("unknown scenario %q (want one of %v)", args[0], scenarioNames())
			}
			return runScenario(cmd, sc)
		},
	}
	return cmd
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	return names
}

func runScenario(cmd *cobra.Command, sc scenario) error {
	log, err := logging.New(logging.DefaultConfig())
	if err != nil {
		return err
	}

	sleepTicks := sc.sleepTicks
	if sleepTicks == 0 {
		sleepTicks = 1
	}
	sim := arch.NewVirtualSim(0)
	table, err := buildDemoTable(sim, sleepTicks, kernel.DefaultStackSize)
	if err != nil {
		return err
	}

	sched, err = kernel.NewScheduler(sim, table, log)
	if err != nil {
		return err
	}

	go func() { _ = sched.Run(1) }()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scenario %s: tick  ready       pending     running\n", sc.name)
	for i := 0; i < sc.steps; i++ {
		sim.AdvanceTick(1)
		snap := sched.Snapshot()
		fmt.Fprintf(out, "%6d  %#010b  %#010b  %#010b\n", i+1, snap.Ready, snap.Pending, snap.Running)
	}
	return nil
}
