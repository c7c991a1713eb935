package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vmkernel/mem/vm/mmu"
	"github.com/sarchlab/vmkernel/vmsim/replay"
)

var scenarioLog bool

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run the built-in replacement scenario under both policies.",
	Long: `Run the built-in scenario on 128-byte pages, 4 frames, and a ` +
		`2-entry TLB. Under fifo, four preloaded pages are touched in order. ` +
		`Under lru, four pages are touched, page 2 is touched again, and ` +
		`page 4 is touched.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runScenario(cmd.OutOrStdout(), scenarioLog)
	},
}

func init() {
	rootCmd.AddCommand(scenarioCmd)

	scenarioCmd.Flags().BoolVar(&scenarioLog, "log", false,
		"Log memory events to standard error.")
}

func runScenario(out io.Writer, logEvents bool) error {
	for _, p := range []mmu.Policy{mmu.PolicyFIFO, mmu.PolicyLRU} {
		c := machineConfig{
			pageSize:  replay.ScenarioPageSize,
			numFrames: replay.ScenarioNumFrames,
			tlbSize:   replay.ScenarioTLBCapacity,
			policy:    p.String(),
		}

		m, err := buildMachine(c, logEvents)
		if err != nil {
			return err
		}

		ops, err := replay.Parse(strings.NewReader(replay.Scenario(p)))
		if err != nil {
			return err
		}

		_, err = replay.Run(m.kernel, ops, replay.Options{})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "== %s ==\n", p)
		printTLB(out, m.mmu.TLBEntries())
		fmt.Fprintln(out)
	}

	return nil
}
