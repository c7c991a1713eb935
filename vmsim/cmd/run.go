package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vmkernel/monitoring"
	"github.com/sarchlab/vmkernel/tracing"
	"github.com/sarchlab/vmkernel/vmsim/replay"
)

type runConfig struct {
	machineConfig

	trace     string
	preload   bool
	logEvents bool
	tlbTrace  string
	monitor   bool
	port      int
	open      bool
}

var runFlags runConfig

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a memory-access trace.",
	Long: `Replay a memory-access trace. Each line of the trace is one of

  spawn PID PAGES [ro=N] [preload]
  switch PID
  r ADDR SIZE
  w ADDR SIZE VALUE
  exit PID
  halt

Defaults of the machine flags can be set with VMSIM_PAGE_SIZE, ` +
		`VMSIM_NUM_FRAMES, VMSIM_TLB_SIZE, VMSIM_POLICY, VMSIM_SWAP, and ` +
		`VMSIM_RECORD, in the environment or in a .env file.`,
	PreRunE: loadEnv,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTrace(cmd.Context(), cmd.OutOrStdout(), runFlags)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	addMachineFlags(flags, &runFlags.machineConfig)
	flags.StringVar(&runFlags.trace, "trace", "-",
		"Trace file to replay, - for standard input.")
	flags.BoolVar(&runFlags.preload, "preload", false,
		"Load every page of a process when it is spawned.")
	flags.BoolVar(&runFlags.logEvents, "log", false,
		"Log memory events to standard error.")
	flags.StringVar(&runFlags.tlbTrace, "tlb-trace", "",
		"Write TLB hits, refills, and evictions to this file as CSV.")
	flags.BoolVar(&runFlags.monitor, "monitor", false,
		"Serve the state of the machine over HTTP and wait for Ctrl-C "+
			"after the replay.")
	flags.IntVar(&runFlags.port, "port", 0,
		"Port of the monitor. A random port is used if 0.")
	flags.BoolVar(&runFlags.open, "open", false,
		"Open the monitor in a browser.")
}

func runTrace(ctx context.Context, out io.Writer, c runConfig) error {
	ops, err := readTrace(c.trace)
	if err != nil {
		return err
	}

	m, err := buildMachine(c.machineConfig, c.logEvents)
	if err != nil {
		return err
	}
	defer m.close()

	if c.tlbTrace != "" {
		f, err := os.Create(c.tlbTrace)
		if err != nil {
			return err
		}
		defer f.Close()

		tracing.Collect(tracing.NewTLBTracer(f), m.mmu)
	}

	opts := replay.Options{Preload: c.preload}

	var monitor *monitoring.Monitor
	if c.monitor {
		monitor = monitoring.NewMonitor().WithPortNumber(c.port)
		monitor.RegisterComponent(m.mmu)
		monitor.RegisterComponent(m.kernel)
		monitor.StartServer()

		if c.open {
			err = monitor.OpenBrowser()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
			}
		}

		bar := monitor.CreateProgressBar("trace", uint64(len(ops)))
		defer monitor.CompleteProgressBar(bar)

		opts.OnStart = func(replay.Op) { bar.IncrementInProgress(1) }
		opts.OnOp = func(replay.Op) { bar.MoveInProgressToFinished(1) }
	}

	res, err := replay.Run(m.kernel, ops, opts)
	if err != nil {
		return err
	}

	printResult(out, res)
	fmt.Fprintln(out)
	printStats(out, m.mmu.Stats())
	fmt.Fprintln(out)
	printTLB(out, m.mmu.TLBEntries())

	if monitor != nil {
		waitForInterrupt(ctx)
	}

	return nil
}

func readTrace(path string) ([]replay.Op, error) {
	if path == "-" {
		return replay.Parse(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return replay.Parse(f)
}

func printResult(out io.Writer, res replay.Result) {
	fmt.Fprintf(out, "%d operations, %d reads, %d writes, %d skipped\n",
		res.Ops, res.Reads, res.Writes, res.Skipped)

	for _, t := range res.Terminations {
		fmt.Fprintf(out, "line %d: pid %d terminated: %v\n",
			t.Line, t.PID, t.Cause)
	}
}

func waitForInterrupt(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintln(os.Stderr, "Replay finished. Press Ctrl-C to exit.")
	<-ctx.Done()
}
