package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envFlags maps environment variables to the flags they provide defaults
// for.
var envFlags = map[string]string{
	"VMSIM_PAGE_SIZE":  "page-size",
	"VMSIM_NUM_FRAMES": "frames",
	"VMSIM_TLB_SIZE":   "tlb",
	"VMSIM_POLICY":     "policy",
	"VMSIM_SWAP":       "swap",
	"VMSIM_RECORD":     "record",
}

// machineConfig describes the machine to simulate.
type machineConfig struct {
	pageSize  uint64
	numFrames int
	tlbSize   int
	policy    string
	swap      string
	record    string
}

func addMachineFlags(flags *pflag.FlagSet, c *machineConfig) {
	flags.Uint64Var(&c.pageSize, "page-size", 128,
		"Bytes per page, a multiple of 4.")
	flags.IntVar(&c.numFrames, "frames", 32, "Number of physical frames.")
	flags.IntVar(&c.tlbSize, "tlb", 4, "Number of TLB entries.")
	flags.StringVar(&c.policy, "policy", "lru",
		"Replacement policy, fifo (refill only) or lru (demand paging).")
	flags.StringVar(&c.swap, "swap", "",
		"SQLite file to swap to. Swap stays in memory if empty.")
	flags.StringVar(&c.record, "record", "",
		"Record memory events into this SQLite database (without suffix).")
}

// loadEnv reads .env, if present, and applies the VMSIM_ variables to the
// flags that are not given on the command line.
func loadEnv(cmd *cobra.Command, _ []string) error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	return applyEnv(cmd.Flags())
}

func applyEnv(flags *pflag.FlagSet) error {
	for env, name := range envFlags {
		value, ok := os.LookupEnv(env)
		if !ok {
			continue
		}

		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}

		err := f.Value.Set(value)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", env, value, err)
		}
	}

	return nil
}
