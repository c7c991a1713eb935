package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/sarchlab/vmkernel/datarecording"
	"github.com/sarchlab/vmkernel/kernel"
	"github.com/sarchlab/vmkernel/mem/vm"
	"github.com/sarchlab/vmkernel/mem/vm/mmu"
	"github.com/sarchlab/vmkernel/mem/vm/swap"
	"github.com/sarchlab/vmkernel/tracing"
)

// machine is a memory manager and the kernel that drives it.
type machine struct {
	mmu      *mmu.MemoryManager
	kernel   *kernel.Kernel
	recorder datarecording.DataRecorder
	swapDB   *swap.SQLiteStore
}

func buildMachine(c machineConfig, logEvents bool) (*machine, error) {
	policy, err := mmu.ParsePolicy(c.policy)
	if err != nil {
		return nil, err
	}

	if c.pageSize == 0 || c.pageSize%4 != 0 ||
		c.numFrames <= 0 || c.tlbSize <= 0 {
		return nil, fmt.Errorf(
			"invalid machine: %d-byte pages, %d frames, %d TLB entries",
			c.pageSize, c.numFrames, c.tlbSize)
	}

	m := &machine{}

	var store vm.BackingStore = swap.NewMemStore(int(c.pageSize))
	if c.swap != "" {
		m.swapDB, err = swap.NewSQLiteStore(c.swap, int(c.pageSize))
		if err != nil {
			return nil, err
		}

		store = m.swapDB
	}

	m.mmu = mmu.MakeBuilder().
		WithPageSize(c.pageSize).
		WithNumFrames(c.numFrames).
		WithTLBCapacity(c.tlbSize).
		WithPolicy(policy).
		WithBackingStore(store).
		Build("MMU")

	m.kernel = kernel.MakeBuilder().
		WithMemoryManager(m.mmu).
		WithBackingStore(store).
		Build("Kernel")

	if logEvents {
		logger := tracing.NewMemEventLogger(log.New(os.Stderr, "", 0))
		tracing.Collect(logger, m.mmu, m.kernel)
	}

	if c.record != "" {
		m.recorder = datarecording.New(c.record)
		recorder := tracing.NewMemEventRecorder(m.recorder, "mem_event")
		tracing.Collect(recorder, m.mmu, m.kernel)
	}

	return m, nil
}

func (m *machine) close() error {
	var errs []error

	if m.recorder != nil {
		errs = append(errs, m.recorder.Close())
	}

	if m.swapDB != nil {
		errs = append(errs, m.swapDB.Close())
	}

	return errors.Join(errs...)
}

func printStats(w io.Writer, s mmu.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "translations\t%d\n", s.Translations)
	fmt.Fprintf(tw, "tlb hits\t%d\n", s.TLBHits)
	fmt.Fprintf(tw, "tlb misses\t%d\n", s.TLBMisses)
	fmt.Fprintf(tw, "hit rate\t%.3f\n", s.HitRate())
	fmt.Fprintf(tw, "faults\t%d\n", s.Faults)
	fmt.Fprintf(tw, "resolved\t%d\n", s.Resolutions)
	fmt.Fprintf(tw, "fatal\t%d\n", s.FatalFaults)
	fmt.Fprintf(tw, "page ins\t%d\n", s.PageIns)
	fmt.Fprintf(tw, "write backs\t%d\n", s.WriteBacks)
	fmt.Fprintf(tw, "frame evictions\t%d\n", s.FrameEvictions)
	fmt.Fprintf(tw, "tlb evictions\t%d\n", s.TLBEvictions)
	fmt.Fprintf(tw, "reclaims\t%d\n", s.Reclaims)

	tw.Flush()
}

func printTLB(w io.Writer, entries []vm.TranslationEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "slot\tpid\tvpn\tframe\tuse\tdirty\tro")

	for i, e := range entries {
		if !e.Valid {
			fmt.Fprintf(tw, "%d\t-\t-\t-\t-\t-\t-\n", i)
			continue
		}

		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%t\t%t\t%t\n",
			i, e.Owner, e.VirtualPage, e.PhysicalPage, e.Use, e.Dirty, e.ReadOnly)
	}

	tw.Flush()
}
