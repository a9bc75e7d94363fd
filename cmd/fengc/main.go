// fengc inspects Fen runtime artifacts: heap snapshots and telemetry
// databases produced by the memory manager.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/fen-lang/fen/gc"
	"github.com/fen-lang/fen/telemetry"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "Heap snapshot file to inspect")
	objects := flag.Bool("objects", false, "List every live object in the snapshot")
	telemetryPath := flag.String("telemetry", "", "Telemetry database to inspect")
	last := flag.Int("last", 10, "Number of recent cycles to show (used with -telemetry)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fengc [options]\n\n")
		fmt.Fprintf(os.Stderr, "Inspects Fen runtime heap snapshots and GC telemetry.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fengc -snapshot app.fimg            # Summarize a heap snapshot\n")
		fmt.Fprintf(os.Stderr, "  fengc -snapshot app.fimg -objects   # List live objects\n")
		fmt.Fprintf(os.Stderr, "  fengc -telemetry gc.db -last 25     # Show the 25 most recent cycles\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	switch {
	case *snapshotPath != "":
		if err := inspectSnapshot(*snapshotPath, *objects); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case *telemetryPath != "":
		if err := inspectTelemetry(*telemetryPath, *last); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func inspectSnapshot(path string, listObjects bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snap, err := gc.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	rt, err := gc.RestoreRuntime(snap)
	if err != nil {
		return err
	}

	heap := rt.Heap()
	fmt.Printf("Snapshot %s\n", path)
	fmt.Printf("  epoch:       %d (%d cycles)\n", rt.Epochs().Current(), rt.Collector().Cycles())
	fmt.Printf("  capacity:    %d bytes per space\n", heap.From().Capacity())
	fmt.Printf("  occupancy:   %d bytes (%.1f%%)\n", heap.From().Occupied(),
		100*float64(heap.From().Occupied())/float64(heap.From().Capacity()))
	fmt.Printf("  frames:      %d\n", rt.ShadowStack().Depth())

	objects, refSlots := 0, 0
	heap.ForEachObject(func(addr, size, refs uint32) {
		objects++
		refSlots += int(refs)
		if listObjects {
			fmt.Printf("    %#08x  %6d bytes  %3d refs\n", addr, size, refs)
		}
	})
	fmt.Printf("  objects:     %d (%d reference fields)\n", objects, refSlots)
	return nil
}

func inspectTelemetry(path string, last int) error {
	store, err := telemetry.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	total, err := store.CycleCount()
	if err != nil {
		return err
	}
	rows, err := store.RecentCycles(last)
	if err != nil {
		return err
	}

	fmt.Printf("Telemetry %s: %d cycles recorded\n", path, total)
	fmt.Printf("%-8s %-10s %-12s %-8s %-8s %-8s %-10s %s\n",
		"epoch", "live", "reclaimed", "copied", "frames", "forced", "pause", "at")
	for _, r := range rows {
		fmt.Printf("%-8d %-10d %-12d %-8d %-8d %-8v %-10v %s\n",
			r.Epoch, r.LiveBytes, r.ReclaimedBytes, r.CopiedObjects,
			r.FramesTraced, r.Forced, time.Duration(r.PauseNanos), r.At)
	}
	return nil
}
