// =============================================================================
// MOTO SIM - REPLAY DUMP
// =============================================================================
// Prints the header, event timeline and snapshot summary of replay files and
// checks that re-encoding each file reproduces its bytes.
//
// USAGE:
//   go run ./cmd/replaydump replays/*.rpl
//   go run ./cmd/replaydump -events=false run.rpl
// =============================================================================
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"moto-sim/internal/event"
	"moto-sim/internal/replay"
)

func main() {
	showEvents := flag.Bool("events", true, "print the event timeline")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Println("usage: replaydump [-events=false] file.rpl...")
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		if err := dump(path, *showEvents); err != nil {
			log.Printf("❌ %s: %v", path, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func dump(path string, showEvents bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rp, err := replay.Decode(raw)
	if err != nil {
		return err
	}

	fmt.Printf("📼 %s\n", path)
	fmt.Printf("   level:     %s\n", rp.LevelID)
	fmt.Printf("   player:    %s\n", rp.Player)
	fmt.Printf("   rate:      %.0f snapshots/s\n", rp.SampleRate)
	if rp.Finished {
		fmt.Printf("   result:    finished in %.2fs\n", rp.FinishTime)
	} else {
		fmt.Printf("   result:    not finished\n")
	}
	fmt.Printf("   duration:  %.2fs (%d snapshots)\n", rp.Duration(), len(rp.Snapshots))

	if n := len(rp.Snapshots); n > 0 {
		first, last := rp.Snapshots[0], rp.Snapshots[n-1]
		fmt.Printf("   frame:     (%.2f, %.2f) -> (%.2f, %.2f)\n", first.FrameX, first.FrameY, last.FrameX, last.FrameY)
	}

	counts := make(map[event.Kind]int)
	for _, e := range rp.Events {
		counts[e.Kind()]++
	}
	kinds := make([]event.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	fmt.Printf("   events:    %d\n", len(rp.Events))
	for _, k := range kinds {
		fmt.Printf("     %-24s %d\n", k, counts[k])
	}

	if showEvents {
		for _, e := range rp.Events {
			fmt.Printf("     %8.2fs  %s\n", e.Time, e.Kind())
		}
	}

	again, err := replay.Encode(rp)
	if err != nil {
		return fmt.Errorf("re-encode: %w", err)
	}
	if !bytes.Equal(again, raw) {
		return fmt.Errorf("re-encoded file differs (%d bytes, original %d)", len(again), len(raw))
	}
	fmt.Println("   ✅ round trip is byte-exact")
	return nil
}
