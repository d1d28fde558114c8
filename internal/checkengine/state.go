// Package checkengine implements the periodic half-message/op-message
// reconciliation scanner described in spec.md: OpIndex (§4.B), HalfScanner
// (§4.C), and CheckEngine (§4.D).
package checkengine

import (
	"sort"

	"github.com/kumarlokesh/halfcheck/internal/common"
)

// ScanState is the transient, per-tick scan state of spec.md §3: rebuilt
// from scratch every scan, never cached across ticks (spec.md §9: "any
// cache of per-half state must be treated as a pure hint").
type ScanState struct {
	// RemoveMap maps a half offset to the op offset that resolves it.
	// Duplicate inserts overwrite (last-wins, spec.md §9) — the op offset
	// only feeds DoneOpOffset, so which duplicate wins doesn't matter.
	RemoveMap map[common.Offset]common.Offset
	// DoneOpOffset collects op offsets that are safe to advance past:
	// either their half predates the scan window, or their half was
	// resolved via RemoveMap during this scan.
	DoneOpOffset []common.Offset
}

// NewScanState returns an empty ScanState ready for a single queue's scan.
func NewScanState() *ScanState {
	return &ScanState{RemoveMap: make(map[common.Offset]common.Offset)}
}

// calculateOpOffset implements spec.md §9's numeric-equality fix for the
// Open Question: sort DoneOpOffset ascending, then advance oldOffset past
// the longest prefix of numerically contiguous elements.
func calculateOpOffset(doneOpOffset []common.Offset, oldOffset common.Offset) common.Offset {
	if len(doneOpOffset) == 0 {
		return oldOffset
	}

	sorted := make([]common.Offset, len(doneOpOffset))
	copy(sorted, doneOpOffset)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	next := oldOffset
	for _, off := range sorted {
		if off == next {
			next++
		} else if off > next {
			break
		}
		// off < next: a duplicate or already-consumed offset, skip it.
	}
	return next
}
