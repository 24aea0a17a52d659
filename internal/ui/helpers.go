package ui

import (
	"strings"
	"sync"
)

// ============================================================================
// String Builder Pool - reduces GC pressure from rendering
// ============================================================================

var builderPool = sync.Pool{
	New: func() interface{} {
		return &strings.Builder{}
	},
}

func getBuilder() *strings.Builder {
	b := builderPool.Get().(*strings.Builder)
	b.Reset()
	return b
}

func putBuilder(b *strings.Builder) {
	if b.Cap() < 64*1024 { // Don't pool huge builders
		builderPool.Put(b)
	}
}

// ============================================================================
// Helpers
// ============================================================================

// clamp restricts v to the range [minV, maxV]
func clamp(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// maxInt returns the larger of a and b
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// scrollWindow calculates the visible range for a scrollable list
func scrollWindow(cursor, total, height int, offset *int) (start, end int) {
	if cursor < *offset {
		*offset = cursor
	}
	if cursor >= *offset+height {
		*offset = cursor - height + 1
	}
	maxOffset := max(0, total-height)
	*offset = clamp(*offset, 0, maxOffset)

	start = *offset
	end = min(start+height, total)
	return
}
