package engine

import (
	"strings"

	"nextedit/types"
	"nextedit/utils"
)

// Merge-conflict markers. The start marker must be anchored at line start.
const (
	conflictStartMarker = "<<<<<<<"
	conflictEndMarker   = ">>>>>>>"
)

// SelectWindow computes the edit window for one attempt: the configured
// number of lines above and below the cursor, clamped to the document and to
// the window token cap, then adjusted for merge-conflict blocks. The window
// is immutable once computed; a cursor-jump retry recomputes it around the
// new location.
func SelectWindow(doc *types.Document, cursorLine int, opts *types.Options) types.EditWindow {
	lineCount := doc.LineCount()
	if lineCount == 0 {
		return types.EditWindow{}
	}
	if cursorLine < 0 {
		cursorLine = 0
	}
	if cursorLine >= lineCount {
		cursorLine = lineCount - 1
	}

	start := max(0, cursorLine-opts.LinesAbove)
	end := min(lineCount, cursorLine+opts.LinesBelow+1)

	start, end = utils.ClampWindowToTokenCap(doc.Lines, start, end, cursorLine, opts.WindowTokenCap)

	if opts.MergeScanBudget > 0 {
		if cs, ce, found := findConflictBlock(doc.Lines, start, end, opts.MergeScanBudget); found {
			if opts.RestrictToMergeConflict {
				start, end = cs, ce+1
			} else {
				start = min(start, cs)
				end = max(end, ce+1)
			}
		}
	}

	return windowFromLines(doc, start, end)
}

// findConflictBlock scans for a conflict marker pair starting inside the
// tentative window, within the scan budget. The end marker may lie past the
// window end; the budget bounds the total lines inspected.
func findConflictBlock(lines []string, start, end, budget int) (int, int, bool) {
	scanned := 0
	for i := start; i < end && scanned < budget; i++ {
		scanned++
		if !strings.HasPrefix(lines[i], conflictStartMarker) {
			continue
		}
		for j := i + 1; j < len(lines) && scanned < budget; j++ {
			scanned++
			if strings.HasPrefix(lines[j], conflictEndMarker) {
				return i, j, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// windowFromLines builds the window with its absolute character offsets.
func windowFromLines(doc *types.Document, start, end int) types.EditWindow {
	start = max(0, min(start, doc.LineCount()))
	end = max(start, min(end, doc.LineCount()))

	offsetStart := doc.OffsetOfLine(start)
	length := 0
	for i := start; i < end; i++ {
		length += len(doc.Lines[i]) + 1
	}
	if length > 0 {
		length-- // no separator after the final window line
	}

	return types.EditWindow{
		OffsetStart: offsetStart,
		OffsetEnd:   offsetStart + length,
		LineStart:   start,
		LineEnd:     end,
	}
}
