package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// splitLines splits text by newline and removes trailing empty element if present
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Segment is one contiguous difference between two line sequences, expressed
// as 0-based half-open ranges into the old and new sides. A zero-width old
// range is an insertion; a zero-width new range is a deletion.
type Segment struct {
	OldStart int
	OldEnd   int
	NewStart int
	NewEnd   int
}

// ComputeDiff runs a line-level diff between two line sequences and returns
// the changed segments in order. Delete+insert pairs are merged into a
// single segment so callers see replacements, not separate operations.
func ComputeDiff(oldLines, newLines []string) []Segment {
	oldText := joinForDiff(oldLines)
	newText := joinForDiff(newLines)
	if oldText == newText {
		return nil
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(chars1, chars2, false)
	lineDiffs := dmp.DiffCharsToLines(diffs, lineArray)

	var segments []Segment
	oldPos, newPos := 0, 0
	i := 0
	for i < len(lineDiffs) {
		d := lineDiffs[i]
		count := len(splitLines(d.Text))

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldPos += count
			newPos += count
			i++

		case diffmatchpatch.DiffDelete:
			seg := Segment{OldStart: oldPos, OldEnd: oldPos + count, NewStart: newPos, NewEnd: newPos}
			oldPos += count
			if i+1 < len(lineDiffs) && lineDiffs[i+1].Type == diffmatchpatch.DiffInsert {
				insCount := len(splitLines(lineDiffs[i+1].Text))
				seg.NewEnd = newPos + insCount
				newPos += insCount
				i++
			}
			segments = append(segments, seg)
			i++

		case diffmatchpatch.DiffInsert:
			segments = append(segments, Segment{OldStart: oldPos, OldEnd: oldPos, NewStart: newPos, NewEnd: newPos + count})
			newPos += count
			i++
		}
	}
	return segments
}

// joinForDiff joins lines with a trailing newline so the last line is a full
// diff unit like the others.
func joinForDiff(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// FindFirstChangedLine returns the 1-indexed absolute line number of the
// first difference between old and new lines, or -1 when they are equal.
// baseLineOffset is the 0-based document line of oldLines[0].
func FindFirstChangedLine(oldLines, newLines []string, baseLineOffset int) int {
	limit := min(len(oldLines), len(newLines))
	for i := 0; i < limit; i++ {
		if oldLines[i] != newLines[i] {
			return baseLineOffset + i + 1
		}
	}
	if len(oldLines) != len(newLines) {
		return baseLineOffset + limit + 1
	}
	return -1
}
