package text

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nextedit/types"
)

func runDiffer(d *StreamDiffer, lines []string) []*types.Replacement {
	var out []*types.Replacement
	for _, line := range lines {
		out = append(out, d.Feed(line)...)
	}
	return append(out, d.Finish()...)
}

func TestStreamDifferSingleLineChange(t *testing.T) {
	oldLines := []string{"a", "b", "c", "d", "e"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	edits := runDiffer(d, []string{"a", "B", "c", "d", "e"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "single replaced line")
}

func TestStreamDifferEmitsBeforeStreamEnds(t *testing.T) {
	oldLines := []string{"a", "b", "c", "d", "e"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	d.Feed("a")
	d.Feed("B")
	d.Feed("c")
	edits := d.Feed("d")

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "edit determinable after two contentful matches")
}

func TestStreamDifferBaseLineOffset(t *testing.T) {
	oldLines := []string{"a", "b", "c", "d"}
	d := NewStreamDiffer(oldLines, 10, 0, DefaultConvergeParams())

	edits := runDiffer(d, []string{"a", "B", "c", "d"})

	assert.Len(t, edits, 1, "one edit")
	assert.Equal(t, 12, edits[0].StartLine, "document coordinates include the window base")
	assert.Equal(t, 12, edits[0].EndLineInc, "inclusive end")
}

func TestStreamDifferInsertion(t *testing.T) {
	oldLines := []string{"a", "b", "c", "d"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	edits := runDiffer(d, []string{"a", "X", "b", "c", "d"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 1, Lines: []string{"X"}},
	}, edits, "pure insertion uses EndLineInc == StartLine-1")
}

func TestStreamDifferImmediateConvergenceBeforeCursor(t *testing.T) {
	oldLines := []string{"x", "y", "z"}
	d := NewStreamDiffer(oldLines, 0, 2, DefaultConvergeParams())

	edits := runDiffer(d, []string{"x", "y", "Z!"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 3, EndLineInc: 3, Lines: []string{"Z!"}},
	}, edits, "echoed prefix before the cursor converges on a single match")
}

func TestStreamDifferBlankRunConvergesOnTotalMatches(t *testing.T) {
	oldLines := []string{"x", "", "", "", "", "end"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	d.Feed("NEW")
	d.Feed("")
	d.Feed("")
	d.Feed("")
	edits := d.Feed("")

	assert.Equal(t, []*types.Replacement{
		{StartLine: 1, EndLineInc: 1, Lines: []string{"NEW"}},
	}, edits, "four matches of any kind converge even without content")
}

func TestStreamDifferTrailingChange(t *testing.T) {
	oldLines := []string{"a", "b", "c"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	edits := runDiffer(d, []string{"a", "b", "C changed"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 3, EndLineInc: 3, Lines: []string{"C changed"}},
	}, edits, "leftover candidate lines replace the rest of the window")
}

func TestStreamDifferNoChanges(t *testing.T) {
	oldLines := []string{"a", "b", "c"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	edits := runDiffer(d, []string{"a", "b", "c"})

	assert.Empty(t, edits, "identical stream yields nothing")
}

func TestStreamDifferTruncatedStream(t *testing.T) {
	// Stream ends before covering the whole window: the remainder of the
	// original is treated as deleted
	oldLines := []string{"a", "b", "c", "d"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	d.Feed("a")
	edits := d.Finish()

	assert.Len(t, edits, 1, "one deletion edit")
	assert.Empty(t, edits[0].Lines, "deletes the uncovered lines")
}

func TestStreamDifferMarkFailed(t *testing.T) {
	oldLines := []string{"a", "b", "c"}
	d := NewStreamDiffer(oldLines, 0, 0, DefaultConvergeParams())

	d.Feed("a")
	d.Feed("changed")
	d.MarkFailed()
	edits := d.Finish()

	assert.Empty(t, edits, "failed differ drains without yielding")
}
