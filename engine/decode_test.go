package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nextedit/types"
)

func decodeRequest(lines []string, cursorLine, cursorCol int) (*types.Request, types.EditWindow) {
	req := &types.Request{
		Doc:        &types.Document{Path: "test.go", Lines: lines, Version: 1},
		CursorLine: cursorLine,
		CursorCol:  cursorCol,
	}
	return req, types.EditWindow{LineStart: 0, LineEnd: len(lines)}
}

func decodeAll(d *streamDecoder, lines []string) ([]*types.Replacement, decodeStep) {
	var edits []*types.Replacement
	for _, line := range lines {
		step := d.feed(line)
		edits = append(edits, step.edits...)
		if step.stop || step.terminal != nil {
			return edits, step
		}
	}
	final := d.finish()
	return append(edits, final.edits...), final
}

func TestDecodeEditWindowOnly(t *testing.T) {
	req, window := decodeRequest([]string{"a", "b", "c"}, 0, 0)
	opts := types.DefaultOptions()
	d := newStreamDecoder(req, window, opts)

	edits, _ := decodeAll(d, []string{"a", "B", "c"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "window rewrite diffed into one edit")
}

func TestDecodeCodeBlockStripsFences(t *testing.T) {
	req, window := decodeRequest([]string{"bar()"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatCodeBlock
	d := newStreamDecoder(req, window, opts)

	edits, _ := decodeAll(d, []string{"```", "foo()", "```"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 1, EndLineInc: 1, Lines: []string{"foo()"}},
	}, edits, "fences removed before diffing")
}

func TestDecodeDiffPatch(t *testing.T) {
	req, window := decodeRequest([]string{"a", "b", "c"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatCustomDiffPatch
	d := newStreamDecoder(req, window, opts)

	edits, last := decodeAll(d, []string{"test.go:1", "-b", "+B", "<|done|>"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "patch resolved to a replacement")
	assert.True(t, last.stop, "sentinel stops the stream")
}

func TestDecodeIntentInvisibleTerminates(t *testing.T) {
	req, window := decodeRequest([]string{"a"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatEditWindowWithIntent
	opts.Aggressiveness = types.AggressivenessMedium
	d := newStreamDecoder(req, window, opts)

	step := d.feed("<|edit_intent|>low<|/edit_intent|>")

	assert.NotNil(t, step.terminal, "invisible intent terminates")
	assert.Equal(t, types.ReasonFilteredOut, step.terminal.Kind, "filtered out")
	assert.Equal(t, "editIntent:low", step.terminal.Detail, "detail names the intent")
	assert.True(t, step.stop, "stream stops")
}

func TestDecodeIntentVisibleContinues(t *testing.T) {
	req, window := decodeRequest([]string{"a", "b", "c"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatEditWindowWithIntent
	d := newStreamDecoder(req, window, opts)

	edits, _ := decodeAll(d, []string{"<|edit_intent|>high<|/edit_intent|>", "a", "B", "c"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "stream after the intent line decodes normally")
}

func TestDecodeIntentMalformedLineReinjected(t *testing.T) {
	req, window := decodeRequest([]string{"a", "b"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatEditWindowWithIntent
	d := newStreamDecoder(req, window, opts)

	// No tag at all: the first line is content and must not be lost
	edits, _ := decodeAll(d, []string{"a", "B"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "tagless first line was re-injected into the diff")
}

func TestDecodeIntentShort(t *testing.T) {
	req, window := decodeRequest([]string{"a"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatEditWindowWithIntentShort
	d := newStreamDecoder(req, window, opts)

	step := d.feed("N")

	assert.NotNil(t, step.terminal, "N is no_edit")
	assert.Equal(t, types.ReasonFilteredOut, step.terminal.Kind, "filtered out")
}

func TestDecodeUnifiedNoChange(t *testing.T) {
	req, window := decodeRequest([]string{"a"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatUnifiedWithXml
	d := newStreamDecoder(req, window, opts)

	step := d.feed("<NO_CHANGE>")

	assert.True(t, step.cursorJump, "no-change requests the cursor-jump path")
	assert.True(t, step.stop, "stream stops")
	assert.Nil(t, step.terminal, "not terminal by itself")
}

func TestDecodeUnifiedInsertSplicesCursorLine(t *testing.T) {
	req, window := decodeRequest([]string{"hello()"}, 0, 5)
	opts := types.DefaultOptions()
	opts.Format = types.FormatUnifiedWithXml
	d := newStreamDecoder(req, window, opts)

	d.feed("<INSERT>")
	step := d.feed("world")

	assert.Equal(t, []*types.Replacement{
		{StartLine: 1, EndLineInc: 1, Lines: []string{"helloworld()"}},
	}, step.edits, "inserted text spliced at the cursor column")
}

func TestDecodeUnifiedInsertBlock(t *testing.T) {
	req, window := decodeRequest([]string{"first"}, 0, 5)
	opts := types.DefaultOptions()
	opts.Format = types.FormatUnifiedWithXml
	d := newStreamDecoder(req, window, opts)

	d.feed("<INSERT>")
	d.feed("")
	d.feed("second line")
	step := d.feed("</INSERT>")

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 1, Lines: []string{"second line"}},
	}, step.edits, "block inserted after the cursor line")
	assert.True(t, step.stop, "closing tag stops the stream")
}

func TestDecodeUnifiedEditBody(t *testing.T) {
	req, window := decodeRequest([]string{"a", "b", "c"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatUnifiedWithXml
	d := newStreamDecoder(req, window, opts)

	edits, last := decodeAll(d, []string{"<EDIT>", "a", "B", "c", "</EDIT>"})

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 2, Lines: []string{"B"}},
	}, edits, "edit body diffed against the window")
	assert.True(t, last.stop, "closing tag stops the stream")
}

func TestDecodeUnifiedUnexpectedFirstLine(t *testing.T) {
	req, window := decodeRequest([]string{"a"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatUnifiedWithXml
	d := newStreamDecoder(req, window, opts)

	step := d.feed("something else")

	assert.NotNil(t, step.terminal, "unexpected first line is terminal")
	assert.Equal(t, types.ReasonUnexpected, step.terminal.Kind, "unexpected")
}

func TestDecodeUnifiedTruncatedInsertFlushesOnFinish(t *testing.T) {
	req, window := decodeRequest([]string{"first"}, 0, 5)
	opts := types.DefaultOptions()
	opts.Format = types.FormatUnifiedWithXml
	d := newStreamDecoder(req, window, opts)

	d.feed("<INSERT>")
	d.feed("tail")
	d.feed("block line")
	step := d.finish()

	assert.Equal(t, []*types.Replacement{
		{StartLine: 2, EndLineInc: 1, Lines: []string{"block line"}},
	}, step.edits, "buffered block flushed when the stream ends without the closing tag")
}

func TestDecodeEmptyStreamProposesNothing(t *testing.T) {
	formats := []types.ResponseFormat{
		types.FormatEditWindowOnly,
		types.FormatCodeBlock,
		types.FormatEditWindowWithIntent,
		types.FormatEditWindowWithIntentShort,
	}
	for _, format := range formats {
		req, window := decodeRequest([]string{"a", "b", "c"}, 0, 0)
		opts := types.DefaultOptions()
		opts.Format = format
		d := newStreamDecoder(req, window, opts)

		step := d.finish()

		assert.Equal(t, 0, len(step.edits), "no response lines means no edits for "+format.String())
	}
}

func TestDecodeDiffPatchDiscardedAfterFailure(t *testing.T) {
	req, window := decodeRequest([]string{"a", "b", "c"}, 0, 0)
	opts := types.DefaultOptions()
	opts.Format = types.FormatCustomDiffPatch
	d := newStreamDecoder(req, window, opts)

	d.feed("test.go:1")
	d.feed("-b")
	d.markFailed()

	step := d.feed("+B")
	assert.Equal(t, 0, len(step.edits), "nothing surfaces after the fetch failed")

	final := d.finish()
	assert.Equal(t, 0, len(final.edits), "the half-received patch is discarded")
}
