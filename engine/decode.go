package engine

import (
	"fmt"

	"nextedit/logger"
	"nextedit/parse"
	"nextedit/text"
	"nextedit/types"
)

// Unified-format sentinels, recognized on their own line.
const (
	noChangeSentinel    = "<NO_CHANGE>"
	insertStartSentinel = "<INSERT>"
	insertEndSentinel   = "</INSERT>"
	editStartSentinel   = "<EDIT>"
	editEndSentinel     = "</EDIT>"
)

// decodeStep is what one fed line produced: edits that became determinable,
// whether the stream should stop, an immediate terminal result, or a request
// to take the cursor-jump path.
type decodeStep struct {
	edits      []*types.Replacement
	stop       bool
	terminal   *types.Result
	cursorJump bool
}

// unified-format parse states
type xmlState int

const (
	xmlFirstLine xmlState = iota
	xmlInsertLine
	xmlInsertBlock
	xmlEditBody
	xmlDone
)

// streamDecoder turns decoded response lines into positioned replacements
// according to the configured wire format. The format is fixed per attempt.
type streamDecoder struct {
	format types.ResponseFormat
	opts   *types.Options
	req    *types.Request
	window types.EditWindow

	differ  *text.StreamDiffer
	fence   *text.FenceStripper
	patches *parse.PatchParser

	seenFirst bool
	lineCount int
	failed    bool

	xml         xmlState
	insertBlock []string
}

func newStreamDecoder(req *types.Request, window types.EditWindow, opts *types.Options) *streamDecoder {
	cursorOffset := req.CursorLine - window.LineStart
	d := &streamDecoder{
		format: opts.Format,
		opts:   opts,
		req:    req,
		window: window,
		differ: text.NewStreamDiffer(window.Lines(req.Doc), window.LineStart, cursorOffset, text.DefaultConvergeParams()),
	}
	switch opts.Format {
	case types.FormatCodeBlock:
		d.fence = &text.FenceStripper{}
	case types.FormatCustomDiffPatch:
		d.patches = parse.NewPatchParser(opts.NoEditSentinel)
	}
	return d
}

// sawAnyLine reports whether at least one line reached the decoder. Used to
// distinguish fetch failures before the first line from mid-stream ones.
func (d *streamDecoder) sawAnyLine() bool { return d.lineCount > 0 }

// markFailed suppresses further diff translation while still letting the
// decoder drain buffered state. Patch resolution is suppressed too: a patch
// cut off mid-hunk can be missing removed lines, so its span is untrustworthy.
func (d *streamDecoder) markFailed() {
	d.failed = true
	d.differ.MarkFailed()
}

// feed consumes one complete response line.
func (d *streamDecoder) feed(line string) decodeStep {
	d.lineCount++

	switch d.format {
	case types.FormatEditWindowOnly:
		return decodeStep{edits: d.differ.Feed(line)}

	case types.FormatCodeBlock:
		var edits []*types.Replacement
		for _, out := range d.fence.Feed(line) {
			edits = append(edits, d.differ.Feed(out)...)
		}
		return decodeStep{edits: edits}

	case types.FormatCustomDiffPatch:
		flushed := d.patches.Feed(line)
		if d.failed {
			return decodeStep{stop: d.patches.Done()}
		}
		return decodeStep{edits: d.resolvePatches(flushed), stop: d.patches.Done()}

	case types.FormatEditWindowWithIntent, types.FormatEditWindowWithIntentShort:
		if !d.seenFirst {
			d.seenFirst = true
			return d.feedIntentFirstLine(line)
		}
		return decodeStep{edits: d.differ.Feed(line)}

	case types.FormatUnifiedWithXml:
		return d.feedUnified(line)

	default:
		return decodeStep{terminal: types.Unexpected(fmt.Errorf("unknown response format %d", d.format))}
	}
}

// finish drains whatever the format held back once the stream ended.
func (d *streamDecoder) finish() decodeStep {
	// Nothing arrived at all: finishing the differ would read the whole
	// uncovered window as deleted
	if d.lineCount == 0 {
		if d.format == types.FormatEditWindowWithIntent || d.format == types.FormatEditWindowWithIntentShort {
			res := parse.EmptyIntentResult()
			logger.Debug("edit intent: %s", res.Diag)
		}
		return decodeStep{}
	}

	switch d.format {
	case types.FormatCustomDiffPatch:
		patches := d.patches.Finish()
		if d.failed {
			return decodeStep{}
		}
		return decodeStep{edits: d.resolvePatches(patches)}

	case types.FormatCodeBlock:
		var edits []*types.Replacement
		for _, out := range d.fence.Finish() {
			edits = append(edits, d.differ.Feed(out)...)
		}
		return decodeStep{edits: append(edits, d.differ.Finish()...)}

	case types.FormatUnifiedWithXml:
		return d.finishUnified()

	default:
		return decodeStep{edits: d.differ.Finish()}
	}
}

func (d *streamDecoder) feedIntentFirstLine(line string) decodeStep {
	var res parse.IntentResult
	if d.format == types.FormatEditWindowWithIntentShort {
		res = parse.ParseIntentShort(line)
	} else {
		res = parse.ParseIntentTag(line)
	}
	if res.Diag != "" {
		logger.Debug("edit intent: %s (defaulting to %s)", res.Diag, res.Intent)
	}

	if !res.Intent.Visible(d.opts.Aggressiveness) {
		return decodeStep{
			terminal: types.FilteredOut("editIntent:" + res.Intent.String()),
			stop:     true,
		}
	}

	var edits []*types.Replacement
	for _, restored := range res.Remainder {
		edits = append(edits, d.differ.Feed(restored)...)
	}
	return decodeStep{edits: edits}
}

func (d *streamDecoder) resolvePatches(patches []*parse.Patch) []*types.Replacement {
	var edits []*types.Replacement
	for _, p := range patches {
		edits = append(edits, p.Resolve())
	}
	return edits
}

func (d *streamDecoder) feedUnified(line string) decodeStep {
	switch d.xml {
	case xmlFirstLine:
		switch line {
		case noChangeSentinel:
			d.xml = xmlDone
			return decodeStep{cursorJump: true, stop: true}
		case insertStartSentinel:
			d.xml = xmlInsertLine
			return decodeStep{}
		case editStartSentinel:
			d.xml = xmlEditBody
			return decodeStep{}
		default:
			d.xml = xmlDone
			return decodeStep{
				terminal: types.Unexpected(fmt.Errorf("unexpected first response line %q", line)),
				stop:     true,
			}
		}

	case xmlInsertLine:
		// Exactly one continuation line, spliced into the cursor's line
		// at the cursor column
		d.xml = xmlInsertBlock
		return decodeStep{edits: []*types.Replacement{d.spliceAtCursor(line)}}

	case xmlInsertBlock:
		if line == insertEndSentinel {
			d.xml = xmlDone
			return decodeStep{edits: d.flushInsertBlock(), stop: true}
		}
		d.insertBlock = append(d.insertBlock, line)
		return decodeStep{}

	case xmlEditBody:
		if line == editEndSentinel {
			d.xml = xmlDone
			return decodeStep{edits: d.differ.Finish(), stop: true}
		}
		return decodeStep{edits: d.differ.Feed(line)}

	default:
		return decodeStep{stop: true}
	}
}

func (d *streamDecoder) finishUnified() decodeStep {
	switch d.xml {
	case xmlInsertBlock:
		return decodeStep{edits: d.flushInsertBlock()}
	case xmlEditBody:
		return decodeStep{edits: d.differ.Finish()}
	default:
		return decodeStep{}
	}
}

// spliceAtCursor builds the single-line edit that inserts text into the
// cursor's original line at the cursor column.
func (d *streamDecoder) spliceAtCursor(inserted string) *types.Replacement {
	lineNum := d.req.CursorLine // 0-based
	var original string
	if lineNum >= 0 && lineNum < len(d.req.Doc.Lines) {
		original = d.req.Doc.Lines[lineNum]
	}
	col := min(d.req.CursorCol, len(original))
	return &types.Replacement{
		StartLine:  lineNum + 1,
		EndLineInc: lineNum + 1,
		Lines:      []string{original[:col] + inserted + original[col:]},
	}
}

// flushInsertBlock yields the lines inserted immediately after the cursor's
// line, if any arrived.
func (d *streamDecoder) flushInsertBlock() []*types.Replacement {
	if len(d.insertBlock) == 0 {
		return nil
	}
	block := d.insertBlock
	d.insertBlock = nil
	return []*types.Replacement{{
		StartLine:  d.req.CursorLine + 2,
		EndLineInc: d.req.CursorLine + 1,
		Lines:      block,
	}}
}
