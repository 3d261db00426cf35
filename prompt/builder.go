package prompt

import (
	"fmt"
	"strings"

	"nextedit/engine"
	"nextedit/types"
	"nextedit/utils"
)

const (
	editableStartMarker = "<|editable_region_start|>"
	editableEndMarker   = "<|editable_region_end|>"
	cursorMarker        = "<|user_cursor_is_here|>"
	startOfFileMarker   = "<|start_of_file|>"
)

// contextLines is how many lines outside the editable region are shown
// for orientation only.
const contextLines = 5

// Builder assembles chat messages for a next-edit request. It satisfies
// the engine's PromptBuilder contract.
type Builder struct {
	// MaxPromptTokens rejects oversized requests before they reach the
	// model. Zero means no local limit.
	MaxPromptTokens int

	// NoEditSentinel is echoed into the diff-patch instructions so the
	// model knows how to signal completion.
	NoEditSentinel string
}

// NewBuilder returns a builder with the given token ceiling.
func NewBuilder(maxPromptTokens int, noEditSentinel string) *Builder {
	return &Builder{MaxPromptTokens: maxPromptTokens, NoEditSentinel: noEditSentinel}
}

// Build renders the system and user messages for one attempt.
func (b *Builder) Build(req *types.Request, window types.EditWindow, format types.ResponseFormat) ([]types.ChatMessage, error) {
	var user strings.Builder

	user.WriteString("### User Edits:\n\n")
	user.WriteString(renderUserEdits(req.Doc.Path, req.DiffHistory))
	user.WriteString("\n\n### User Excerpt:\n\n")
	user.WriteString(renderExcerpt(req, window))
	user.WriteString("\n\n### Response:\n")

	msgs := []types.ChatMessage{
		{Role: "system", Content: instructionFor(format, b.NoEditSentinel)},
		{Role: "user", Content: user.String()},
	}

	if b.MaxPromptTokens > 0 {
		chars := 0
		for _, m := range msgs {
			chars += len(m.Content)
		}
		if chars > utils.EstimateCharsFromTokens(b.MaxPromptTokens) {
			return nil, engine.ErrPromptTooLarge
		}
	}
	return msgs, nil
}

// instructionFor states the expected wire format. The decoding side is
// strict, so the instructions spell out the exact sentinels.
func instructionFor(format types.ResponseFormat, noEditSentinel string) string {
	base := "You are a code completion assistant. Analyze the user's recent edits, then suggest the next edit they would make near the cursor in the excerpt below.\n\n"

	switch format {
	case types.FormatUnifiedWithXml:
		return base + "Respond in exactly one of three shapes:\n" +
			"- If no edit is needed, respond with the single line <NO_CHANGE>.\n" +
			"- To insert at the cursor, respond with <INSERT> followed by the inserted text on the same line, then any further inserted lines, then </INSERT> on its own line.\n" +
			"- To edit the region, respond with <EDIT> on its own line, the full replacement text of the editable region, then </EDIT> on its own line."

	case types.FormatCodeBlock:
		return base + "Respond with the full rewritten editable region inside a fenced code block."

	case types.FormatCustomDiffPatch:
		sentinel := noEditSentinel
		if sentinel == "" {
			sentinel = "<|done|>"
		}
		return base + "Respond with zero or more patches. Each patch starts with a header line `path:line` (1-indexed), followed by `-` lines quoting the exact text removed and `+` lines giving the text added. " +
			"When there is nothing more to change, respond with " + sentinel + " on its own line."

	case types.FormatEditWindowWithIntent:
		return base + "On the first line, state how necessary the edit is as <|edit_intent|>VALUE<|/edit_intent|> where VALUE is one of no_edit, low, medium, high. " +
			"Then rewrite the full editable region between the markers."

	case types.FormatEditWindowWithIntentShort:
		return base + "On the first line, answer with a single letter for how necessary the edit is: N (no edit), L (low), M (medium), or H (high). " +
			"Then rewrite the full editable region between the markers."

	default: // FormatEditWindowOnly
		return base + "Rewrite the full editable region between the markers, applying the edit. Output only the region's text, without the markers."
	}
}

// renderUserEdits formats the diff history the way editors present recent
// edits: newest last, each as a small unified diff.
func renderUserEdits(path string, history []*types.DiffEntry) string {
	var sb strings.Builder
	first := true
	for _, entry := range history {
		diff := entryToUnifiedDiff(entry)
		if diff == "" {
			continue
		}
		if !first {
			sb.WriteString("\n\n")
		}
		first = false
		fmt.Fprintf(&sb, "User edited %q:\n```diff\n%s\n```", path, diff)
	}
	return sb.String()
}

func entryToUnifiedDiff(entry *types.DiffEntry) string {
	if entry.Original == entry.Updated {
		return ""
	}
	origLines := strings.Split(entry.Original, "\n")
	updLines := strings.Split(entry.Updated, "\n")

	var sb strings.Builder
	fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", entry.StartLine, len(origLines), entry.StartLine, len(updLines))
	for _, line := range origLines {
		sb.WriteString("-" + line + "\n")
	}
	for _, line := range updLines {
		sb.WriteString("+" + line + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// renderExcerpt builds the fenced excerpt with editable-region and cursor
// markers, plus a few context lines either side.
func renderExcerpt(req *types.Request, window types.EditWindow) string {
	lines := req.Doc.Lines
	var sb strings.Builder

	sb.WriteString("```" + req.Doc.Path + "\n")

	ctxStart := max(0, window.LineStart-contextLines)
	ctxEnd := min(len(lines), window.LineEnd+contextLines)

	if ctxStart == 0 {
		sb.WriteString(startOfFileMarker + "\n")
	}
	for i := ctxStart; i < window.LineStart; i++ {
		sb.WriteString(lines[i] + "\n")
	}

	sb.WriteString(editableStartMarker + "\n")
	for i := window.LineStart; i < window.LineEnd; i++ {
		if i == req.CursorLine {
			sb.WriteString(lineWithCursor(lines[i], req.CursorCol))
		} else {
			sb.WriteString(lines[i])
		}
		sb.WriteString("\n")
	}
	sb.WriteString(editableEndMarker)

	for i := window.LineEnd; i < ctxEnd; i++ {
		sb.WriteString("\n" + lines[i])
	}
	sb.WriteString("\n```")
	return sb.String()
}

func lineWithCursor(line string, col int) string {
	if col < 0 || col > len(line) {
		return line + cursorMarker
	}
	return line[:col] + cursorMarker + line[col:]
}
