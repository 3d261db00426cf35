package buffer

import (
	"fmt"
	"strings"

	"github.com/neovim/go-client/nvim"

	"nextedit/logger"
	"nextedit/text"
	"nextedit/types"
)

// maxHistory caps how many recent edits are kept per buffer. Older edits
// stop being predictive.
const maxHistory = 10

// NvimBuffer mirrors one Neovim buffer: its current lines, cursor, and
// the recent edit history derived from successive syncs.
type NvimBuffer struct {
	client *nvim.Nvim

	id      nvim.Buffer
	path    string
	lines   []string
	row     int // 1-indexed
	col     int // 0-indexed
	version int

	history []*types.DiffEntry
}

// Acquire snapshots the current buffer and cursor in a single batch
// round trip.
func Acquire(client *nvim.Nvim) (*NvimBuffer, error) {
	b := &NvimBuffer{client: client}
	if err := b.Sync(); err != nil {
		return nil, err
	}
	return b, nil
}

// Sync refreshes lines and cursor from Neovim. The textual difference
// against the previous snapshot is appended to the edit history.
func (b *NvimBuffer) Sync() error {
	var (
		buf    nvim.Buffer
		raw    [][]byte
		cursor [2]int
		name   string
	)

	batch := b.client.NewBatch()
	batch.CurrentBuffer(&buf)
	batch.BufferLines(nvim.Buffer(0), 0, -1, false, &raw)
	batch.WindowCursor(0, &cursor)
	batch.BufferName(nvim.Buffer(0), &name)
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to snapshot buffer: %w", err)
	}

	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}

	sameBuffer := b.version > 0 && buf == b.id
	if sameBuffer {
		b.recordEdit(b.lines, lines)
	} else {
		b.history = nil
	}

	b.id = buf
	b.path = name
	b.lines = lines
	b.row = cursor[0]
	b.col = cursor[1]
	b.version++
	return nil
}

// recordEdit derives a structured edit from two snapshots of the same
// buffer and appends it to the history.
func (b *NvimBuffer) recordEdit(before, after []string) {
	// Most syncs see no change; skip the diff for those
	if text.FindFirstChangedLine(before, after, 0) == -1 {
		return
	}
	segments := text.ComputeDiff(before, after)
	if len(segments) == 0 {
		return
	}

	// Collapse the whole change into one entry spanning the first to the
	// last changed line. Keystroke-granularity syncs almost always touch
	// a single region anyway.
	first := segments[0]
	last := segments[len(segments)-1]

	entry := &types.DiffEntry{
		StartLine: first.OldStart + 1,
		Original:  strings.Join(before[first.OldStart:last.OldEnd], "\n"),
		Updated:   strings.Join(after[first.NewStart:last.NewEnd], "\n"),
	}
	if entry.Original == entry.Updated {
		return
	}

	b.history = append(b.history, entry)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
}

// Request builds a next-edit request from the current snapshot.
func (b *NvimBuffer) Request() *types.Request {
	historyCopy := make([]*types.DiffEntry, len(b.history))
	copy(historyCopy, b.history)
	return &types.Request{
		Doc: &types.Document{
			Path:    b.path,
			Lines:   b.lines,
			Version: b.version,
		},
		CursorLine:  b.row - 1,
		CursorCol:   b.col,
		DiffHistory: historyCopy,
	}
}

// Apply writes a replacement into the buffer. An insertion (EndLineInc ==
// StartLine-1) places new lines without removing any.
func (b *NvimBuffer) Apply(rep *types.Replacement) error {
	place := make([][]byte, len(rep.Lines))
	for i, l := range rep.Lines {
		place[i] = []byte(l)
	}

	batch := b.client.NewBatch()
	batch.SetBufferLines(b.id, rep.StartLine-1, rep.EndLineInc, false, place)
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to apply edit at line %d: %w", rep.StartLine, err)
	}

	logger.Debug("applied edit: lines %d-%d replaced with %d lines", rep.StartLine, rep.EndLineInc, len(rep.Lines))

	// Keep the local mirror coherent so a follow-up edit in the same
	// stream lands on the right lines.
	b.lines = applyToLines(b.lines, rep)
	return nil
}

// MoveCursor jumps the user's cursor to a 1-indexed line.
func (b *NvimBuffer) MoveCursor(line int) error {
	batch := b.client.NewBatch()
	batch.SetWindowCursor(0, [2]int{line, 0})
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to move cursor to line %d: %w", line, err)
	}
	b.row = line
	b.col = 0
	return nil
}

// Path returns the buffer's file path.
func (b *NvimBuffer) Path() string { return b.path }

// Lines returns the mirrored buffer content.
func (b *NvimBuffer) Lines() []string { return b.lines }

func applyToLines(lines []string, rep *types.Replacement) []string {
	start := rep.StartLine - 1
	end := rep.EndLineInc
	if start < 0 || start > len(lines) || end < start || end > len(lines) {
		return lines
	}
	out := make([]string, 0, len(lines)-(end-start)+len(rep.Lines))
	out = append(out, lines[:start]...)
	out = append(out, rep.Lines...)
	out = append(out, lines[end:]...)
	return out
}
