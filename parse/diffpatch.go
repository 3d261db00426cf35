package parse

import (
	"regexp"
	"strconv"
	"strings"

	"nextedit/types"
)

// headerRe matches a patch header: a file path, a colon, and a 0-based line
// number. A trailing colon without digits does not match.
var headerRe = regexp.MustCompile(`^(.+):(\d+)$`)

// Patch is one hunk of the compact diff-patch wire format: a header line
// followed by `-` removed and `+` added lines.
type Patch struct {
	FilePath  string
	StartLine int // 0-based, from the header
	Removed   []string
	Added     []string
}

// ChangeKind distinguishes the two line change variants.
type ChangeKind int

const (
	ChangeRemove ChangeKind = iota
	ChangeAdd
)

// LineChange is one removed or added line. LineInOriginal is 0-based and
// advances per source line consumed, not per change.
type LineChange struct {
	Kind           ChangeKind
	LineInOriginal int
	Content        string
}

// Changes flattens the patch into ordered line changes.
func (p *Patch) Changes() []LineChange {
	changes := make([]LineChange, 0, len(p.Removed)+len(p.Added))
	line := p.StartLine
	for _, content := range p.Removed {
		changes = append(changes, LineChange{Kind: ChangeRemove, LineInOriginal: line, Content: content})
		line++
	}
	for _, content := range p.Added {
		changes = append(changes, LineChange{Kind: ChangeAdd, LineInOriginal: line, Content: content})
	}
	return changes
}

// Resolve converts the patch into a single-line-range replacement. The
// removed-line count determines the replaced span; the header line number is
// the start regardless of how many lines are removed or added.
func (p *Patch) Resolve() *types.Replacement {
	return &types.Replacement{
		StartLine:  p.StartLine + 1,
		EndLineInc: p.StartLine + len(p.Removed),
		Lines:      append([]string(nil), p.Added...),
	}
}

// Render writes the patch back in wire format.
func (p *Patch) Render() string {
	var b strings.Builder
	b.WriteString(p.FilePath)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(p.StartLine))
	b.WriteString("\n")
	for _, line := range p.Removed {
		b.WriteString("-")
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, line := range p.Added {
		b.WriteString("+")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderPatches renders an ordered patch list back to wire text.
func RenderPatches(patches []*Patch) string {
	var b strings.Builder
	for _, p := range patches {
		b.WriteString(p.Render())
	}
	return b.String()
}

// PatchParser is a streaming state machine over the diff-patch grammar with
// a single current-patch slot. Lines that conform to nothing are silently
// dropped; parse anomalies are recovered locally and never abort the stream.
type PatchParser struct {
	sentinel string
	cur      *Patch
	done     bool
}

// NewPatchParser creates a parser. sentinel, when non-empty, is the literal
// no-edit line that terminates the whole response early.
func NewPatchParser(sentinel string) *PatchParser {
	return &PatchParser{sentinel: sentinel}
}

// Done reports whether the no-edit sentinel ended the stream.
func (p *PatchParser) Done() bool { return p.done }

// Feed consumes one line and returns any patches flushed by it.
func (p *PatchParser) Feed(line string) []*Patch {
	if p.done {
		return nil
	}
	if p.sentinel != "" && line == p.sentinel {
		p.done = true
		return p.flush()
	}

	if p.cur == nil {
		p.tryStart(line)
		return nil
	}

	if strings.HasPrefix(line, "-") {
		p.cur.Removed = append(p.cur.Removed, line[1:])
		return nil
	}
	if strings.HasPrefix(line, "+") {
		p.cur.Added = append(p.cur.Added, line[1:])
		return nil
	}

	// Non-conforming line terminates the current patch and attempts to
	// start the next one from that line
	flushed := p.flush()
	p.tryStart(line)
	return flushed
}

// Finish flushes any in-progress patch at end of stream.
func (p *PatchParser) Finish() []*Patch {
	return p.flush()
}

func (p *PatchParser) tryStart(line string) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	num, err := strconv.Atoi(m[2])
	if err != nil {
		return
	}
	p.cur = &Patch{FilePath: m[1], StartLine: num}
}

func (p *PatchParser) flush() []*Patch {
	if p.cur == nil {
		return nil
	}
	out := []*Patch{p.cur}
	p.cur = nil
	return out
}
