package text

import "strings"

// LineDecoder turns a monotonically growing stream of text deltas into
// complete lines. CRLF and LF are both line separators; a separator split
// across two deltas is joined. The response is kept in an append-only buffer
// with a cursor recording how much has been decoded, so nothing is
// reprocessed.
type LineDecoder struct {
	buf strings.Builder
	pos int
}

// Feed appends a delta and returns any lines completed by it.
func (d *LineDecoder) Feed(delta string) []string {
	if delta == "" {
		return nil
	}
	d.buf.WriteString(delta)

	var lines []string
	s := d.buf.String()
	for {
		idx := strings.IndexByte(s[d.pos:], '\n')
		if idx < 0 {
			break
		}
		line := s[d.pos : d.pos+idx]
		line = strings.TrimSuffix(line, "\r")
		lines = append(lines, line)
		d.pos += idx + 1
	}
	return lines
}

// Finish returns the trailing line once the upstream has ended. Mirrors the
// semantics of splitting the full text on newlines: when the stream ends
// exactly on a separator the trailing line is empty.
func (d *LineDecoder) Finish() string {
	s := d.buf.String()
	return strings.TrimSuffix(s[d.pos:], "\r")
}

// Total returns the full accumulated response text.
func (d *LineDecoder) Total() string {
	return d.buf.String()
}
