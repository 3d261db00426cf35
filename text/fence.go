package text

import "strings"

// IsFenceLine reports whether a line is a code-fence marker: three backticks
// optionally followed by a language tag.
func IsFenceLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "```") {
		return false
	}
	tag := trimmed[3:]
	return !strings.ContainsAny(tag, " \t`")
}

// FenceStripper removes a leading and a trailing fence line from a line
// sequence. A fence seen mid-stream is held back until the next line proves
// it was not the closing fence; a held fence that turns out to be the last
// line is silently dropped.
type FenceStripper struct {
	sawFirst bool
	held     string
	hasHeld  bool
}

// Feed processes one line and returns the lines that may now be emitted.
func (f *FenceStripper) Feed(line string) []string {
	var out []string

	if !f.sawFirst {
		f.sawFirst = true
		if IsFenceLine(line) {
			return nil
		}
	}

	if f.hasHeld {
		// Another line followed, so the held fence was not closing
		out = append(out, f.held)
		f.hasHeld = false
	}

	if IsFenceLine(line) {
		f.held = line
		f.hasHeld = true
		return out
	}

	return append(out, line)
}

// Finish drops any held closing fence and flushes nothing else.
func (f *FenceStripper) Finish() []string {
	f.hasHeld = false
	return nil
}
