package text

import (
	"strings"

	"nextedit/types"
)

// ConvergeParams tune when the stream differ decides the candidate stream
// has caught up with the original and a pending segment can be resolved.
type ConvergeParams struct {
	// ContentMatches is the number of consecutive matching lines with
	// non-whitespace content required to converge.
	ContentMatches int
	// TotalMatches is the fallback: this many consecutive matching lines
	// of any kind (covers all-blank regions).
	TotalMatches int
	// Horizon bounds how far ahead of the current position the differ
	// searches for a realignment.
	Horizon int
}

// DefaultConvergeParams returns the production thresholds.
func DefaultConvergeParams() ConvergeParams {
	return ConvergeParams{ContentMatches: 2, TotalMatches: 4, Horizon: 40}
}

// StreamDiffer incrementally compares a cleaned candidate line stream against
// the original edit-window lines and yields line-range replacements as soon
// as they become determinable, without waiting for the full response.
//
// Candidate lines that match upcoming original lines form a tentative run;
// once the run converges the lines before it are resolved as one replaced
// segment. One-for-one segments translate directly into document
// coordinates; larger segments are re-diffed line-level to produce minimal
// replacements.
type StreamDiffer struct {
	oldLines     []string
	baseLine     int // 0-based document line of oldLines[0]
	cursorOffset int // 0-based cursor line within the window
	params       ConvergeParams

	oldIdx     int      // next original line not yet accounted for
	pending    []string // candidate lines not yet matched
	runStart   int      // original index where the tentative run begins
	run        []string
	runContent int // contentful matches within the run
	failed     bool
}

// NewStreamDiffer creates a differ for one attempt. baseLine is the 0-based
// document line of the window start; cursorOffset is the cursor's 0-based
// line offset within the window.
func NewStreamDiffer(oldLines []string, baseLine, cursorOffset int, params ConvergeParams) *StreamDiffer {
	return &StreamDiffer{
		oldLines:     oldLines,
		baseLine:     baseLine,
		cursorOffset: cursorOffset,
		params:       params,
	}
}

// MarkFailed suppresses further translation. The differ keeps accepting
// lines so already-buffered state is still drained, but nothing more is
// yielded.
func (s *StreamDiffer) MarkFailed() { s.failed = true }

// Feed processes one candidate line and returns any replacements that became
// determinable.
func (s *StreamDiffer) Feed(line string) []*types.Replacement {
	if len(s.run) > 0 {
		next := s.runStart + len(s.run)
		if next < len(s.oldLines) && s.oldLines[next] == line {
			s.extendRun(line)
			if s.converged() {
				return s.commit()
			}
			return nil
		}
		// Run broken: the tentatively matched lines were new text after all
		s.pending = append(s.pending, s.run...)
		s.run = nil
		s.runContent = 0
	}

	if j := s.findMatch(line); j >= 0 {
		s.runStart = j
		s.extendRun(line)
		if s.converged() {
			return s.commit()
		}
		return nil
	}

	s.pending = append(s.pending, line)
	return nil
}

// Finish resolves whatever remains: a trailing run counts as matched, and
// leftover candidate lines replace the rest of the original window.
func (s *StreamDiffer) Finish() []*types.Replacement {
	var out []*types.Replacement

	if len(s.run) > 0 {
		out = append(out, s.emitSegment(s.oldIdx, s.runStart, s.pending)...)
		s.oldIdx = s.runStart + len(s.run)
		s.pending = nil
		s.run = nil
		s.runContent = 0
	}

	if len(s.pending) > 0 || s.oldIdx < len(s.oldLines) {
		out = append(out, s.emitSegment(s.oldIdx, len(s.oldLines), s.pending)...)
		s.oldIdx = len(s.oldLines)
		s.pending = nil
	}

	return out
}

func (s *StreamDiffer) extendRun(line string) {
	s.run = append(s.run, line)
	if strings.TrimSpace(line) != "" {
		s.runContent++
	}
}

// converged reports whether the tentative run is long enough to trust.
// Matches that end the original window always converge. Before the cursor a
// single contentful match suffices, since the model echoes the unchanged
// prefix; at or after the cursor the configured thresholds apply.
func (s *StreamDiffer) converged() bool {
	end := s.runStart + len(s.run)
	if end >= len(s.oldLines) {
		return true
	}
	if end <= s.cursorOffset && s.runContent >= 1 {
		return true
	}
	return s.runContent >= s.params.ContentMatches || len(s.run) >= s.params.TotalMatches
}

// commit resolves the segment before the run and consumes the run itself.
func (s *StreamDiffer) commit() []*types.Replacement {
	out := s.emitSegment(s.oldIdx, s.runStart, s.pending)
	s.oldIdx = s.runStart + len(s.run)
	s.pending = nil
	s.run = nil
	s.runContent = 0
	return out
}

// findMatch searches the original lines from the current position, within
// the horizon, for an exact match of the candidate line.
func (s *StreamDiffer) findMatch(line string) int {
	limit := min(len(s.oldLines), s.oldIdx+s.params.Horizon)
	for j := s.oldIdx; j < limit; j++ {
		if s.oldLines[j] == line {
			return j
		}
	}
	return -1
}

// emitSegment translates one replaced segment into document coordinates.
func (s *StreamDiffer) emitSegment(oldFrom, oldTo int, newLines []string) []*types.Replacement {
	if s.failed {
		return nil
	}
	if oldFrom == oldTo && len(newLines) == 0 {
		return nil
	}

	// Strict one-for-one change: translate directly
	if oldTo-oldFrom == 1 && len(newLines) == 1 {
		if s.oldLines[oldFrom] == newLines[0] {
			return nil
		}
		return []*types.Replacement{{
			StartLine:  s.baseLine + oldFrom + 1,
			EndLineInc: s.baseLine + oldFrom + 1,
			Lines:      []string{newLines[0]},
		}}
	}

	// Multi-line segment: re-diff to produce minimal replacements
	var out []*types.Replacement
	for _, seg := range ComputeDiff(s.oldLines[oldFrom:oldTo], newLines) {
		out = append(out, &types.Replacement{
			StartLine:  s.baseLine + oldFrom + seg.OldStart + 1,
			EndLineInc: s.baseLine + oldFrom + seg.OldEnd,
			Lines:      append([]string(nil), newLines[seg.NewStart:seg.NewEnd]...),
		})
	}
	return out
}
