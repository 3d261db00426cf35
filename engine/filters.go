package engine

import (
	"strings"

	"nextedit/logger"
	"nextedit/text"
	"nextedit/types"
)

// Filter judges a single candidate edit. Returning keep=false drops the
// edit with the given reason. Filters see edits one at a time, so dropping
// one occurrence never discards co-yielded siblings.
type Filter func(doc *types.Document, edit *types.StreamedEdit) (keep bool, reason string)

// BuildFilters assembles the ordered filter pipeline for one request.
func BuildFilters(opts *types.Options, history []*types.DiffEntry) []Filter {
	filters := []Filter{
		dropImportOnly,
		dropEdgeWhitespaceOnly,
	}
	if opts.DropInteriorWhitespace {
		filters = append(filters, dropInteriorWhitespaceOnly)
	}
	switch opts.UndoInsertFilter {
	case 1:
		filters = append(filters, undoInsertByLine(history))
	case 2:
		filters = append(filters, undoInsertByReversal(history))
	}
	return filters
}

// ApplyFilters runs the pipeline left to right on one edit.
func ApplyFilters(filters []Filter, doc *types.Document, edit *types.StreamedEdit) (bool, string) {
	for _, f := range filters {
		if keep, reason := f(doc, edit); !keep {
			return false, reason
		}
	}
	return true, ""
}

// replacedLines extracts the document lines the edit replaces.
func replacedLines(doc *types.Document, rep *types.Replacement) []string {
	start := rep.StartLine - 1
	end := rep.EndLineInc
	if start < 0 || start > len(doc.Lines) {
		return nil
	}
	end = min(end, len(doc.Lines))
	if start >= end {
		return nil
	}
	return doc.Lines[start:end]
}

var importPrefixes = []string{
	"import ", "import\t", "import(", "import (",
	"from ", "#include", "using ", "use ", "require(", "require ",
}

func isImportLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, prefix := range importPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// dropImportOnly drops edits that only touch import/include statement lines.
func dropImportOnly(doc *types.Document, edit *types.StreamedEdit) (bool, string) {
	old := replacedLines(doc, edit.Replacement)
	if len(old) == 0 && len(edit.Replacement.Lines) == 0 {
		return true, ""
	}
	sawImport := false
	for _, line := range append(append([]string{}, old...), edit.Replacement.Lines...) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !isImportLine(line) {
			return true, ""
		}
		sawImport = true
	}
	if !sawImport {
		return true, ""
	}
	return false, "importOnly"
}

// dropEdgeWhitespaceOnly drops edits that only change blank lines or
// leading/trailing whitespace.
func dropEdgeWhitespaceOnly(doc *types.Document, edit *types.StreamedEdit) (bool, string) {
	old := replacedLines(doc, edit.Replacement)
	if trimmedEqual(old, edit.Replacement.Lines, strings.TrimSpace) {
		return false, "whitespaceOnly"
	}
	return true, ""
}

// dropInteriorWhitespaceOnly drops edits that differ from the original only
// in interior whitespace.
func dropInteriorWhitespaceOnly(doc *types.Document, edit *types.StreamedEdit) (bool, string) {
	collapse := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	old := replacedLines(doc, edit.Replacement)
	if trimmedEqual(old, edit.Replacement.Lines, collapse) {
		return false, "interiorWhitespaceOnly"
	}
	return true, ""
}

// trimmedEqual compares two line slices after normalizing each line,
// ignoring lines that normalize to empty.
func trimmedEqual(a, b []string, norm func(string) string) bool {
	na := normalizeLines(a, norm)
	nb := normalizeLines(b, norm)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	// Identical normalized content, but reject the trivially empty case
	return len(na) > 0 || linesAllBlank(a) == linesAllBlank(b)
}

func normalizeLines(lines []string, norm func(string) string) []string {
	var out []string
	for _, line := range lines {
		if n := norm(line); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func linesAllBlank(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}

// undoInsertByLine is the first just-typed-deletion heuristic: drop an edit
// that deletes a whole line the user inserted in their most recent edit.
func undoInsertByLine(history []*types.DiffEntry) Filter {
	return func(doc *types.Document, edit *types.StreamedEdit) (bool, string) {
		entry := latestEntry(history)
		if entry == nil {
			return true, ""
		}

		inserted := text.InsertedText(entry)
		if len(inserted) == 0 {
			return true, ""
		}

		kept := make(map[string]bool)
		for _, line := range edit.Replacement.Lines {
			kept[line] = true
		}
		for _, line := range replacedLines(doc, edit.Replacement) {
			if strings.TrimSpace(line) == "" || kept[line] {
				continue
			}
			for _, chunk := range inserted {
				if strings.Contains(chunk, line) {
					return false, "undoesRecentInsert"
				}
			}
		}
		return true, ""
	}
}

// undoInsertByReversal is the second heuristic: reconstruct the pre-edit
// document by reversing the most recent recorded edit, and drop a candidate
// whose application restores exactly that content.
func undoInsertByReversal(history []*types.DiffEntry) Filter {
	return func(doc *types.Document, edit *types.StreamedEdit) (bool, string) {
		entry := latestEntry(history)
		if entry == nil {
			return true, ""
		}
		pre := text.ReversePatch(doc.Lines, entry)
		applied := applyReplacement(doc.Lines, edit.Replacement)
		if linesJoined(applied) == linesJoined(pre) {
			return false, "restoresPreEditState"
		}
		return true, ""
	}
}

func latestEntry(history []*types.DiffEntry) *types.DiffEntry {
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1]
}

// applyReplacement applies a replacement to a line snapshot.
func applyReplacement(lines []string, rep *types.Replacement) []string {
	start := rep.StartLine - 1
	end := rep.EndLineInc
	if start < 0 || start > len(lines) || end < start-1 {
		logger.Debug("filters: replacement out of bounds (%d-%d of %d lines)", rep.StartLine, rep.EndLineInc, len(lines))
		return lines
	}
	end = min(end, len(lines))
	out := make([]string, 0, len(lines)-(end-start)+len(rep.Lines))
	out = append(out, lines[:start]...)
	out = append(out, rep.Lines...)
	out = append(out, lines[end:]...)
	return out
}

func linesJoined(lines []string) string {
	return strings.Join(lines, "\n")
}
