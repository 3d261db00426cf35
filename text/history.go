package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"nextedit/types"
)

// ReversePatch reconstructs the pre-edit lines from the post-edit lines and
// the recorded edit that produced them. The updated lines are spliced out in
// a single operation and the original lines spliced back in, so an edit that
// deleted and added at the same position reverses cleanly.
func ReversePatch(post []string, entry *types.DiffEntry) []string {
	updated := splitEntry(entry.Updated)
	original := splitEntry(entry.Original)

	idx := entry.StartLine - 1
	if idx < 0 || idx > len(post) {
		return post
	}
	end := idx + len(updated)
	if end > len(post) {
		return post
	}
	// The recorded updated text must still be present to reverse
	for i, line := range updated {
		if post[idx+i] != line {
			return post
		}
	}

	pre := make([]string, 0, len(post)-len(updated)+len(original))
	pre = append(pre, post[:idx]...)
	pre = append(pre, original...)
	pre = append(pre, post[end:]...)
	return pre
}

// InsertedText returns the substrings the user added in the given edit,
// ignoring what was deleted or kept.
func InsertedText(entry *types.DiffEntry) []string {
	if entry.Original == entry.Updated {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(entry.Original, entry.Updated, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var inserted []string
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffInsert && strings.TrimSpace(d.Text) != "" {
			inserted = append(inserted, d.Text)
		}
	}
	return inserted
}

func splitEntry(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
