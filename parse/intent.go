package parse

import (
	"strings"

	"nextedit/types"
)

// Edit-intent tag markers, expected on the first response line only.
const (
	IntentStartTag = "<|edit_intent|>"
	IntentEndTag   = "<|/edit_intent|>"
)

// IntentResult is the outcome of reading the optional leading classification
// from a response stream. Remainder holds line content to re-inject ahead of
// the rest of the stream, byte-for-byte as received. Diag records parse
// anomalies; they are diagnostics, not errors, and the intent defaults to
// High whenever one is set.
type IntentResult struct {
	Intent    types.EditIntent
	Remainder []string
	Diag      string
}

// EmptyIntentResult is the outcome for a stream that ended before producing
// a first line.
func EmptyIntentResult() IntentResult {
	return IntentResult{Intent: types.IntentHigh, Diag: "emptyResponse"}
}

// ParseIntentTag reads the tag-mode classification from the first line. When
// both markers are well-formed the value between them is parsed and the rest
// of the line (if non-blank) becomes the remainder; any malformation
// restores the entire original line.
func ParseIntentTag(firstLine string) IntentResult {
	si := strings.Index(firstLine, IntentStartTag)
	ei := strings.Index(firstLine, IntentEndTag)

	switch {
	case si >= 0 && ei >= si+len(IntentStartTag):
		value := firstLine[si+len(IntentStartTag) : ei]
		res := IntentResult{Intent: types.IntentHigh}
		if intent, ok := intentFromName(value); ok {
			res.Intent = intent
		} else {
			res.Diag = "unknownIntentValue:" + value
		}
		rest := firstLine[:si] + firstLine[ei+len(IntentEndTag):]
		if strings.TrimSpace(rest) != "" {
			res.Remainder = []string{rest}
		}
		return res

	case si >= 0:
		return IntentResult{
			Intent:    types.IntentHigh,
			Remainder: []string{firstLine},
			Diag:      "malformedTag:startWithoutEnd",
		}

	case ei >= 0:
		return IntentResult{
			Intent:    types.IntentHigh,
			Remainder: []string{firstLine},
			Diag:      "malformedTag:endWithoutStart",
		}

	default:
		return IntentResult{
			Intent:    types.IntentHigh,
			Remainder: []string{firstLine},
			Diag:      "noTagFound",
		}
	}
}

// ParseIntentShort reads the short-name classification: a single trimmed
// N|L|M|H token as the entire first line. Anything else restores the line
// verbatim and defaults to High.
func ParseIntentShort(firstLine string) IntentResult {
	switch strings.TrimSpace(firstLine) {
	case "N":
		return IntentResult{Intent: types.IntentNoEdit}
	case "L":
		return IntentResult{Intent: types.IntentLow}
	case "M":
		return IntentResult{Intent: types.IntentMedium}
	case "H":
		return IntentResult{Intent: types.IntentHigh}
	default:
		return IntentResult{
			Intent:    types.IntentHigh,
			Remainder: []string{firstLine},
			Diag:      "unknownIntentValue:" + firstLine,
		}
	}
}

func intentFromName(name string) (types.EditIntent, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "no_edit":
		return types.IntentNoEdit, true
	case "low":
		return types.IntentLow, true
	case "medium":
		return types.IntentMedium, true
	case "high":
		return types.IntentHigh, true
	default:
		return types.IntentHigh, false
	}
}
