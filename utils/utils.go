package utils

import "strings"

// AvgCharsPerToken is a conservative estimate for mixed content.
const AvgCharsPerToken = 2

// EstimateCharsFromTokens estimates the number of characters for a given token count
func EstimateCharsFromTokens(tokens int) int {
	return tokens * AvgCharsPerToken
}

// ClampWindowToTokenCap shrinks a 0-based half-open line window so its
// content fits within maxTokens, keeping the cursor line and balancing the
// remaining budget above and below it. Returns the window unchanged when it
// already fits or when maxTokens is zero.
func ClampWindowToTokenCap(lines []string, start, end, cursor, maxTokens int) (int, int) {
	if maxTokens <= 0 || start >= end {
		return start, end
	}
	if cursor < start {
		cursor = start
	}
	if cursor >= end {
		cursor = end - 1
	}

	maxChars := EstimateCharsFromTokens(maxTokens)

	totalChars := 0
	for i := start; i < end; i++ {
		totalChars += len(lines[i]) + 1
	}
	if totalChars <= maxChars {
		return start, end
	}

	// Keep the cursor line, then split the remaining budget evenly
	budget := maxChars - (len(lines[cursor]) + 1)
	if budget < 0 {
		return cursor, cursor + 1
	}
	halfBudget := budget / 2

	newStart := cursor
	charsAbove := 0
	for newStart > start {
		cost := len(lines[newStart-1]) + 1
		if charsAbove+cost > halfBudget {
			break
		}
		newStart--
		charsAbove += cost
	}

	budgetBelow := halfBudget + (halfBudget - charsAbove)
	newEnd := cursor + 1
	charsBelow := 0
	for newEnd < end {
		cost := len(lines[newEnd]) + 1
		if charsBelow+cost > budgetBelow {
			break
		}
		newEnd++
		charsBelow += cost
	}

	return newStart, newEnd
}

// IsNoOpReplacement checks if replacing oldLines with newLines would result in no change.
func IsNoOpReplacement(newLines, oldLines []string) bool {
	newText := strings.TrimRight(strings.Join(newLines, "\n"), " \t\n\r")
	oldText := strings.TrimRight(strings.Join(oldLines, "\n"), " \t\n\r")
	return newText == oldText
}
