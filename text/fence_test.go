package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFenceLine(t *testing.T) {
	tests := []struct {
		line     string
		expected bool
	}{
		{"```", true},
		{"```go", true},
		{"  ```python", true},
		{"``` go", false},
		{"````", false},
		{"``", false},
		{"code", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsFenceLine(tt.line), tt.line)
	}
}

func feedAll(f *FenceStripper, lines []string) []string {
	var out []string
	for _, line := range lines {
		out = append(out, f.Feed(line)...)
	}
	return append(out, f.Finish()...)
}

func TestFenceStripperRemovesBothFences(t *testing.T) {
	f := &FenceStripper{}
	out := feedAll(f, []string{"```go", "foo()", "```"})
	assert.Equal(t, []string{"foo()"}, out, "fenced single line")
}

func TestFenceStripperMidStreamFenceIsContent(t *testing.T) {
	// A fence followed by more lines was not the closing fence
	f := &FenceStripper{}
	out := feedAll(f, []string{"```md", "text", "```", "more text", "```"})
	assert.Equal(t, []string{"text", "```", "more text"}, out, "interior fence kept")
}

func TestFenceStripperNoFences(t *testing.T) {
	f := &FenceStripper{}
	out := feedAll(f, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, out, "plain lines pass through")
}

func TestFenceStripperTrailingFenceWithoutLeading(t *testing.T) {
	f := &FenceStripper{}
	out := feedAll(f, []string{"a", "```"})
	assert.Equal(t, []string{"a"}, out, "held trailing fence dropped")
}

func TestFenceStripperOnlyFence(t *testing.T) {
	f := &FenceStripper{}
	out := feedAll(f, []string{"```"})
	assert.Empty(t, out, "lone leading fence")
}
