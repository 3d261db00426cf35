package engine

import (
	"context"
	"fmt"
	"sync"

	"nextedit/types"
)

// fetchScript is one scripted transport exchange: the deltas to stream and
// the result to resolve with.
type fetchScript struct {
	deltas []string
	result types.FetchResult
}

// scriptedFetcher implements types.ChatFetcher, replaying one script per
// Fetch call and recording the requested models.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts []fetchScript
	models  []string
	calls   int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req *types.ChatRequest, onDelta types.DeltaFunc) (*types.FetchResult, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.models = append(f.models, req.Model)
	f.mu.Unlock()

	if idx >= len(f.scripts) {
		return nil, fmt.Errorf("unexpected fetch call #%d", idx+1)
	}
	script := f.scripts[idx]

	total := ""
	for _, delta := range script.deltas {
		total += delta
		if !onDelta(total, delta) {
			break
		}
	}
	res := script.result
	res.Text = total
	return &res, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedFetcher) requestedModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

// fixedPromptBuilder returns a canned message list, or a canned error, and
// records the windows it was asked about.
type fixedPromptBuilder struct {
	mu      sync.Mutex
	err     error
	calls   int
	windows []types.EditWindow
}

func (b *fixedPromptBuilder) Build(req *types.Request, window types.EditWindow, format types.ResponseFormat) ([]types.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.windows = append(b.windows, window)
	if b.err != nil {
		return nil, b.err
	}
	return []types.ChatMessage{
		{Role: "system", Content: "instructions"},
		{Role: "user", Content: "excerpt"},
	}, nil
}

// trackedOutcome is one recorded diagnostics call.
type trackedOutcome struct {
	requestID string
	kind      types.ReasonKind
	edits     int
}

// channelTracker implements Tracker, delivering outcomes over a channel so
// tests can await the fire-and-forget goroutine.
type channelTracker struct {
	ch chan trackedOutcome
}

func newChannelTracker() *channelTracker {
	return &channelTracker{ch: make(chan trackedOutcome, 4)}
}

func (t *channelTracker) TrackOutcome(requestID string, kind types.ReasonKind, edits int) {
	t.ch <- trackedOutcome{requestID: requestID, kind: kind, edits: edits}
}
