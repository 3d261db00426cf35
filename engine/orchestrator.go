package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"nextedit/logger"
	"nextedit/text"
	"nextedit/types"
	"nextedit/utils"
)

// ErrPromptTooLarge is returned by prompt builders when the request cannot
// fit the model's budget.
var ErrPromptTooLarge = errors.New("prompt exceeds the model budget")

// PromptBuilder is the external prompt-assembly contract. The engine never
// constructs message text itself.
type PromptBuilder interface {
	Build(req *types.Request, window types.EditWindow, format types.ResponseFormat) ([]types.ChatMessage, error)
}

// EmitFunc receives surfaced edits strictly in the order they become
// determinable from the stream.
type EmitFunc func(*types.StreamedEdit)

// Tracker is the fire-and-forget diagnostics side channel. Implementations
// must not block; the orchestrator never awaits them on the critical path.
type Tracker interface {
	TrackOutcome(requestID string, kind types.ReasonKind, edits int)
}

// Orchestrator composes the whole next-edit pipeline into one cancellable,
// resumable production of edits: window selection, prompt assembly, the
// streaming fetch, format decoding, diff extraction, filtering, and the
// cursor-jump retry. There is exactly one logical flow per top-level
// request; all suspension happens at network reads and the delay governor.
type Orchestrator struct {
	fetcher types.ChatFetcher
	prompts PromptBuilder
	jump    *CursorJumpController
	delay   *DelayGovernor
	opts    *types.Options
	tracker Tracker
}

// NewOrchestrator wires the pipeline. predictor and tracker may be nil.
func NewOrchestrator(
	fetcher types.ChatFetcher,
	prompts PromptBuilder,
	predictor types.CursorPredictor,
	opts *types.Options,
	tracker Tracker,
) *Orchestrator {
	if opts == nil {
		opts = types.DefaultOptions()
	}
	return &Orchestrator{
		fetcher: fetcher,
		prompts: prompts,
		jump:    NewCursorJumpController(predictor),
		delay:   NewDelayGovernor(opts),
		opts:    opts,
		tracker: tracker,
	}
}

// Run produces zero or more edits through emit and exactly one terminal
// result. Cancellation is cooperative: the context is checked after every
// suspension point and the result names the phase where it was observed.
func (o *Orchestrator) Run(ctx context.Context, req *types.Request, emit EmitFunc) *types.Result {
	defer logger.Trace("orchestrator.Run")()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if emit == nil {
		emit = func(*types.StreamedEdit) {}
	}

	total := 0
	counting := func(e *types.StreamedEdit) {
		total++
		emit(e)
	}

	res := o.run(ctx, req, counting)

	logger.Info("next edit request %s: %s (%d edits)", req.ID, res.Kind, total)
	if o.tracker != nil {
		go o.tracker.TrackOutcome(req.ID, res.Kind, total)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, req *types.Request, emit EmitFunc) *types.Result {
	if len(req.DiffHistory) == 0 {
		return &types.Result{Kind: types.ReasonNoEditsInDocument}
	}
	window := SelectWindow(req.Doc, req.CursorLine, o.opts)
	return o.attempt(ctx, req, window, types.NotRetrying, nil, emit)
}

// attempt runs one full pipeline pass over one edit window.
func (o *Orchestrator) attempt(
	ctx context.Context,
	req *types.Request,
	window types.EditWindow,
	retry types.RetryState,
	originalWindow *types.EditWindow,
	emit EmitFunc,
) *types.Result {
	filters := BuildFilters(o.opts, req.DiffHistory)

	if err := o.delay.Debounce(ctx, retry); err != nil {
		return types.Cancelled("debounce")
	}

	messages, err := o.prompts.Build(req, window, o.opts.Format)
	if errors.Is(err, ErrPromptTooLarge) {
		return &types.Result{Kind: types.ReasonPromptTooLarge, Phase: "promptAssembly"}
	}
	if err != nil {
		return types.Unexpected(err)
	}
	if ctx.Err() != nil {
		return types.Cancelled("promptAssembly")
	}

	if err := o.delay.ArtificialDelay(ctx, req.LastTypedAt); err != nil {
		return types.Cancelled("artificialDelay")
	}

	models := []string{o.opts.Model}
	if o.opts.FallbackModel != "" && o.opts.FallbackModel != o.opts.Model {
		models = append(models, o.opts.FallbackModel)
	}

	var (
		fres       *types.FetchResult
		dec        *text.LineDecoder
		sd         *streamDecoder
		emitted    int
		streamTerm *types.Result
		jumpWanted bool
		stopped    bool
	)

	handleStep := func(step decodeStep) bool {
		for _, r := range step.edits {
			if utils.IsNoOpReplacement(r.Lines, replacedLines(req.Doc, r)) {
				logger.Debug("edit skipped: no-op (lines %d-%d)", r.StartLine, r.EndLineInc)
				continue
			}
			edit := &types.StreamedEdit{
				Replacement:    r,
				Window:         window,
				OriginalWindow: originalWindow,
				FromCursorJump: retry == types.RetryingCursorJump,
			}
			if keep, reason := ApplyFilters(filters, req.Doc, edit); keep {
				emitted++
				emit(edit)
			} else {
				logger.Debug("edit filtered: %s (lines %d-%d)", reason, r.StartLine, r.EndLineInc)
			}
		}
		if step.cursorJump {
			jumpWanted = true
		}
		if step.terminal != nil {
			streamTerm = step.terminal
		}
		return !step.stop && streamTerm == nil
	}

	for i, model := range models {
		// Fresh decode state per model try: a not-found failure precedes
		// any response content
		dec = &text.LineDecoder{}
		sd = newStreamDecoder(req, window, o.opts)
		stopped = false

		onDelta := func(_, delta string) bool {
			for _, line := range dec.Feed(delta) {
				if !handleStep(sd.feed(line)) {
					stopped = true
					return false
				}
			}
			return true
		}

		fres, err = o.fetcher.Fetch(ctx, &types.ChatRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   o.opts.MaxTokens,
			Temperature: o.opts.Temperature,
		}, onDelta)
		if err != nil {
			return types.Unexpected(err)
		}
		if fres.Kind == types.FetchNotFound && i+1 < len(models) {
			logger.Info("model %q not found, retrying with default model %q", model, models[i+1])
			continue
		}
		break
	}

	if ctx.Err() != nil || fres.Kind == types.FetchCanceled {
		return types.Cancelled("fetch")
	}

	if fres.Kind != types.FetchSuccess {
		// Before the first line the unified format surfaces the failure
		// directly instead of attempting to parse
		if o.opts.Format == types.FormatUnifiedWithXml && !sd.sawAnyLine() {
			return types.Unexpected(fmt.Errorf("fetch failed before first response line: %s", fres.Kind))
		}
		// Suppress further translation but let the decoder drain what was
		// already buffered
		sd.markFailed()
		if !stopped && streamTerm == nil {
			if line := dec.Finish(); dec.Total() != "" {
				handleStep(sd.feed(line))
			}
			handleStep(sd.finish())
		}
		switch fres.Kind {
		case types.FetchNetworkError:
			return &types.Result{Kind: types.ReasonFetchFailure, Err: fres.Err}
		case types.FetchPromptTooLarge:
			return &types.Result{Kind: types.ReasonPromptTooLarge, Phase: "fetch"}
		default:
			return &types.Result{Kind: types.ReasonUncategorized, Detail: fres.Kind.String(), Err: fres.Err}
		}
	}

	if !stopped && streamTerm == nil {
		if line := dec.Finish(); dec.Total() != "" {
			handleStep(sd.feed(line))
		}
		handleStep(sd.finish())
	}
	if streamTerm != nil {
		return streamTerm
	}

	if emitted > 0 && !jumpWanted {
		return types.NoSuggestions()
	}
	return o.cursorJump(ctx, req, window, retry, emit)
}

// cursorJump handles the zero-edit ending: maybe predict where the user's
// attention moves next and either report it or retry the pipeline there.
// At most one retry happens per top-level request.
func (o *Orchestrator) cursorJump(
	ctx context.Context,
	req *types.Request,
	window types.EditWindow,
	retry types.RetryState,
	emit EmitFunc,
) *types.Result {
	outcome := o.jump.Evaluate(ctx, req, window, retry, o.opts.CursorJump)
	if ctx.Err() != nil {
		return types.Cancelled("cursorPrediction")
	}

	switch outcome.Kind {
	case JumpOnly:
		return &types.Result{
			Kind:         types.ReasonNoSuggestions,
			CursorTarget: &types.CursorTarget{Path: req.Doc.Path, Line: outcome.Line + 1},
		}

	case JumpEdit:
		jumpReq := *req
		jumpReq.CursorLine = outcome.Line
		jumpReq.CursorCol = 0
		newWindow := SelectWindow(req.Doc, outcome.Line, o.opts)
		return o.attempt(ctx, &jumpReq, newWindow, types.RetryingCursorJump, &window, emit)

	default:
		if outcome.Diag != "" {
			logger.Debug("cursor jump: %s", outcome.Diag)
		}
		return types.NoSuggestions()
	}
}
