package engine

import (
	"context"
	"errors"

	"nextedit/logger"
	"nextedit/types"
)

// JumpKind is the outcome of one cursor-jump evaluation.
type JumpKind int

const (
	// JumpGiveUp means no jump: the pipeline terminates quietly.
	JumpGiveUp JumpKind = iota
	// JumpOnly reports the target without another model call.
	JumpOnly
	// JumpEdit re-enters the pipeline at the predicted location.
	JumpEdit
)

// JumpOutcome carries the evaluation result. Line is the validated 0-based
// predicted line; Diag records why a give-up happened.
type JumpOutcome struct {
	Kind JumpKind
	Line int
	Diag string
}

// CursorJumpController decides whether, after a pipeline run surfaced
// nothing, a secondary model call should relocate the edit window to where
// the user's attention will move next. One controller lives per session;
// once the prediction endpoint reports not-found it stays disabled.
type CursorJumpController struct {
	predictor types.CursorPredictor
	disabled  bool
}

// NewCursorJumpController wraps a predictor. A nil predictor produces a
// controller that always gives up.
func NewCursorJumpController(predictor types.CursorPredictor) *CursorJumpController {
	return &CursorJumpController{predictor: predictor}
}

// Evaluate runs the Idle → Predicting → {JumpOnly, EditAtNewLocation,
// GiveUp} machine once. User typing is checked both before and after the
// prediction fetch; a prediction inside the current window or past the end
// of the document is rejected with a recorded tag.
func (c *CursorJumpController) Evaluate(
	ctx context.Context,
	req *types.Request,
	window types.EditWindow,
	retry types.RetryState,
	behavior types.CursorJumpBehavior,
) JumpOutcome {
	if c.predictor == nil || behavior == types.CursorJumpOff {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "disabled"}
	}
	if c.disabled {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "predictorUnavailable"}
	}
	if retry.IsRetry() {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "alreadyRetrying"}
	}
	if req.HasTyped() {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "userTyped:beforePrediction"}
	}

	line, err := c.predictor.PredictLine(ctx, req.Doc, window)
	switch {
	case errors.Is(err, types.ErrPredictorNotFound):
		c.disabled = true
		logger.Info("cursor prediction disabled for session: endpoint not found")
		return JumpOutcome{Kind: JumpGiveUp, Diag: "predictorNotFound"}
	case errors.Is(err, types.ErrNoPrediction):
		return JumpOutcome{Kind: JumpGiveUp, Diag: "noPrediction"}
	case err != nil:
		logger.Debug("cursor prediction failed: %v", err)
		return JumpOutcome{Kind: JumpGiveUp, Diag: "predictionError"}
	}

	if req.HasTyped() {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "userTyped:afterPrediction"}
	}
	if line >= req.Doc.LineCount() {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "exceedsDocumentLines"}
	}
	if window.Contains(line) {
		return JumpOutcome{Kind: JumpGiveUp, Diag: "withinEditWindow"}
	}

	if behavior == types.CursorJumpOnly {
		return JumpOutcome{Kind: JumpOnly, Line: line}
	}
	return JumpOutcome{Kind: JumpEdit, Line: line}
}
