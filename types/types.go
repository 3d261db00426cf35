package types

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Document is a snapshot of the file being edited. The engine never mutates
// it; every attempt works against the snapshot taken when the request began.
type Document struct {
	Path    string
	Lines   []string
	Version int
}

// LineCount returns the number of lines in the document.
func (d *Document) LineCount() int { return len(d.Lines) }

// OffsetOfLine returns the absolute character offset of the start of the
// given 0-based line, counting one character per newline separator.
// Lines past the end map to the total document length.
func (d *Document) OffsetOfLine(line int) int {
	if line < 0 || len(d.Lines) == 0 {
		return 0
	}
	offset := 0
	for i := 0; i < line && i < len(d.Lines); i++ {
		offset += len(d.Lines[i]) + 1
	}
	if line >= len(d.Lines) {
		// Past the last line: total length, no trailing separator
		return offset - 1
	}
	return offset
}

// EditWindow is the bounded document region sent to and expected back from
// the model. Line bounds are 0-based half-open and clamped to the document;
// offsets are the absolute character equivalents.
type EditWindow struct {
	OffsetStart int
	OffsetEnd   int
	LineStart   int // 0-based, inclusive
	LineEnd     int // 0-based, exclusive
}

// Contains reports whether the given 0-based line falls inside the window.
func (w EditWindow) Contains(line int) bool {
	return line >= w.LineStart && line < w.LineEnd
}

// Lines extracts the window's lines from the document.
func (w EditWindow) Lines(doc *Document) []string {
	start := min(w.LineStart, len(doc.Lines))
	end := min(w.LineEnd, len(doc.Lines))
	if start >= end {
		return nil
	}
	return doc.Lines[start:end]
}

// Replacement is a single positioned line-range replacement in absolute
// document coordinates. StartLine is 1-indexed; EndLineInc is inclusive.
// EndLineInc == StartLine-1 means a pure insertion before StartLine.
type Replacement struct {
	StartLine  int
	EndLineInc int
	Lines      []string
}

// StreamedEdit is one surfaced edit. OriginalWindow is carried on cursor-jump
// retries so a downstream cache can key on either location.
type StreamedEdit struct {
	Replacement    *Replacement
	Window         EditWindow
	OriginalWindow *EditWindow
	FromCursorJump bool
}

// CursorTarget points at where the user's attention is predicted to move.
type CursorTarget struct {
	Path string
	Line int // 1-indexed
}

// EditIntent is the model's confidence classification, ordered by confidence.
type EditIntent int

const (
	IntentNoEdit EditIntent = iota
	IntentLow
	IntentMedium
	IntentHigh
)

func (i EditIntent) String() string {
	switch i {
	case IntentNoEdit:
		return "no_edit"
	case IntentLow:
		return "low"
	case IntentMedium:
		return "medium"
	case IntentHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Aggressiveness is the user's tolerance for low-confidence suggestions.
type Aggressiveness int

const (
	AggressivenessLow Aggressiveness = iota
	AggressivenessMedium
	AggressivenessHigh
)

// Visible reports whether an edit with this intent is shown at the given
// aggressiveness level. NoEdit is never shown; High always is.
func (i EditIntent) Visible(level Aggressiveness) bool {
	switch i {
	case IntentNoEdit:
		return false
	case IntentLow:
		return level >= AggressivenessHigh
	case IntentMedium:
		return level >= AggressivenessMedium
	default:
		return true
	}
}

// ResponseFormat selects the wire format the model was prompted to answer in.
// Chosen once per attempt; never changes mid-stream.
type ResponseFormat int

const (
	FormatEditWindowOnly ResponseFormat = iota
	FormatUnifiedWithXml
	FormatCodeBlock
	FormatCustomDiffPatch
	FormatEditWindowWithIntent
	FormatEditWindowWithIntentShort
)

func (f ResponseFormat) String() string {
	switch f {
	case FormatEditWindowOnly:
		return "edit_window"
	case FormatUnifiedWithXml:
		return "unified_xml"
	case FormatCodeBlock:
		return "code_block"
	case FormatCustomDiffPatch:
		return "diff_patch"
	case FormatEditWindowWithIntent:
		return "edit_intent"
	case FormatEditWindowWithIntentShort:
		return "edit_intent_short"
	default:
		return "unknown"
	}
}

// ParseResponseFormat maps a config string to a ResponseFormat.
func ParseResponseFormat(s string) ResponseFormat {
	switch strings.ToLower(s) {
	case "unified_xml":
		return FormatUnifiedWithXml
	case "code_block":
		return FormatCodeBlock
	case "diff_patch":
		return FormatCustomDiffPatch
	case "edit_intent":
		return FormatEditWindowWithIntent
	case "edit_intent_short":
		return FormatEditWindowWithIntentShort
	default:
		return FormatEditWindowOnly
	}
}

// RetryState tracks whether the current attempt is a retry, and why.
// Retrying while already retrying is disallowed.
type RetryState int

const (
	NotRetrying RetryState = iota
	RetryingCursorJump
	RetryingExpandedWindow
)

// IsRetry reports whether the attempt is any kind of retry.
func (r RetryState) IsRetry() bool { return r != NotRetrying }

// ReasonKind is the closed set of terminal outcomes. Exactly one terminal
// outcome is produced per top-level call, after zero or more edits.
type ReasonKind int

const (
	ReasonNoSuggestions ReasonKind = iota
	ReasonFilteredOut
	ReasonPromptTooLarge
	ReasonGotCancelled
	ReasonFetchFailure
	ReasonUncategorized
	ReasonUnexpected
	ReasonNoEditsInDocument
)

func (k ReasonKind) String() string {
	switch k {
	case ReasonNoSuggestions:
		return "noSuggestions"
	case ReasonFilteredOut:
		return "filteredOut"
	case ReasonPromptTooLarge:
		return "promptTooLarge"
	case ReasonGotCancelled:
		return "gotCancelled"
	case ReasonFetchFailure:
		return "fetchFailure"
	case ReasonUncategorized:
		return "uncategorized"
	case ReasonUnexpected:
		return "unexpected"
	case ReasonNoEditsInDocument:
		return "activeDocumentHasNoEdits"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one top-level invocation.
// Phase identifies where cancellation or prompt sizing was observed; Detail
// carries the filtered-out reason; NoSuggestions may carry a CursorTarget.
type Result struct {
	Kind         ReasonKind
	Phase        string
	Detail       string
	Err          error
	CursorTarget *CursorTarget
}

// NoSuggestions returns the clean end-of-stream result.
func NoSuggestions() *Result { return &Result{Kind: ReasonNoSuggestions} }

// Cancelled returns a cancellation result tagged with the phase where it
// was observed.
func Cancelled(phase string) *Result {
	return &Result{Kind: ReasonGotCancelled, Phase: phase}
}

// FilteredOut returns a filtered-out result with the given reason.
func FilteredOut(detail string) *Result {
	return &Result{Kind: ReasonFilteredOut, Detail: detail}
}

// Unexpected returns a result for a programming or parse invariant violation.
func Unexpected(err error) *Result {
	return &Result{Kind: ReasonUnexpected, Err: err}
}

// FetchKind is the tagged outcome of a chat transport call.
type FetchKind int

const (
	FetchSuccess FetchKind = iota
	FetchCanceled
	FetchRateLimited
	FetchNetworkError
	FetchNotFound
	FetchFiltered
	FetchQuotaExceeded
	FetchUnauthorized
	FetchPromptTooLarge
)

func (k FetchKind) String() string {
	switch k {
	case FetchSuccess:
		return "success"
	case FetchCanceled:
		return "canceled"
	case FetchRateLimited:
		return "rateLimited"
	case FetchNetworkError:
		return "networkError"
	case FetchNotFound:
		return "notFound"
	case FetchFiltered:
		return "filtered"
	case FetchQuotaExceeded:
		return "quotaExceeded"
	case FetchUnauthorized:
		return "unauthorized"
	case FetchPromptTooLarge:
		return "promptTooLarge"
	default:
		return "unknown"
	}
}

// Retryable reports whether the outcome is a retryable-class transport
// failure. Filtered, rate-limited, quota and auth failures are not.
func (k FetchKind) Retryable() bool {
	return k == FetchNetworkError
}

// FetchResult is the resolved outcome of a streaming chat call. Text holds
// the full accumulated response on success (and whatever arrived otherwise).
type FetchResult struct {
	Kind FetchKind
	Text string
	Err  error
}

// ChatMessage is one entry of the prompt message list.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is what the transport sends. Prompt assembly happens outside
// the engine; the engine only fills in the model and streaming options.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// DeltaFunc receives the cumulative response text and the newest delta on
// each token. Returning false stops the stream early (not an error).
type DeltaFunc func(text, delta string) bool

// ChatFetcher is the model streaming transport contract. The engine never
// retries transport failures itself except the single NotFound fallback and
// the cursor-jump path.
type ChatFetcher interface {
	Fetch(ctx context.Context, req *ChatRequest, onDelta DeltaFunc) (*FetchResult, error)
}

// ErrPredictorNotFound permanently disables cursor prediction for the
// session once returned.
var ErrPredictorNotFound = errors.New("cursor predictor endpoint not found")

// ErrNoPrediction is the soft-failure outcome of a cursor prediction call:
// the model answered, but not with a usable line number.
var ErrNoPrediction = errors.New("no usable cursor prediction")

// CursorPredictor is the secondary "next cursor line" model contract.
// Implementations parse free text into a 0-based line number and report
// non-numeric, negative or out-of-range answers as ErrNoPrediction.
type CursorPredictor interface {
	PredictLine(ctx context.Context, doc *Document, window EditWindow) (int, error)
}

// DiffEntry is one recorded edit: the text that was replaced, the text that
// replaced it, and where the replacement landed.
type DiffEntry struct {
	// StartLine is the 1-indexed document line where Updated now begins.
	StartLine int
	Original  string
	Updated   string
}

// CursorJumpBehavior selects what happens when a prediction succeeds.
type CursorJumpBehavior int

const (
	CursorJumpOff CursorJumpBehavior = iota
	// CursorJumpOnly reports the target without another model call.
	CursorJumpOnly
	// CursorJumpOnlyWithEdit re-enters the pipeline at the predicted line.
	CursorJumpOnlyWithEdit
)

// Options is the per-call engine configuration.
type Options struct {
	LinesAbove     int
	LinesBelow     int
	WindowTokenCap int

	Format         ResponseFormat
	Aggressiveness Aggressiveness

	MergeScanBudget         int
	RestrictToMergeConflict bool

	DropInteriorWhitespace bool
	// UndoInsertFilter selects the just-typed-deletion heuristic: 0 off,
	// 1 or 2 for the two versions. Exactly one version is active.
	UndoInsertFilter int

	CursorJump CursorJumpBehavior

	DebounceMs        int
	ArtificialDelayMs int
	// Simulation disables all non-I/O suspension.
	Simulation bool

	NoEditSentinel string

	Model         string
	FallbackModel string
	MaxTokens     int
	Temperature   float64
}

// DefaultOptions returns the options used when the caller supplies nothing.
func DefaultOptions() *Options {
	return &Options{
		LinesAbove:      15,
		LinesBelow:      15,
		WindowTokenCap:  2048,
		Format:          FormatEditWindowOnly,
		Aggressiveness:  AggressivenessMedium,
		MergeScanBudget: 60,
		NoEditSentinel:  "<|done|>",
		DebounceMs:      75,
		MaxTokens:       1024,
	}
}

// Request is one top-level next-edit invocation.
type Request struct {
	ID  string
	Doc *Document

	CursorLine int // 0-based
	CursorCol  int // 0-based

	// DiffHistory holds the user's recent edits, newest last.
	DiffHistory []*DiffEntry

	// TypedSince reports whether the user has typed since the request
	// began. Nil means "no".
	TypedSince func() bool

	// LastTypedAt is when the user last typed, used to shorten the
	// artificial delay after an idle period. Zero means unknown.
	LastTypedAt time.Time
}

// HasTyped is a nil-safe TypedSince.
func (r *Request) HasTyped() bool {
	return r.TypedSince != nil && r.TypedSince()
}
