package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"nextedit/logger"
	"nextedit/types"
)

// chatRequest matches the OpenAI chat completions API format
type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []chatMessage  `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	Stream      bool           `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the non-streaming response shape
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// streamChunk is a single SSE chunk from a streaming response
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// apiError is the error envelope most OpenAI-compatible servers return
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client is a reusable OpenAI-compatible chat client that satisfies
// types.ChatFetcher. Transport failures come back as tagged FetchResults,
// not errors; the error return is reserved for local bugs.
type Client struct {
	HTTPClient *http.Client
	URL        string
	APIKey     string

	// Compress enables brotli request bodies. Large document windows
	// compress well and the encode cost at quality 1 is negligible.
	Compress bool
}

// NewClient creates a new OpenAI-compatible client
func NewClient(url, apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		URL:        url,
		APIKey:     apiKey,
	}
}

// Fetch implements types.ChatFetcher. onDelta is invoked once per SSE
// chunk with the accumulated text and the new delta; returning false
// stops the stream early and the partial text is still a success.
func (c *Client) Fetch(ctx context.Context, req *types.ChatRequest, onDelta types.DeltaFunc) (*types.FetchResult, error) {
	defer logger.Trace("openai.Fetch")()

	body, err := c.encodeBody(&chatRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL+"/v1/chat/completions", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return &types.FetchResult{Kind: types.FetchCanceled}, nil
		}
		return &types.FetchResult{Kind: types.FetchNetworkError, Err: err}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp), nil
	}

	return c.readStream(ctx, resp.Body, onDelta)
}

// readStream consumes the SSE body, forwarding each content delta.
func (c *Client) readStream(ctx context.Context, body io.Reader, onDelta types.DeltaFunc) (*types.FetchResult, error) {
	var text strings.Builder
	filtered := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Skip keep-alives and comments
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if line == "data: [DONE]" {
			break
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			logger.Debug("openai stream: failed to parse chunk: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if onDelta != nil && !onDelta(text.String(), choice.Delta.Content) {
				logger.Debug("openai stream: consumer stopped early at %d bytes", text.Len())
				return &types.FetchResult{Kind: types.FetchSuccess, Text: text.String()}, nil
			}
		}
		if choice.FinishReason == "content_filter" {
			filtered = true
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return &types.FetchResult{Kind: types.FetchCanceled}, nil
		}
		return &types.FetchResult{Kind: types.FetchNetworkError, Err: err, Text: text.String()}, nil
	}

	if filtered {
		return &types.FetchResult{
			Kind: types.FetchFiltered,
			Err:  errors.New("response truncated by content filter"),
			Text: text.String(),
		}, nil
	}
	return &types.FetchResult{Kind: types.FetchSuccess, Text: text.String()}, nil
}

// Complete sends a non-streaming chat request and returns the first
// choice's text.
func (c *Client) Complete(ctx context.Context, req *types.ChatRequest) (*types.FetchResult, error) {
	body, err := c.encodeBody(&chatRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL+"/v1/chat/completions", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return &types.FetchResult{Kind: types.FetchCanceled}, nil
		}
		return &types.FetchResult{Kind: types.FetchNetworkError, Err: err}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp), nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.FetchResult{Kind: types.FetchNetworkError, Err: err}, nil
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &types.FetchResult{Kind: types.FetchNetworkError, Err: fmt.Errorf("failed to decode response: %w", err)}, nil
	}
	if len(parsed.Choices) == 0 {
		return &types.FetchResult{Kind: types.FetchSuccess}, nil
	}
	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return &types.FetchResult{
			Kind: types.FetchFiltered,
			Err:  errors.New("response truncated by content filter"),
			Text: choice.Message.Content,
		}, nil
	}
	return &types.FetchResult{Kind: types.FetchSuccess, Text: choice.Message.Content}, nil
}

// encodeBody marshals without HTML escaping and optionally compresses
// with brotli (quality 1 for speed).
func (c *Client) encodeBody(req *chatRequest) (*bytes.Buffer, error) {
	var jsonBuf bytes.Buffer
	encoder := json.NewEncoder(&jsonBuf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if !c.Compress {
		return &jsonBuf, nil
	}

	var compressed bytes.Buffer
	w := brotli.NewWriterLevel(&compressed, 1)
	if _, err := w.Write(jsonBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return &compressed, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.Compress {
		req.Header.Set("Content-Encoding", "br")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

// classifyStatus maps an error response to a tagged fetch result.
func classifyStatus(resp *http.Response) *types.FetchResult {
	raw, _ := io.ReadAll(resp.Body)

	msg := strings.TrimSpace(string(raw))
	var envelope apiError
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	err := fmt.Errorf("request failed with status %d: %s", resp.StatusCode, msg)

	var kind types.FetchKind
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = types.FetchNotFound
	case http.StatusTooManyRequests:
		kind = types.FetchRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = types.FetchUnauthorized
	case http.StatusRequestEntityTooLarge:
		kind = types.FetchPromptTooLarge
	case http.StatusPaymentRequired:
		kind = types.FetchQuotaExceeded
	default:
		if envelope.Error.Type == "insufficient_quota" {
			kind = types.FetchQuotaExceeded
		} else if envelope.Error.Type == "content_filter" {
			kind = types.FetchFiltered
		} else {
			kind = types.FetchNetworkError
		}
	}
	return &types.FetchResult{Kind: kind, Err: err}
}

func toWireMessages(msgs []types.ChatMessage) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Predictor asks a model where the cursor should move next when no edit
// was produced at the current position. It satisfies types.CursorPredictor.
type Predictor struct {
	client *Client
	model  string
}

// NewPredictor wraps an existing client with a cursor prediction model.
func NewPredictor(client *Client, model string) *Predictor {
	return &Predictor{client: client, model: model}
}

// PredictLine returns the 0-based line the user is likely to edit next.
// A missing prediction model reports types.ErrPredictorNotFound so the
// caller can stop asking; an unusable answer reports types.ErrNoPrediction.
func (p *Predictor) PredictLine(ctx context.Context, doc *types.Document, window types.EditWindow) (int, error) {
	prompt := buildPredictionPrompt(doc, window)
	res, err := p.client.Complete(ctx, &types.ChatRequest{
		Model:       p.model,
		Messages:    []types.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		return 0, err
	}
	switch res.Kind {
	case types.FetchSuccess:
	case types.FetchNotFound:
		return 0, types.ErrPredictorNotFound
	case types.FetchCanceled:
		return 0, ctx.Err()
	default:
		return 0, res.Err
	}

	line, err := strconv.Atoi(strings.TrimSpace(res.Text))
	if err != nil {
		logger.Debug("cursor prediction: unparsable answer %q", res.Text)
		return 0, types.ErrNoPrediction
	}
	if line < 1 {
		return 0, types.ErrNoPrediction
	}
	return line - 1, nil
}

func buildPredictionPrompt(doc *types.Document, window types.EditWindow) string {
	var sb strings.Builder
	sb.WriteString("Given the file below, answer with the single line number the user will most likely edit next. Answer with only the number.\n\n")
	sb.WriteString("File: " + doc.Path + "\n")
	for i, line := range doc.Lines {
		fmt.Fprintf(&sb, "%d: %s\n", i+1, line)
	}
	fmt.Fprintf(&sb, "\nThe user is currently between lines %d and %d.\n", window.LineStart+1, window.LineEnd)
	return sb.String()
}
