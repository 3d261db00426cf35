package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"

	"nextedit/types"
)

// sseHandler streams the given content deltas as chat completion chunks.
func sseHandler(t *testing.T, deltas []string, finishReason string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path, "endpoint path")
		w.Header().Set("Content-Type", "text/event-stream")

		for i, delta := range deltas {
			finish := ""
			if i == len(deltas)-1 {
				finish = finishReason
			}
			chunk := fmt.Sprintf(
				`{"id":"c1","choices":[{"index":0,"delta":{"content":%q},"finish_reason":%q}]}`,
				delta, finish,
			)
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestFetchStreamsDeltas(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{"hello", " world"}, "stop"))
	defer server.Close()

	var totals, deltas []string
	client := NewClient(server.URL, "test-key")
	res, err := client.Fetch(context.Background(), &types.ChatRequest{Model: "m"}, func(text, delta string) bool {
		totals = append(totals, text)
		deltas = append(deltas, delta)
		return true
	})

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, types.FetchSuccess, res.Kind, "success")
	assert.Equal(t, "hello world", res.Text, "accumulated text")
	assert.Equal(t, []string{"hello", "hello world"}, totals, "cumulative text per chunk")
	assert.Equal(t, []string{"hello", " world"}, deltas, "raw deltas")
}

func TestFetchEarlyStop(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{"one", "two", "three"}, "stop"))
	defer server.Close()

	calls := 0
	client := NewClient(server.URL, "")
	res, err := client.Fetch(context.Background(), &types.ChatRequest{Model: "m"}, func(text, delta string) bool {
		calls++
		return false
	})

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, types.FetchSuccess, res.Kind, "early stop is still a success")
	assert.Equal(t, "one", res.Text, "partial text kept")
	assert.Equal(t, 1, calls, "stream stopped after the first delta")
}

func TestFetchContentFilter(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{"partial"}, "content_filter"))
	defer server.Close()

	client := NewClient(server.URL, "")
	res, err := client.Fetch(context.Background(), &types.ChatRequest{Model: "m"}, nil)

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, types.FetchFiltered, res.Kind, "filter surfaced")
	assert.Equal(t, "partial", res.Text, "partial text kept")
}

func TestFetchSendsAuthAndBody(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		assert.Equal(t, nil, json.Unmarshal(raw, &gotBody), "body decodes")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.Fetch(context.Background(), &types.ChatRequest{
		Model:       "test-model",
		Messages:    []types.ChatMessage{{Role: "user", Content: "<body>"}},
		MaxTokens:   256,
		Temperature: 0.5,
	}, nil)

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, "Bearer secret", gotAuth, "bearer auth")
	assert.Equal(t, "test-model", gotBody.Model, "model forwarded")
	assert.Equal(t, true, gotBody.Stream, "streaming requested")
	assert.Equal(t, 256, gotBody.MaxTokens, "token budget forwarded")
	assert.Equal(t, "<body>", gotBody.Messages[0].Content, "content not HTML-escaped")
}

func TestFetchBrotliCompression(t *testing.T) {
	var gotEncoding string
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		raw, err := io.ReadAll(brotli.NewReader(r.Body))
		assert.Equal(t, nil, err, "body decompresses")
		assert.Equal(t, nil, json.Unmarshal(raw, &gotBody), "decompressed body decodes")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	client.Compress = true
	_, err := client.Fetch(context.Background(), &types.ChatRequest{Model: "m"}, nil)

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, "br", gotEncoding, "encoding header set")
	assert.Equal(t, "m", gotBody.Model, "payload survives the round trip")
}

func TestFetchStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   types.FetchKind
	}{
		{404, `{"error":{"message":"model not found"}}`, types.FetchNotFound},
		{429, `{"error":{"message":"slow down"}}`, types.FetchRateLimited},
		{401, ``, types.FetchUnauthorized},
		{403, ``, types.FetchUnauthorized},
		{413, ``, types.FetchPromptTooLarge},
		{402, ``, types.FetchQuotaExceeded},
		{500, `{"error":{"message":"out of credits","type":"insufficient_quota"}}`, types.FetchQuotaExceeded},
		{500, `{"error":{"message":"blocked","type":"content_filter"}}`, types.FetchFiltered},
		{502, ``, types.FetchNetworkError},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			fmt.Fprint(w, tc.body)
		}))

		client := NewClient(server.URL, "")
		res, err := client.Fetch(context.Background(), &types.ChatRequest{Model: "m"}, nil)
		server.Close()

		assert.Equal(t, nil, err, fmt.Sprintf("status %d: no error", tc.status))
		assert.Equal(t, tc.kind, res.Kind, fmt.Sprintf("status %d maps to %s", tc.status, tc.kind))
		assert.Equal(t, true, res.Err != nil, fmt.Sprintf("status %d carries a cause", tc.status))
	}
}

func TestFetchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(server.URL, "")
	res, err := client.Fetch(context.Background(), &types.ChatRequest{Model: "m"}, nil)

	assert.Equal(t, nil, err, "transport failures are results, not errors")
	assert.Equal(t, types.FetchNetworkError, res.Kind, "connection refused")
}

func completionHandler(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{ID: "c1"}
		resp.Choices = append(resp.Choices, struct {
			Index        int         `json:"index"`
			Message      chatMessage `json:"message"`
			FinishReason string      `json:"finish_reason"`
		}{Message: chatMessage{Role: "assistant", Content: text}, FinishReason: "stop"})
		json.NewEncoder(w).Encode(resp)
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(completionHandler("the answer"))
	defer server.Close()

	client := NewClient(server.URL, "")
	res, err := client.Complete(context.Background(), &types.ChatRequest{Model: "m"})

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, types.FetchSuccess, res.Kind, "success")
	assert.Equal(t, "the answer", res.Text, "first choice text")
}

func predictionDoc() *types.Document {
	return &types.Document{
		Path:  "main.go",
		Lines: []string{"package main", "", "func main() {", "}"},
	}
}

func TestPredictLine(t *testing.T) {
	server := httptest.NewServer(completionHandler(" 3\n"))
	defer server.Close()

	p := NewPredictor(NewClient(server.URL, ""), "predictor-model")
	line, err := p.PredictLine(context.Background(), predictionDoc(), types.EditWindow{})

	assert.Equal(t, nil, err, "no error")
	assert.Equal(t, 2, line, "answer converted to 0-based")
}

func TestPredictLineUnparsable(t *testing.T) {
	server := httptest.NewServer(completionHandler("somewhere near the top"))
	defer server.Close()

	p := NewPredictor(NewClient(server.URL, ""), "predictor-model")
	_, err := p.PredictLine(context.Background(), predictionDoc(), types.EditWindow{})

	assert.Equal(t, types.ErrNoPrediction, err, "non-numeric answer")
}

func TestPredictLineOutOfRange(t *testing.T) {
	server := httptest.NewServer(completionHandler("0"))
	defer server.Close()

	p := NewPredictor(NewClient(server.URL, ""), "predictor-model")
	_, err := p.PredictLine(context.Background(), predictionDoc(), types.EditWindow{})

	assert.Equal(t, types.ErrNoPrediction, err, "line numbers start at 1")
}

func TestPredictLineEndpointMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewPredictor(NewClient(server.URL, ""), "missing-model")
	_, err := p.PredictLine(context.Background(), predictionDoc(), types.EditWindow{})

	assert.Equal(t, types.ErrPredictorNotFound, err, "missing endpoint is permanent")
}
