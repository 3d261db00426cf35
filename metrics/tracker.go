package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"nextedit/logger"
	"nextedit/types"
)

const (
	EventOutcome  = "next_edit_request_completed"
	EventShown    = "next_edit_shown"
	EventAccepted = "next_edit_accepted"
	EventDisposed = "next_edit_disposed"
)

type event struct {
	EventType string `json:"event_type"`
	RequestID string `json:"request_id"`
	Outcome   string `json:"outcome,omitempty"`
	Edits     int    `json:"edits"`
	Lifespan  *int64 `json:"lifespan,omitempty"`
	DeviceID  string `json:"device_id"`
	Editor    string `json:"editor_info"`
}

// EditMetrics describes one surfaced suggestion for shown/accepted/disposed
// events.
type EditMetrics struct {
	RequestID string
	Edits     int
	ShownAt   time.Time
}

// Tracker posts usage diagnostics to a collection endpoint. Every send is
// fire-and-forget on its own goroutine with a short timeout; nothing on
// the edit path ever waits for it.
type Tracker struct {
	url        string
	apiKey     string
	editorInfo string
	deviceID   string
	httpClient *http.Client
}

// NewTracker builds a tracker. dataDir persists the anonymous device id
// across restarts; pass "" for an ephemeral id.
func NewTracker(url, apiKey, editorInfo, dataDir string) *Tracker {
	return &Tracker{
		url:        url,
		apiKey:     apiKey,
		editorInfo: editorInfo,
		deviceID:   loadOrCreateDeviceID(dataDir),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// TrackOutcome records how a next-edit request ended. Satisfies the
// engine's Tracker interface.
func (t *Tracker) TrackOutcome(requestID string, kind types.ReasonKind, edits int) {
	t.send(&event{
		EventType: EventOutcome,
		RequestID: requestID,
		Outcome:   kind.String(),
		Edits:     edits,
		DeviceID:  t.deviceID,
		Editor:    t.editorInfo,
	})
}

func (t *Tracker) TrackShown(m *EditMetrics) {
	t.send(&event{
		EventType: EventShown,
		RequestID: m.RequestID,
		Edits:     m.Edits,
		DeviceID:  t.deviceID,
		Editor:    t.editorInfo,
	})
}

func (t *Tracker) TrackAccepted(m *EditMetrics) {
	t.send(&event{
		EventType: EventAccepted,
		RequestID: m.RequestID,
		Edits:     m.Edits,
		DeviceID:  t.deviceID,
		Editor:    t.editorInfo,
	})
}

func (t *Tracker) TrackDisposed(m *EditMetrics) {
	lifespan := time.Since(m.ShownAt).Milliseconds()
	t.send(&event{
		EventType: EventDisposed,
		RequestID: m.RequestID,
		Edits:     m.Edits,
		Lifespan:  &lifespan,
		DeviceID:  t.deviceID,
		Editor:    t.editorInfo,
	})
}

func (t *Tracker) send(ev *event) {
	if t.url == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		body, err := json.Marshal(ev)
		if err != nil {
			logger.Debug("metrics: marshal error: %v", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", t.url, bytes.NewReader(body))
		if err != nil {
			logger.Debug("metrics: create request error: %v", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			logger.Debug("metrics: send error: %v", err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			logger.Debug("metrics: server returned %d for %s", resp.StatusCode, ev.EventType)
		} else {
			logger.Debug("metrics: sent %s (id=%s)", ev.EventType, ev.RequestID)
		}
	}()
}

func loadOrCreateDeviceID(dataDir string) string {
	if dataDir == "" {
		return uuid.NewString()
	}

	idPath := filepath.Join(dataDir, "device_id")
	if data, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("metrics: could not create data dir %s: %v", dataDir, err)
		return id
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		logger.Warn("metrics: could not write device_id: %v", err)
	}
	return id
}
