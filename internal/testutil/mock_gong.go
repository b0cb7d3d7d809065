// Package testutil provides testing utilities for the gongsync client
// and pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/salesops/gongsync/pkg/gong"
)

// MockGong is a configurable mock Gong API server. It serves the listing
// endpoints from a scripted call set, paginated with continuation
// cursors, and the transcript endpoint from generated payloads.
type MockGong struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	// Scripted data
	Calls    []gong.Call
	PageSize int
	// NoTranscript lists call IDs the transcript endpoint omits from its
	// responses, as the API does for calls that were never transcribed.
	NoTranscript map[string]bool
	// FailTranscriptBatches contains 1-based transcript request ordinals
	// that respond 500. The client treats a 500 as fatal, so one ordinal
	// fails one batch outright. Ordinals count every request; when a test
	// provokes retries, AddFailedBatchAttempts covers a contiguous range.
	FailTranscriptBatches map[int]bool

	// Tracking
	ListRequests       int
	ExtensiveRequests  int
	TranscriptRequests int
	TranscriptBatches  [][]string
	LastListQuery      url.Values
}

// NewMockGong creates a started mock server.
func NewMockGong() *MockGong {
	mock := &MockGong{
		handlers:              make(map[string]http.HandlerFunc),
		PageSize:              100,
		NoTranscript:          make(map[string]bool),
		FailTranscriptBatches: make(map[int]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/calls", mock.dispatch("/v2/calls", mock.handleList))
	mux.HandleFunc("/v2/calls/extensive", mock.dispatch("/v2/calls/extensive", mock.handleExtensive))
	mux.HandleFunc("/v2/calls/transcript", mock.dispatch("/v2/calls/transcript", mock.handleTranscript))
	mock.server = httptest.NewServer(mux)
	return mock
}

// URL returns the mock server base URL.
func (m *MockGong) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGong) Close() {
	m.server.Close()
}

// SetHandler overrides an endpoint with a custom handler.
func (m *MockGong) SetHandler(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// AddFailedBatchAttempts marks attempts first..first+count-1 as failing,
// enough to exhaust a client retrying count times per batch.
func (m *MockGong) AddFailedBatchAttempts(first, count int) {
	for i := 0; i < count; i++ {
		m.FailTranscriptBatches[first+i] = true
	}
}

func (m *MockGong) dispatch(path string, fallback http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		custom := m.handlers[path]
		m.mu.Unlock()
		if custom != nil {
			custom(w, r)
			return
		}
		fallback(w, r)
	}
}

// page slices the scripted calls for the given cursor and returns the
// next cursor ("" on the last page).
func (m *MockGong) page(cursor string) (start, end int, next string) {
	start = 0
	if cursor != "" {
		fmt.Sscanf(cursor, "cursor-%d", &start)
	}
	end = start + m.PageSize
	if end >= len(m.Calls) {
		return start, len(m.Calls), ""
	}
	return start, end, fmt.Sprintf("cursor-%d", end)
}

func (m *MockGong) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.ListRequests++
	m.LastListQuery = r.URL.Query()
	start, end, next := m.page(r.URL.Query().Get("cursor"))
	calls := m.Calls[start:end]
	total := len(m.Calls)
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"calls": calls,
		"records": map[string]any{
			"totalRecords":    total,
			"currentPageSize": len(calls),
			"cursor":          next,
		},
	})
}

func (m *MockGong) handleExtensive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cursor string `json:"cursor"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.mu.Lock()
	m.ExtensiveRequests++
	start, end, next := m.page(body.Cursor)
	wrapped := make([]map[string]any, 0, end-start)
	for _, c := range m.Calls[start:end] {
		parties := c.Parties
		bare := c
		bare.Parties = nil
		wrapped = append(wrapped, map[string]any{
			"metaData": bare,
			"parties":  parties,
		})
	}
	total := len(m.Calls)
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"calls": wrapped,
		"records": map[string]any{
			"totalRecords":    total,
			"currentPageSize": len(wrapped),
			"cursor":          next,
		},
	})
}

func (m *MockGong) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter struct {
			CallIDs []string `json:"callIds"`
		} `json:"filter"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	m.mu.Lock()
	m.TranscriptRequests++
	ordinal := m.TranscriptRequests
	m.TranscriptBatches = append(m.TranscriptBatches, body.Filter.CallIDs)
	fail := m.FailTranscriptBatches[ordinal]
	noTranscript := make(map[string]bool, len(m.NoTranscript))
	for id := range m.NoTranscript {
		noTranscript[id] = true
	}
	m.mu.Unlock()

	if fail {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}

	transcripts := make([]gong.Transcript, 0, len(body.Filter.CallIDs))
	for _, id := range body.Filter.CallIDs {
		if noTranscript[id] {
			continue
		}
		transcripts = append(transcripts, MakeTranscript(id))
	}
	writeJSON(w, map[string]any{"callTranscripts": transcripts})
}

// DefaultTranscriptHandler serves the scripted transcript response. A
// custom handler installed via SetHandler can delegate to it for the
// requests it does not intercept.
func (m *MockGong) DefaultTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	m.handleTranscript(w, r)
}

// FetchedIDs flattens all transcript batches issued so far.
func (m *MockGong) FetchedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, batch := range m.TranscriptBatches {
		ids = append(ids, batch...)
	}
	return ids
}

// MakeCalls generates n scripted calls with sequential IDs.
func MakeCalls(n int) []gong.Call {
	calls := make([]gong.Call, 0, n)
	for i := 0; i < n; i++ {
		calls = append(calls, gong.Call{
			ID:        fmt.Sprintf("call-%04d", i),
			Title:     fmt.Sprintf("Call %d", i),
			Started:   "2024-03-05T14:30:00Z",
			Duration:  1800,
			Direction: "Inbound",
			Parties: []gong.Party{
				{SpeakerID: "spk-1", Name: "Ana Rivers", EmailAddress: "ana@example.com", Affiliation: "Internal"},
				{SpeakerID: "spk-2", Name: "Ben Okafor", EmailAddress: "ben@customer.test", Affiliation: "External"},
			},
		})
	}
	return calls
}

// MakeTranscript generates a deterministic transcript for a call ID.
func MakeTranscript(callID string) gong.Transcript {
	return gong.Transcript{
		CallID: callID,
		Monologues: []gong.Monologue{
			{
				SpeakerID: "spk-1",
				Sentences: []gong.Sentence{
					{Start: 0, End: 4000, Text: "Thanks for joining."},
				},
			},
			{
				SpeakerID: "spk-2",
				Sentences: []gong.Sentence{
					{Start: 4500, End: 9000, Text: "Happy to be here."},
				},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
