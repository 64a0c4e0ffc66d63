// Package gatewaytest provides an in-process fake of the events REST backend.
package gatewaytest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/eventdesk/internal/events"
)

// Request is one request observed by the fake backend.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// URI returns the path with its query string.
func (r Request) URI() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

type override struct {
	status int
	body   string
}

// Backend serves the events REST contract from memory.
type Backend struct {
	server *httptest.Server

	mu        sync.Mutex
	events    []events.Event
	images    []events.SelectableImage
	requests  []Request
	overrides map[string]override
	gate      chan struct{}
}

// Option seeds a Backend.
type Option func(*Backend)

func WithEvents(list ...events.Event) Option {
	return func(b *Backend) { b.events = append(b.events, list...) }
}

func WithImages(list ...events.SelectableImage) Option {
	return func(b *Backend) { b.images = append(b.images, list...) }
}

// New starts a Backend and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()
	b := &Backend{overrides: make(map[string]override)}
	for _, opt := range opts {
		opt(b)
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(func() {
		b.Release()
		b.server.Close()
	})
	return b
}

// URL is the base URL of the running backend.
func (b *Backend) URL() string { return b.server.URL }

// Requests returns every request observed so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns how many requests matched method and path (query ignored).
func (b *Backend) Count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, req := range b.requests {
		if req.Method == method && req.Path == path {
			n++
		}
	}
	return n
}

// WaitForRequests blocks until at least n requests were observed.
func (b *Backend) WaitForRequests(t testing.TB, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.requests) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

// ResetRequests forgets observed requests.
func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

// Events returns the stored events in insertion order.
func (b *Backend) Events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Hold blocks every subsequent request after it is recorded until Release is
// called or the client gives up.
func (b *Backend) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate == nil {
		b.gate = make(chan struct{})
	}
}

// Release unblocks requests parked by Hold.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

// Override answers method+path with a fixed status and raw body.
func (b *Backend) Override(method, path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[method+" "+path] = override{status: status, body: body}
}

// ClearOverrides restores the default handlers.
func (b *Backend) ClearOverrides() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides = make(map[string]override)
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)
	r.Get("/events", b.listEvents)
	r.Post("/events", b.createEvent)
	r.Get("/events/images", b.listImages)
	r.Get("/events/{id}", b.getEvent)
	r.Put("/events/{id}", b.updateEvent)
	r.Delete("/events/{id}", b.deleteEvent)
	return r
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(r.Body, 1<<20))
		}

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		gate := b.gate
		ov, overridden := b.overrides[r.Method+" "+r.URL.Path]
		b.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if overridden {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(ov.status)
			_, _ = w.Write([]byte(ov.body))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) listEvents(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))
	limit, _ := strconv.Atoi(r.URL.Query().Get("max"))

	b.mu.Lock()
	matched := make([]events.Event, 0, len(b.events))
	for _, ev := range b.events {
		if search == "" || matches(ev, search) {
			matched = append(matched, ev)
		}
	}
	b.mu.Unlock()

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": matched})
}

func (b *Backend) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	idx := b.indexOf(id)
	var ev events.Event
	if idx >= 0 {
		ev = b.events[idx]
	}
	b.mu.Unlock()
	if idx < 0 {
		notFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": ev})
}

func (b *Backend) createEvent(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid data provided.")
		return
	}
	ev := events.Event{ID: uuid.NewString()}.Apply(input)
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"event": ev})
}

func (b *Backend) updateEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	input, ok := decodeInput(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid data provided.")
		return
	}
	b.mu.Lock()
	idx := b.indexOf(id)
	if idx >= 0 {
		b.events[idx] = b.events[idx].Apply(input)
	}
	b.mu.Unlock()
	if idx < 0 {
		notFound(w, id)
		return
	}
	writeMessage(w, http.StatusOK, "Event updated!")
}

func (b *Backend) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	idx := b.indexOf(id)
	if idx >= 0 {
		b.events = append(b.events[:idx], b.events[idx+1:]...)
	}
	b.mu.Unlock()
	if idx < 0 {
		notFound(w, id)
		return
	}
	writeMessage(w, http.StatusOK, "Event deleted")
}

func (b *Backend) listImages(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	images := make([]events.SelectableImage, len(b.images))
	copy(images, b.images)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (b *Backend) indexOf(id string) int {
	for i, ev := range b.events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

func matches(ev events.Event, search string) bool {
	return strings.Contains(strings.ToLower(ev.Title), search) ||
		strings.Contains(strings.ToLower(ev.Description), search) ||
		strings.Contains(strings.ToLower(ev.Location), search)
}

func decodeInput(r *http.Request) (events.EventInput, bool) {
	var envelope struct {
		Event *events.EventInput `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil || envelope.Event == nil {
		return events.EventInput{}, false
	}
	in := *envelope.Event
	for _, field := range []string{in.Title, in.Description, in.Date, in.Time, in.Image, in.Location} {
		if strings.TrimSpace(field) == "" {
			return events.EventInput{}, false
		}
	}
	return in, true
}

func notFound(w http.ResponseWriter, id string) {
	writeMessage(w, http.StatusNotFound, "For the id "+id+", no event could be found.")
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
