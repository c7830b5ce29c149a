// Package testutil provides test helpers: a mock paged collection server and
// Redis fixtures.
package testutil

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PageRequest is one page request received by MockCollection.
type PageRequest struct {
	Offset      int
	Limit       int
	Conditional bool
}

// MockCollection serves a JSON array of strings at one path, paged with
// offset/limit query parameters and reporting the total in X-Total-Count.
type MockCollection struct {
	server *httptest.Server
	path   string

	mu          sync.Mutex
	items       []string
	drift       int
	delay       time.Duration
	headers     map[string]string
	failures    map[int][]int
	maxAge      time.Duration
	envelope    bool
	requests    []PageRequest
	inFlight    int
	maxInFlight int
}

// NewMockCollection serves the elements "0".."n-1" at path.
func NewMockCollection(path string, n int) *MockCollection {
	m := &MockCollection{
		path:     path,
		items:    Digits(n),
		headers:  make(map[string]string),
		failures: make(map[int][]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Digits returns "0", "1", ... up to n-1.
func Digits(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// URL returns the server's base URL.
func (m *MockCollection) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockCollection) Close() {
	m.server.Close()
}

// SetDrift makes the collection grow (delta > 0) or shrink (delta < 0) by
// delta elements after every served page.
func (m *MockCollection) SetDrift(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift = delta
}

// SetDelay delays every response.
func (m *MockCollection) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetHeader adds a header to every response.
func (m *MockCollection) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// EnableCaching adds ETag and Cache-Control max-age to pages and answers
// matching If-None-Match requests with 304 Not Modified.
func (m *MockCollection) EnableCaching(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAge = maxAge
}

// UseEnvelope wraps pages as {"data":{"items":[...]},"meta":{"total":N}}
// and omits X-Total-Count.
func (m *MockCollection) UseEnvelope() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelope = true
}

// FailNext answers the next requests for the page at offset with the given
// statuses, one per request.
func (m *MockCollection) FailNext(offset int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[offset] = append(m.failures[offset], statuses...)
}

// Requests returns the page requests received so far.
func (m *MockCollection) Requests() []PageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PageRequest(nil), m.requests...)
}

// RequestCount returns the number of page requests received.
func (m *MockCollection) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockCollection) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func (m *MockCollection) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != m.path {
		http.NotFound(w, r)
		return
	}

	offset, errOffset := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, errLimit := strconv.Atoi(r.URL.Query().Get("limit"))
	if errOffset != nil || errLimit != nil || offset < 0 || limit <= 0 {
		http.Error(w, `{"error":"invalid offset or limit"}`, http.StatusBadRequest)
		return
	}

	ifNoneMatch := r.Header.Get("If-None-Match")

	m.mu.Lock()
	m.requests = append(m.requests, PageRequest{Offset: offset, Limit: limit, Conditional: ifNoneMatch != ""})
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	delay := m.delay
	for k, v := range m.headers {
		w.Header().Set(k, v)
	}

	var failStatus int
	if pending := m.failures[offset]; len(pending) > 0 {
		failStatus = pending[0]
		m.failures[offset] = pending[1:]
	}

	total := len(m.items)
	page := append([]string{}, m.items[min(offset, total):min(offset+limit, total)]...)
	m.applyDrift()
	maxAge, envelope := m.maxAge, m.envelope
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failStatus != 0 {
		http.Error(w, `{"error":"injected failure"}`, failStatus)
		return
	}

	var body []byte
	var err error
	if envelope {
		body, err = json.Marshal(map[string]any{
			"data": map[string]any{"items": page},
			"meta": map[string]any{"total": total},
		})
	} else {
		body, err = json.Marshal(page)
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if maxAge > 0 {
		sum := sha1.Sum(body)
		etag := `"` + hex.EncodeToString(sum[:]) + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(maxAge/time.Second)))
		if ifNoneMatch == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// applyDrift must be called with mu held.
func (m *MockCollection) applyDrift() {
	switch {
	case m.drift < 0:
		m.items = m.items[:max(len(m.items)+m.drift, 0)]
	case m.drift > 0:
		for range m.drift {
			m.items = append(m.items, strconv.Itoa(len(m.items)))
		}
	}
}
