package cache

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestResponseToEntry(t *testing.T) {
	lastModified := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("ETag", `"v1"`)
	header.Set("Last-Modified", lastModified.Format(http.TimeFormat))
	header.Set("Expires", time.Now().Add(10*time.Minute).UTC().Format(http.TimeFormat))
	header.Set("X-Total-Count", "120")

	resp := newResponse(http.StatusOK, `[1,2,3]`, header)
	entry, err := ResponseToEntry(resp)
	if err != nil {
		t.Fatalf("ResponseToEntry() error = %v", err)
	}

	if string(entry.Body) != `[1,2,3]` {
		t.Errorf("Body = %q, want %q", entry.Body, `[1,2,3]`)
	}
	if entry.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", entry.ETag, `"v1"`)
	}
	if !entry.LastModified.Equal(lastModified) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastModified)
	}
	if ttl := entry.TTL(); ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("TTL() = %v, want ~10m", ttl)
	}
	if entry.Header.Get("X-Total-Count") != "120" {
		t.Errorf("X-Total-Count = %q, want 120", entry.Header.Get("X-Total-Count"))
	}

	// The body must still be readable by the caller.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(body) != `[1,2,3]` {
		t.Errorf("restored body = %q, want %q", body, `[1,2,3]`)
	}
}

func TestResponseToEntry_NilResponse(t *testing.T) {
	if _, err := ResponseToEntry(nil); err == nil {
		t.Error("ResponseToEntry(nil) error = nil, want error")
	}
}

func TestResponseToEntry_NoStore(t *testing.T) {
	header := http.Header{}
	header.Set("Cache-Control", "private, no-store")

	resp := newResponse(http.StatusOK, `[]`, header)
	if _, err := ResponseToEntry(resp); !errors.Is(err, ErrNotCacheable) {
		t.Errorf("ResponseToEntry() error = %v, want ErrNotCacheable", err)
	}
	if body, _ := io.ReadAll(resp.Body); string(body) != `[]` {
		t.Errorf("restored body = %q, want %q", body, `[]`)
	}
}

func TestExpiresFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  map[string]string
		wantTTL time.Duration
	}{
		{name: "no headers", wantTTL: DefaultTTL},
		{
			name:    "expires",
			header:  map[string]string{"Expires": time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)},
			wantTTL: time.Hour,
		},
		{
			name:    "expires in the past",
			header:  map[string]string{"Expires": time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)},
			wantTTL: 0,
		},
		{
			name:    "invalid expires",
			header:  map[string]string{"Expires": "0"},
			wantTTL: DefaultTTL,
		},
		{
			name: "max-age wins over expires",
			header: map[string]string{
				"Cache-Control": "public, max-age=30",
				"Expires":       time.Now().Add(time.Hour).UTC().Format(http.TimeFormat),
			},
			wantTTL: 30 * time.Second,
		},
		{
			name:    "quoted max-age",
			header:  map[string]string{"Cache-Control": `max-age="120"`},
			wantTTL: 2 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tt.header {
				header.Set(k, v)
			}

			got := time.Until(ExpiresFromHeader(header))
			if diff := got - tt.wantTTL; diff > 2*time.Second || diff < -2*time.Second {
				t.Errorf("TTL = %v, want ~%v", got, tt.wantTTL)
			}
		})
	}
}

func TestEntryToResponse(t *testing.T) {
	header := http.Header{}
	header.Set("X-Total-Count", "3")
	entry := &Entry{
		Body:       []byte(`["a","b","c"]`),
		StatusCode: http.StatusOK,
		Header:     header,
	}

	resp := EntryToResponse(entry)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Status != "200 OK" {
		t.Errorf("Status = %q, want %q", resp.Status, "200 OK")
	}
	if resp.Header.Get("X-Total-Count") != "3" {
		t.Errorf("X-Total-Count = %q, want 3", resp.Header.Get("X-Total-Count"))
	}
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", resp.Header.Get("X-Cache"))
	}
	if entry.Header.Get("X-Cache") != "" {
		t.Error("EntryToResponse modified the entry's header")
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `["a","b","c"]` {
		t.Errorf("body = %q", body)
	}
}

func TestConditionalHeaders(t *testing.T) {
	lastModified := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name                string
		entry               *Entry
		wantConditional     bool
		wantIfNoneMatch     string
		wantIfModifiedSince string
	}{
		{name: "nil entry"},
		{name: "no validators", entry: &Entry{}},
		{
			name:            "etag",
			entry:           &Entry{ETag: `"abc"`, LastModified: lastModified},
			wantConditional: true,
			wantIfNoneMatch: `"abc"`,
		},
		{
			name:                "last modified only",
			entry:               &Entry{LastModified: lastModified},
			wantConditional:     true,
			wantIfModifiedSince: "Sat, 01 Mar 2025 10:00:00 GMT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldMakeConditionalRequest(tt.entry); got != tt.wantConditional {
				t.Errorf("ShouldMakeConditionalRequest() = %v, want %v", got, tt.wantConditional)
			}

			req, _ := http.NewRequest(http.MethodGet, "http://example.com/v1/orders", nil)
			AddConditionalHeaders(req, tt.entry)
			if got := req.Header.Get("If-None-Match"); got != tt.wantIfNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantIfNoneMatch)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantIfModifiedSince {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantIfModifiedSince)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	expired := &Entry{Expires: time.Now().Add(-time.Minute)}
	if !expired.IsExpired() || expired.TTL() != 0 {
		t.Errorf("expired entry: IsExpired() = %v, TTL() = %v", expired.IsExpired(), expired.TTL())
	}

	fresh := &Entry{Expires: time.Now().Add(time.Minute)}
	if fresh.IsExpired() || fresh.TTL() <= 0 {
		t.Errorf("fresh entry: IsExpired() = %v, TTL() = %v", fresh.IsExpired(), fresh.TTL())
	}
}
