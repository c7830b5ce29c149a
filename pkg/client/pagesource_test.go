package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"testing"

	"github.com/Sternrassler/pagestream/internal/testutil"
	"github.com/Sternrassler/pagestream/pkg/pagination"
)

func TestPageSource_Fetch(t *testing.T) {
	collection := testutil.NewMockCollection("/v1/items", 9)
	defer collection.Close()

	source := NewPageSource[string](newTestClient(t, collection.URL(), nil), "/v1/items", PageSourceConfig{})

	var reported []int
	items, err := source.Fetch(context.Background(), 4, 3, func(total int) {
		reported = append(reported, total)
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if want := []string{"4", "5", "6"}; !slices.Equal(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if !slices.Equal(reported, []int{9}) {
		t.Errorf("reported totals = %v, want [9]", reported)
	}
	if got := collection.Requests(); len(got) != 1 || got[0].Offset != 4 || got[0].Limit != 3 {
		t.Errorf("requests = %+v, want one request at offset 4, limit 3", got)
	}
}

func TestPageSource_CustomParameters(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("X-Result-Count", "2")
		w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer server.Close()

	type record struct {
		ID int `json:"id"`
	}

	filter := url.Values{"status": {"open"}}
	source := NewPageSource[record](newTestClient(t, server.URL, nil), "/v2/records", PageSourceConfig{
		Query:       filter,
		OffsetParam: "start",
		LimitParam:  "count",
		TotalHeader: "X-Result-Count",
	})

	var total int
	items, err := source.Fetch(context.Background(), 0, 2, func(n int) { total = n })
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if want := []record{{ID: 1}, {ID: 2}}; !slices.Equal(items, want) {
		t.Errorf("items = %+v, want %+v", items, want)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if query.Get("start") != "0" || query.Get("count") != "2" || query.Get("status") != "open" {
		t.Errorf("query = %v", query)
	}
	if len(filter) != 1 {
		t.Errorf("Fetch modified the configured query: %v", filter)
	}
}

func TestPageSource_Envelope(t *testing.T) {
	collection := testutil.NewMockCollection("/v1/items", 7)
	defer collection.Close()
	collection.UseEnvelope()

	source := NewPageSource[string](newTestClient(t, collection.URL(), nil), "/v1/items", PageSourceConfig{
		ItemsField: "data.items",
		TotalField: "meta.total",
	})

	var total int
	items, err := source.Fetch(context.Background(), 5, 5, func(n int) { total = n })
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if want := []string{"5", "6"}; !slices.Equal(items, want) {
		t.Errorf("items = %v, want %v", items, want)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
}

func TestPageSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  map[string]string
		body    string
		cfg     PageSourceConfig
		wantErr error
	}{
		{
			name:    "missing total header",
			status:  http.StatusOK,
			body:    `["a"]`,
			wantErr: ErrMissingTotal,
		},
		{
			name:    "invalid total header",
			status:  http.StatusOK,
			header:  map[string]string{"X-Total-Count": "lots"},
			body:    `["a"]`,
			wantErr: ErrMissingTotal,
		},
		{
			name:    "missing total field",
			status:  http.StatusOK,
			body:    `{"items":["a"]}`,
			cfg:     PageSourceConfig{ItemsField: "items", TotalField: "total"},
			wantErr: ErrMissingTotal,
		},
		{
			name:   "body is not an array",
			status: http.StatusOK,
			header: map[string]string{"X-Total-Count": "1"},
			body:   `{"items":["a"]}`,
		},
		{
			name:   "items field is not an array",
			status: http.StatusOK,
			header: map[string]string{"X-Total-Count": "1"},
			body:   `{"items":"a"}`,
			cfg:    PageSourceConfig{ItemsField: "items"},
		},
		{
			name:   "element type mismatch",
			status: http.StatusOK,
			header: map[string]string{"X-Total-Count": "1"},
			body:   `[1]`,
		},
		{
			name:   "client error",
			status: http.StatusForbidden,
			body:   `{"error":"forbidden"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			source := NewPageSource[string](newTestClient(t, server.URL, nil), "/v1/items", tt.cfg)

			reported := false
			_, err := source.Fetch(context.Background(), 0, 10, func(int) { reported = true })
			if err == nil {
				t.Fatal("Fetch() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if tt.status != http.StatusOK {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
					t.Errorf("Fetch() error = %v, want *APIError with status %d", err, tt.status)
				}
			}
			if reported {
				t.Error("a failed fetch reported a total")
			}
		})
	}
}

func TestPageSource_Sequence(t *testing.T) {
	for _, pageSize := range []int{1, 2, 4, 9, 50} {
		t.Run(fmt.Sprintf("page=%d", pageSize), func(t *testing.T) {
			collection := testutil.NewMockCollection("/v1/items", 9)
			defer collection.Close()

			source := NewPageSource[string](newTestClient(t, collection.URL(), nil), "/v1/items", PageSourceConfig{})
			seq, err := pagination.New[string](context.Background(), source, pageSize)
			if err != nil {
				t.Fatalf("pagination.New() error = %v", err)
			}

			got, err := seq.CollectOrdered(context.Background(), pagination.Config{MaxConcurrency: 4})
			if err != nil {
				t.Fatalf("CollectOrdered() error = %v", err)
			}
			if want := testutil.Digits(9); !slices.Equal(got, want) {
				t.Errorf("CollectOrdered() = %v, want %v", got, want)
			}

			wantRequests := (9 + pageSize - 1) / pageSize
			if n := collection.RequestCount(); n != wantRequests {
				t.Errorf("server saw %d requests, want %d", n, wantRequests)
			}
		})
	}
}

func TestPageSource_SequenceShrinkingCollection(t *testing.T) {
	collection := testutil.NewMockCollection("/v1/items", 9)
	defer collection.Close()
	collection.SetDrift(-1)

	source := NewPageSource[string](newTestClient(t, collection.URL(), nil), "/v1/items", PageSourceConfig{})
	seq, err := pagination.New[string](context.Background(), source, 2)
	if err != nil {
		t.Fatalf("pagination.New() error = %v", err)
	}

	got, err := seq.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	// Totals seen: 9, 8, 7, 6.
	if want := testutil.Digits(6); !slices.Equal(got, want) {
		t.Errorf("Collect() = %v, want %v", got, want)
	}
}

func TestPageSource_SequenceRetriesTransparently(t *testing.T) {
	collection := testutil.NewMockCollection("/v1/items", 9)
	defer collection.Close()
	collection.FailNext(4, http.StatusServiceUnavailable, http.StatusBadGateway)

	source := NewPageSource[string](newTestClient(t, collection.URL(), nil), "/v1/items", PageSourceConfig{})
	seq, err := pagination.New[string](context.Background(), source, 2)
	if err != nil {
		t.Fatalf("pagination.New() error = %v", err)
	}

	got, err := seq.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if want := testutil.Digits(9); !slices.Equal(got, want) {
		t.Errorf("Collect() = %v, want %v", got, want)
	}
	if n := collection.RequestCount(); n != 7 {
		t.Errorf("server saw %d requests, want 7", n)
	}
}

func TestPageSource_SequenceFetchErrorSurfaces(t *testing.T) {
	collection := testutil.NewMockCollection("/v1/items", 9)
	defer collection.Close()
	collection.FailNext(4, http.StatusNotFound)

	source := NewPageSource[string](newTestClient(t, collection.URL(), nil), "/v1/items", PageSourceConfig{})
	seq, err := pagination.New[string](context.Background(), source, 2)
	if err != nil {
		t.Fatalf("pagination.New() error = %v", err)
	}

	var got []string
	var iterErr error
	for v, err := range seq.All(context.Background()) {
		if err != nil {
			iterErr = err
			break
		}
		got = append(got, v)
	}

	var apiErr *APIError
	if !errors.As(iterErr, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("iteration error = %v, want *APIError with status 404", iterErr)
	}
	if want := testutil.Digits(4); !slices.Equal(got, want) {
		t.Errorf("elements before the error = %v, want %v", got, want)
	}
}
