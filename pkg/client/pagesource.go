package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/Sternrassler/pagestream/pkg/pagination"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults for PageSourceConfig.
const (
	DefaultOffsetParam = "offset"
	DefaultLimitParam  = "limit"
	DefaultTotalHeader = "X-Total-Count"
)

// PageSourceConfig describes how a collection endpoint pages.
type PageSourceConfig struct {
	// Query holds extra query parameters sent with every page request.
	Query url.Values

	// OffsetParam and LimitParam name the paging query parameters.
	OffsetParam string
	LimitParam  string

	// TotalHeader names the response header carrying the total count.
	TotalHeader string

	// ItemsField is the dotted path of the element array in an enveloped
	// response body, e.g. "data.items". Empty means the body is the array.
	ItemsField string

	// TotalField is the dotted path of the total count in the body. When set
	// it is used instead of TotalHeader.
	TotalField string
}

func (cfg PageSourceConfig) withDefaults() PageSourceConfig {
	if cfg.OffsetParam == "" {
		cfg.OffsetParam = DefaultOffsetParam
	}
	if cfg.LimitParam == "" {
		cfg.LimitParam = DefaultLimitParam
	}
	if cfg.TotalHeader == "" {
		cfg.TotalHeader = DefaultTotalHeader
	}
	return cfg
}

// PageSource fetches pages of a JSON collection endpoint. It is safe for
// concurrent use.
type PageSource[T any] struct {
	client   *Client
	endpoint string
	cfg      PageSourceConfig
}

var _ pagination.PageSource[jsoniter.RawMessage] = (*PageSource[jsoniter.RawMessage])(nil)

// NewPageSource returns a page source over endpoint, decoding elements as T.
func NewPageSource[T any](c *Client, endpoint string, cfg PageSourceConfig) *PageSource[T] {
	return &PageSource[T]{
		client:   c,
		endpoint: endpoint,
		cfg:      cfg.withDefaults(),
	}
}

// Fetch requests the page [offset, offset+limit) and reports the total the
// response carries. Retries happen inside the client; a non-200 response is
// returned as *APIError.
func (s *PageSource[T]) Fetch(ctx context.Context, offset, limit int, reportTotal func(total int)) ([]T, error) {
	query := make(url.Values, len(s.cfg.Query)+2)
	for k, v := range s.cfg.Query {
		query[k] = slices.Clone(v)
	}
	query.Set(s.cfg.OffsetParam, strconv.Itoa(offset))
	query.Set(s.cfg.LimitParam, strconv.Itoa(limit))

	resp, err := s.client.Get(ctx, s.endpoint, query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	items, err := s.decodeItems(body)
	if err != nil {
		return nil, err
	}
	total, err := s.total(resp.Header, body)
	if err != nil {
		return nil, err
	}

	reportTotal(total)
	return items, nil
}

func (s *PageSource[T]) decodeItems(body []byte) ([]T, error) {
	var items []T
	if s.cfg.ItemsField == "" {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		return items, nil
	}

	field := json.Get(body, fieldPath(s.cfg.ItemsField)...)
	if field.ValueType() != jsoniter.ArrayValue {
		return nil, fmt.Errorf("decode page: field %q is not an array", s.cfg.ItemsField)
	}
	if err := json.UnmarshalFromString(field.ToString(), &items); err != nil {
		return nil, fmt.Errorf("decode page: field %q: %w", s.cfg.ItemsField, err)
	}
	return items, nil
}

func (s *PageSource[T]) total(header http.Header, body []byte) (int, error) {
	if s.cfg.TotalField != "" {
		field := json.Get(body, fieldPath(s.cfg.TotalField)...)
		if field.ValueType() != jsoniter.NumberValue {
			return 0, fmt.Errorf("%w: field %q", ErrMissingTotal, s.cfg.TotalField)
		}
		return field.ToInt(), nil
	}

	value := strings.TrimSpace(header.Get(s.cfg.TotalHeader))
	if value == "" {
		return 0, fmt.Errorf("%w: header %s", ErrMissingTotal, s.cfg.TotalHeader)
	}
	total, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: header %s=%q", ErrMissingTotal, s.cfg.TotalHeader, value)
	}
	return total, nil
}

func fieldPath(dotted string) []interface{} {
	parts := strings.Split(dotted, ".")
	path := make([]interface{}, len(parts))
	for i, p := range parts {
		path[i] = p
	}
	return path
}
