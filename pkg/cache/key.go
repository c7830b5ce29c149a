package cache

import (
	"net/url"
	"strings"
)

const keyPrefix = "pagestream:page"

// Key identifies a cached page response.
type Key struct {
	// Scope separates servers sharing one Redis, usually the API host.
	Scope string

	// Endpoint is the collection path, e.g. "/v1/orders".
	Endpoint string

	// Query holds the request's query parameters, including offset and limit.
	Query url.Values
}

// String returns a deterministic Redis key. Query parameters are sorted by
// name, so equal queries map to equal keys regardless of insertion order.
//
// Example:
//
//	pagestream:page:api.example.com:v1/orders?limit=50&offset=100
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	b.WriteString(k.Scope)
	b.WriteByte(':')
	b.WriteString(strings.Trim(k.Endpoint, "/"))
	if len(k.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(k.Query.Encode())
	}
	return b.String()
}
