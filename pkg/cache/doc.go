// Package cache stores page responses in Redis so that re-reading a
// collection does not cost a full round trip per page.
//
// Entries honor the server's caching headers:
//
//   - Expires and Cache-Control max-age set the entry TTL
//   - Cache-Control no-store keeps a response out of the cache
//   - ETag and Last-Modified enable conditional requests; expired entries are
//     kept for StaleRetention so a 304 Not Modified can refresh them
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Scope:    "api.example.com",
//		Endpoint: "/v1/orders",
//		Query:    url.Values{"offset": {"100"}, "limit": {"50"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch the page
//	case err != nil:
//		return err
//	case entry.IsExpired():
//		// revalidate with a conditional request
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// Page requests carry their offset and limit in the query, so every page of a
// collection gets its own entry.
package cache
