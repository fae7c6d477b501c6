// Package cache stores flowzz responses in Redis so repeated fetch cycles
// can revalidate instead of downloading again.
//
// Entries are keyed by operation, URL and query. A fresh entry is served
// without a request. An expired entry that carries a validator (ETag or
// Last-Modified) is kept for a stale window so the transport can send a
// conditional request and reuse the body on 304 Not Modified.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Op:    "list_page",
//		URL:   "https://flowzz.com/api/v1/views/flowers",
//		Query: url.Values{"pagination[page]": []string{"1"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch and store with manager.Set
//	}
//	if entry != nil && entry.IsExpired() && entry.CanRevalidate() {
//		headers := cache.ConditionalHeaders(entry)
//		// send headers; on 304 call manager.Refresh
//	}
//
// # Metrics
//
//   - flowzz_cache_hits_total{state="fresh|revalidated"}
//   - flowzz_cache_misses_total
//   - flowzz_cache_entry_bytes
//   - flowzz_cache_errors_total{operation}
package cache
