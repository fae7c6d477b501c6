package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// NewEntry builds a cache entry from a successful response. The entry
// lives for ttl unless the server asks for less through Cache-Control
// max-age or Expires. It returns nil when the response must not be cached.
func NewEntry(statusCode int, header http.Header, body []byte, ttl time.Duration) *Entry {
	if statusCode != http.StatusOK || ttl <= 0 {
		return nil
	}

	cacheControl := strings.ToLower(header.Get("Cache-Control"))
	if strings.Contains(cacheControl, "no-store") {
		return nil
	}

	now := time.Now()
	entry := &Entry{
		Data:        body,
		ContentType: header.Get("Content-Type"),
		ETag:        header.Get("ETag"),
		StatusCode:  statusCode,
		Expires:     expiresAt(now, header, ttl),
		CachedAt:    now,
	}

	if lm := header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			entry.LastModified = t
		}
	}

	return entry
}

// expiresAt caps now+ttl by the server's own freshness lifetime.
func expiresAt(now time.Time, header http.Header, ttl time.Duration) time.Time {
	expires := now.Add(ttl)

	if maxAge, ok := parseMaxAge(header.Get("Cache-Control")); ok {
		if limit := now.Add(maxAge); limit.Before(expires) {
			expires = limit
		}
	} else if raw := header.Get("Expires"); raw != "" {
		if t, err := http.ParseTime(raw); err == nil && t.Before(expires) {
			expires = t
		}
	}

	if expires.Before(now) {
		return now
	}
	return expires
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if strings.HasPrefix(directive, "no-cache") {
			return 0, true
		}
		value, found := strings.CutPrefix(directive, "max-age=")
		if !found {
			continue
		}
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

// ConditionalHeaders returns If-None-Match or If-Modified-Since for a
// stale entry, preferring the ETag.
func ConditionalHeaders(entry *Entry) map[string]string {
	if !entry.CanRevalidate() {
		return nil
	}
	if entry.ETag != "" {
		return map[string]string{"If-None-Match": entry.ETag}
	}
	return map[string]string{"If-Modified-Since": entry.LastModified.UTC().Format(http.TimeFormat)}
}
