package cache

import (
	"time"
)

// Entry is a cached flowzz response body with its validators.
type Entry struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type,omitempty"`

	// ETag and LastModified allow a conditional request once the entry
	// is stale.
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	StatusCode int       `json:"status_code"`
	Expires    time.Time `json:"expires"`
	CachedAt   time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry must not be served without revalidation.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// CanRevalidate reports whether the entry carries a validator for a
// conditional request.
func (e *Entry) CanRevalidate() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}
