package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
		{
			name:    "just expired",
			expires: time.Now().Add(-1 * time.Second),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	entry := &Entry{Expires: time.Now().Add(10 * time.Minute)}
	if ttl := entry.TTL(); ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("TTL() = %v, want about 10m", ttl)
	}

	expired := &Entry{Expires: time.Now().Add(-time.Minute)}
	if ttl := expired.TTL(); ttl != 0 {
		t.Errorf("TTL() of expired entry = %v, want 0", ttl)
	}
}

func TestEntry_CanRevalidate(t *testing.T) {
	var nilEntry *Entry
	if nilEntry.CanRevalidate() {
		t.Error("nil entry must not revalidate")
	}
	if (&Entry{}).CanRevalidate() {
		t.Error("entry without validators must not revalidate")
	}
	if !(&Entry{ETag: `"v1"`}).CanRevalidate() {
		t.Error("entry with ETag should revalidate")
	}
	if !(&Entry{LastModified: time.Now()}).CanRevalidate() {
		t.Error("entry with Last-Modified should revalidate")
	}
}
