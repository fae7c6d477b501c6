package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "detail url without query",
			key: Key{
				Op:  "detail",
				URL: "https://flowzz.com/api/v1/views/flowers/pink-kush/",
			},
			want: "flowzz:detail:flowzz.com/api/v1/views/flowers/pink-kush",
		},
		{
			name: "listing with sorted query",
			key: Key{
				Op:  "list_page",
				URL: "https://cms.flowzz.com/api/strains",
				Query: url.Values{
					"pagination[pageSize]": []string{"100"},
					"pagination[page]":     []string{"2"},
				},
			},
			want: "flowzz:list_page:cms.flowzz.com/api/strains:pagination[pageSize]=100:pagination[page]=2",
		},
		{
			name: "vendor url keeps its inline query",
			key: Key{
				Op:  "vendor_offers",
				URL: "https://flowzz.com/api/vendor?t=2&id=42",
			},
			want: "flowzz:vendor_offers:flowzz.com/api/vendor?t=2&id=42",
		},
		{
			name: "multi-valued query",
			key: Key{
				URL:   "http://127.0.0.1:8080/list",
				Query: url.Values{"a": []string{"1", "2"}},
			},
			want: "flowzz:127.0.0.1:8080/list:a=1,2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_String_Deterministic(t *testing.T) {
	key := Key{
		Op:  "list_page",
		URL: "https://flowzz.com/api/v1/views/flowers",
		Query: url.Values{
			"z": []string{"1"},
			"a": []string{"2"},
			"m": []string{"3"},
		},
	}

	first := key.String()
	for i := 0; i < 20; i++ {
		if got := key.String(); got != first {
			t.Fatalf("Key.String() not deterministic: %q vs %q", got, first)
		}
	}
}
