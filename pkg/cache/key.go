package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies one cached flowzz response.
type Key struct {
	// Op is the logical operation (list_page, detail, vendor_offers).
	Op string

	// URL is the request URL without the query passed in Query.
	URL string

	// Query holds the request query parameters.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: flowzz:op:host/path:query1=val1:query2=val2
//
// Example:
//
//	flowzz:list_page:flowzz.com/api/v1/views/flowers:pagination[page]=1:pagination[pageSize]=100
func (k Key) String() string {
	parts := []string{"flowzz"}

	if k.Op != "" {
		parts = append(parts, k.Op)
	}

	target := k.URL
	if i := strings.Index(target, "://"); i >= 0 {
		target = target[i+3:]
	}
	if target = strings.TrimRight(target, "/"); target != "" {
		parts = append(parts, target)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
		}
	}

	return strings.Join(parts, ":")
}
