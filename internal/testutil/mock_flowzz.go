package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/model"
)

// MockResponse is a canned reply for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockItem is one catalog item served by MockFlowzz.
type MockItem struct {
	ID       int64
	Name     string
	Slug     string
	THC      float64
	CBD      float64
	Score    float64
	Count    int
	MinPrice float64
	Likes    int
	Price    float64
	Offers   []MockOffer
}

// MockOffer is one vendor offer of a MockItem. Price may be a number, a
// numeric string or nil.
type MockOffer struct {
	Vendor       string
	Website      string
	Price        any
	Availability int
}

// MockFlowzz is an httptest server speaking the flowzz endpoints:
//
//	/api/v1/views/flowers          products listing
//	/api/v1/views/flowers/{slug}   product detail (JSON)
//	/api/strains                   CMS strain listing
//	/strain/{slug}                 strain page (HTML)
//	/api/vendor?t=2&id={id}        vendor offers
type MockFlowzz struct {
	server   *httptest.Server
	mu       sync.RWMutex
	items    []MockItem
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// ETags makes every 200 carry an ETag and answers matching
	// If-None-Match requests with 304.
	ETags bool

	requestCount     int
	conditionalCount int
	pathCounts       map[string]int
	lastHeader       http.Header
}

// NewMockFlowzz starts a mock flowzz server with the given items.
func NewMockFlowzz(items ...MockItem) *MockFlowzz {
	mock := &MockFlowzz{
		items:      items,
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.route(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockFlowzz) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFlowzz) Close() {
	m.server.Close()
}

// Sources returns the flowzz sources rooted at the mock server.
func (m *MockFlowzz) Sources() map[string]model.Source {
	return model.DefaultSources(m.URL(), m.URL())
}

// VendorURL returns the vendor endpoint template of the mock server.
func (m *MockFlowzz) VendorURL() string {
	return m.URL() + "/api/vendor?t=2&id={id}"
}

// SetItems replaces the served catalog.
func (m *MockFlowzz) SetItems(items ...MockItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// SetHandler sets a custom handler for a specific path.
func (m *MockFlowzz) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockFlowzz) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests served.
func (m *MockFlowzz) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of conditional requests.
func (m *MockFlowzz) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// PathCount returns the number of requests for one path.
func (m *MockFlowzz) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastHeader returns the headers of the most recent request.
func (m *MockFlowzz) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

func (m *MockFlowzz) snapshot() []MockItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockItem(nil), m.items...)
}

func (m *MockFlowzz) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/views/flowers":
		m.serveProducts(w, r)
	case strings.HasPrefix(path, "/api/v1/views/flowers/"):
		m.serveProductDetail(w, r, strings.TrimPrefix(path, "/api/v1/views/flowers/"))
	case path == "/api/strains":
		m.serveStrains(w, r)
	case strings.HasPrefix(path, "/strain/"):
		m.serveStrainPage(w, r, strings.TrimPrefix(path, "/strain/"))
	case path == "/api/vendor":
		m.serveVendor(w, r)
	default:
		http.NotFound(w, r)
	}
}

func paging(r *http.Request, total int) (start, end, pageCount int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("pagination[page]"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pagination[pageSize]"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	pageCount = (total + size - 1) / size
	start = (page - 1) * size
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end, pageCount
}

func (m *MockFlowzz) serveProducts(w http.ResponseWriter, r *http.Request) {
	items := m.snapshot()
	start, end, pageCount := paging(r, len(items))

	entries := make([]map[string]any, 0, end-start)
	for _, it := range items[start:end] {
		entries = append(entries, map[string]any{
			"id":            it.ID,
			"name":          it.Name,
			"url":           it.Slug,
			"thc":           it.THC,
			"cbd":           it.CBD,
			"ratings_score": it.Score,
			"ratings_count": it.Count,
			"min_price":     it.MinPrice,
			"max_price":     it.MinPrice,
		})
	}
	m.writeJSON(w, r, map[string]any{
		"data": map[string]any{
			"data": entries,
			"meta": map[string]any{"pagination": map[string]any{"pageCount": pageCount}},
		},
	})
}

func (m *MockFlowzz) serveProductDetail(w http.ResponseWriter, r *http.Request, slug string) {
	it, ok := m.find(slug)
	if !ok {
		http.NotFound(w, r)
		return
	}
	m.writeJSON(w, r, map[string]any{
		"data": map[string]any{
			"id": it.ID,
			"attributes": map[string]any{
				"num_likes":     it.Likes,
				"name":          it.Name,
				"thc":           it.THC,
				"cbd":           it.CBD,
				"min_price":     it.MinPrice,
				"max_price":     it.MinPrice,
				"price":         it.Price,
				"ratings_score": it.Score,
				"ratings_count": it.Count,
			},
		},
	})
}

func (m *MockFlowzz) serveStrains(w http.ResponseWriter, r *http.Request) {
	items := m.snapshot()
	start, end, pageCount := paging(r, len(items))

	entries := make([]map[string]any, 0, end-start)
	for _, it := range items[start:end] {
		entries = append(entries, map[string]any{
			"id":         it.ID,
			"attributes": map[string]any{"name": it.Name, "url": it.Slug},
		})
	}
	m.writeJSON(w, r, map[string]any{
		"data": entries,
		"meta": map[string]any{"pagination": map[string]any{"pageCount": pageCount}},
	})
}

func (m *MockFlowzz) serveStrainPage(w http.ResponseWriter, r *http.Request, slug string) {
	it, ok := m.find(slug)
	if !ok {
		http.NotFound(w, r)
		return
	}
	page := fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head>
<body><h1>%s</h1>
<script id="__NEXT_DATA__" type="application/json">{"props":{"strain":{"num_likes":%d,"ratings_score":%g,"ratings_count":%d}}}</script>
</body></html>`, html.EscapeString(it.Name), html.EscapeString(it.Name), it.Likes, it.Score, it.Count)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(page))
}

func (m *MockFlowzz) serveVendor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var offers []map[string]any
	for _, it := range m.snapshot() {
		if it.ID != id {
			continue
		}
		for _, o := range it.Offers {
			offers = append(offers, map[string]any{
				"attributes": map[string]any{
					"availibility": o.Availability,
					"price":        o.Price,
					"vendor": map[string]any{
						"data": map[string]any{
							"attributes": map[string]any{"name": o.Vendor, "website": o.Website},
						},
					},
				},
			})
		}
	}
	if offers == nil {
		offers = []map[string]any{}
	}
	m.writeJSON(w, r, map[string]any{
		"message": map[string]any{
			"data": map[string]any{
				"priceFlowers": map[string]any{"data": offers},
			},
		},
	})
}

func (m *MockFlowzz) find(slug string) (MockItem, bool) {
	for _, it := range m.snapshot() {
		if it.Slug == slug {
			return it, true
		}
	}
	return MockItem{}, false
}

func (m *MockFlowzz) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if m.ETags {
		etag := fmt.Sprintf(`"%x"`, len(body)*31+int(body[len(body)/2]))
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8", "Retry-After": "1"},
	}
}

// MockItems builds n items with ids 1..n, each with two orderable offers
// and one out of stock.
func MockItems(n int) []MockItem {
	items := make([]MockItem, n)
	for i := range items {
		id := int64(i + 1)
		items[i] = MockItem{
			ID:       id,
			Name:     fmt.Sprintf("Strain %02d", id),
			Slug:     fmt.Sprintf("strain-%d", id),
			THC:      float64(18 + i%10),
			CBD:      0.5,
			Score:    3.5 + float64(i%3)*0.5,
			Count:    10 * (i + 1),
			MinPrice: 7.5 + float64(i),
			Likes:    5 * (i + 1),
			Price:    8 + float64(i),
			Offers: []MockOffer{
				{Vendor: "Apotheke Nord", Website: "https://nord.example", Price: 8 + float64(i), Availability: 1},
				{Vendor: "Bloomwell", Price: fmt.Sprintf("%d.50", 9+i), Availability: 2},
				{Vendor: "Closed Pharmacy", Price: 1, Availability: 0},
			},
		}
	}
	return items
}
