// Package testutil provides fakes and an httptest flowzz server for tests.
package testutil

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/shopspring/decimal"
)

// FakeTransport is an in-memory transport serving a fixed catalog. It pages
// the catalog by the requested page size and records every call.
type FakeTransport struct {
	mu sync.Mutex

	Catalog []model.CatalogSummary

	// OmitPageCount drops the pagination metadata from every page.
	OmitPageCount bool
	// PageCount, when non-zero, replaces the computed page count.
	PageCount int
	// FailPages makes the listed pages fail.
	FailPages map[int]error

	// Details are keyed by slug.
	Details     map[string]model.Detail
	FailDetails map[string]error
	// FlakyDetails fails the given number of detail fetches per slug with
	// a TemporaryError before serving Details.
	FlakyDetails map[string]int

	Offers     map[model.ItemID][]model.RawOffer
	FailOffers map[model.ItemID]error

	// OnCall runs before every call is served.
	OnCall func(op model.Op, key string)

	calls  map[model.Op]int
	starts []time.Time
}

// NewFakeTransport creates a fake serving the given catalog.
func NewFakeTransport(catalog ...model.CatalogSummary) *FakeTransport {
	return &FakeTransport{
		Catalog:      catalog,
		FailPages:    map[int]error{},
		Details:      map[string]model.Detail{},
		FailDetails:  map[string]error{},
		FlakyDetails: map[string]int{},
		Offers:       map[model.ItemID][]model.RawOffer{},
		FailOffers:   map[model.ItemID]error{},
		calls:        map[model.Op]int{},
	}
}

func (f *FakeTransport) record(op model.Op, key string) {
	f.mu.Lock()
	f.calls[op]++
	f.starts = append(f.starts, time.Now())
	hook := f.OnCall
	f.mu.Unlock()

	if hook != nil {
		hook(op, key)
	}
}

// ListPage serves one page of the catalog.
func (f *FakeTransport) ListPage(_ context.Context, _ string, page, pageSize int) (model.Page, error) {
	f.record(model.OpListPage, fmt.Sprint(page))

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.FailPages[page]; ok {
		return model.Page{}, err
	}
	if pageSize < 1 {
		return model.Page{}, fmt.Errorf("%w: page size %d", model.ErrDecode, pageSize)
	}

	total := len(f.Catalog)
	from := (page - 1) * pageSize
	to := from + pageSize
	if from > total {
		from = total
	}
	if to > total {
		to = total
	}

	items := make([]model.CatalogSummary, to-from)
	copy(items, f.Catalog[from:to])

	result := model.Page{Items: items}
	switch {
	case f.OmitPageCount:
	case f.PageCount != 0:
		result.PageCount = f.PageCount
	default:
		result.PageCount = (total + pageSize - 1) / pageSize
	}
	return result, nil
}

// FetchDetail serves the detail of the slug at the end of endpoint.
func (f *FakeTransport) FetchDetail(_ context.Context, endpoint string) (model.Detail, error) {
	slug := path.Base(endpoint)
	f.record(model.OpDetail, slug)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.FailDetails[slug]; ok {
		return model.Detail{}, err
	}
	if n := f.FlakyDetails[slug]; n > 0 {
		f.FlakyDetails[slug] = n - 1
		return model.Detail{}, TemporaryError{Msg: "flaky detail " + slug}
	}
	return f.Details[slug], nil
}

// FetchVendorOffers serves the offers of one item.
func (f *FakeTransport) FetchVendorOffers(_ context.Context, id model.ItemID) ([]model.RawOffer, error) {
	f.record(model.OpVendorOffers, fmt.Sprint(id))

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.FailOffers[id]; ok {
		return nil, err
	}
	offers := make([]model.RawOffer, len(f.Offers[id]))
	copy(offers, f.Offers[id])
	return offers, nil
}

// Calls returns how often op was called.
func (f *FakeTransport) Calls(op model.Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (f *FakeTransport) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Starts returns the time every call was served, in call order.
func (f *FakeTransport) Starts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.starts))
	copy(out, f.starts)
	return out
}

// TemporaryError is a transport failure worth retrying.
type TemporaryError struct {
	Msg string
}

func (e TemporaryError) Error() string   { return e.Msg }
func (e TemporaryError) Temporary() bool { return true }

// FakeSource is a source whose detail endpoints end in the item slug.
func FakeSource() model.Source {
	return model.Source{
		Name:      "fake",
		ListURL:   "fake://list",
		DetailURL: "fake://detail/{slug}",
		LinkURL:   "https://flowzz.test/product/{slug}",
	}
}

// Summaries builds n catalog entries with ids 1..n and slugs item-1..item-n.
func Summaries(n int) []model.CatalogSummary {
	out := make([]model.CatalogSummary, n)
	for i := range out {
		id := i + 1
		out[i] = model.CatalogSummary{
			ID:   model.ItemID(id),
			Name: fmt.Sprintf("Item %03d", id),
			Slug: fmt.Sprintf("item-%d", id),
		}
	}
	return out
}

// Offer builds an orderable raw offer (availability code 1).
func Offer(vendor string, price float64, website string) model.RawOffer {
	p := decimal.NewFromFloat(price)
	return model.RawOffer{VendorName: vendor, Price: &p, Website: website, AvailabilityCode: 1}
}

// OfferWithCode builds a raw offer with an explicit availability code.
func OfferWithCode(vendor string, price float64, code int) model.RawOffer {
	o := Offer(vendor, price, "")
	o.AvailabilityCode = code
	return o
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Price returns a pointer to a decimal built from v.
func Price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
