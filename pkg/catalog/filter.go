package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/shopspring/decimal"
)

// FloatRange bounds a float field. A nil end is open.
type FloatRange struct {
	Min, Max *float64
}

// IntRange bounds an integer field. A nil end is open.
type IntRange struct {
	Min, Max *int
}

// PriceRange bounds a price. A nil end is open.
type PriceRange struct {
	Min, Max *decimal.Decimal
}

// Filter narrows a catalog. The zero Filter keeps every record.
//
// Name matches a case-insensitive substring of the record name. Ranges are
// inclusive; a record missing a value fails any range that is set for it.
// Price is the record's effective price.
type Filter struct {
	Name        string
	THC         FloatRange
	CBD         FloatRange
	Rating      FloatRange
	RatingCount IntRange
	Likes       IntRange
	Price       PriceRange
}

// Filter parameter names, shared by CLI flags (with dashes) and HTTP query
// parameters.
const (
	FilterName           = "name"
	FilterMinTHC         = "min_thc"
	FilterMaxTHC         = "max_thc"
	FilterMinCBD         = "min_cbd"
	FilterMaxCBD         = "max_cbd"
	FilterMinRating      = "min_rating"
	FilterMaxRating      = "max_rating"
	FilterMinRatingCount = "min_ratings"
	FilterMaxRatingCount = "max_ratings"
	FilterMinLikes       = "min_likes"
	FilterMaxLikes       = "max_likes"
	FilterMinPrice       = "min_price"
	FilterMaxPrice       = "max_price"
)

// ParseFilter builds a Filter from named string parameters. lookup reports
// the raw value of a parameter and whether it was given.
func ParseFilter(lookup func(name string) (string, bool)) (Filter, error) {
	var f Filter
	if v, ok := lookup(FilterName); ok {
		f.Name = strings.TrimSpace(v)
	}

	floats := []struct {
		name string
		dst  **float64
	}{
		{FilterMinTHC, &f.THC.Min}, {FilterMaxTHC, &f.THC.Max},
		{FilterMinCBD, &f.CBD.Min}, {FilterMaxCBD, &f.CBD.Max},
		{FilterMinRating, &f.Rating.Min}, {FilterMaxRating, &f.Rating.Max},
	}
	for _, p := range floats {
		v, ok := lookup(p.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %s must be a number (got %q)", model.ErrInvalidRequest, p.name, v)
		}
		*p.dst = &n
	}

	ints := []struct {
		name string
		dst  **int
	}{
		{FilterMinRatingCount, &f.RatingCount.Min}, {FilterMaxRatingCount, &f.RatingCount.Max},
		{FilterMinLikes, &f.Likes.Min}, {FilterMaxLikes, &f.Likes.Max},
	}
	for _, p := range ints {
		v, ok := lookup(p.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %s must be an integer (got %q)", model.ErrInvalidRequest, p.name, v)
		}
		*p.dst = &n
	}

	prices := []struct {
		name string
		dst  **decimal.Decimal
	}{
		{FilterMinPrice, &f.Price.Min}, {FilterMaxPrice, &f.Price.Max},
	}
	for _, p := range prices {
		v, ok := lookup(p.name)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %s must be a price (got %q)", model.ErrInvalidRequest, p.name, v)
		}
		*p.dst = &d
	}

	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// Validate rejects ranges whose lower end exceeds the upper end.
func (f Filter) Validate() error {
	for _, c := range []struct {
		name     string
		inverted bool
	}{
		{"thc", f.THC.inverted()},
		{"cbd", f.CBD.inverted()},
		{"rating", f.Rating.inverted()},
		{"ratings", f.RatingCount.inverted()},
		{"likes", f.Likes.inverted()},
		{"price", f.Price.inverted()},
	} {
		if c.inverted {
			return fmt.Errorf("%w: %s range is empty (min > max)", model.ErrInvalidRequest, c.name)
		}
	}
	return nil
}

// Active reports whether the filter can drop any record.
func (f Filter) Active() bool {
	return f.Name != "" ||
		f.THC.set() || f.CBD.set() || f.Rating.set() ||
		f.RatingCount.set() || f.Likes.set() || f.Price.set()
}

// Apply returns the records that pass the filter, in their original order.
func (f Filter) Apply(records []model.EnrichedRecord) []model.EnrichedRecord {
	out := make([]model.EnrichedRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Match reports whether r passes the filter.
func (f Filter) Match(r model.EnrichedRecord) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(f.Name)) {
		return false
	}
	return f.THC.contains(r.THC) &&
		f.CBD.contains(r.CBD) &&
		f.Rating.contains(r.RatingScore) &&
		f.RatingCount.contains(r.RatingCount) &&
		f.Likes.contains(r.Likes) &&
		f.Price.contains(r.EffectivePrice())
}

func (r FloatRange) set() bool { return r.Min != nil || r.Max != nil }

func (r FloatRange) inverted() bool {
	return r.Min != nil && r.Max != nil && *r.Min > *r.Max
}

func (r FloatRange) contains(v *float64) bool {
	if !r.set() {
		return true
	}
	if v == nil {
		return false
	}
	return (r.Min == nil || *v >= *r.Min) && (r.Max == nil || *v <= *r.Max)
}

func (r IntRange) set() bool { return r.Min != nil || r.Max != nil }

func (r IntRange) inverted() bool {
	return r.Min != nil && r.Max != nil && *r.Min > *r.Max
}

func (r IntRange) contains(v *int) bool {
	if !r.set() {
		return true
	}
	if v == nil {
		return false
	}
	return (r.Min == nil || *v >= *r.Min) && (r.Max == nil || *v <= *r.Max)
}

func (r PriceRange) set() bool { return r.Min != nil || r.Max != nil }

func (r PriceRange) inverted() bool {
	return r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max)
}

func (r PriceRange) contains(v *decimal.Decimal) bool {
	if !r.set() {
		return true
	}
	if v == nil {
		return false
	}
	return (r.Min == nil || v.GreaterThanOrEqual(*r.Min)) && (r.Max == nil || v.LessThanOrEqual(*r.Max))
}
