package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/shopspring/decimal"
)

// number is a JSON value flowzz sends as a number, a numeric string or
// null. Anything else is a decode error.
type number struct {
	value decimal.Decimal
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*n = number{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*n = number{}
			return nil
		}
		if !strings.Contains(raw, ".") {
			raw = strings.Replace(raw, ",", ".", 1)
		}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = number{value: d, set: true}
	return nil
}

func (n number) float() *float64 {
	if !n.set {
		return nil
	}
	f := n.value.InexactFloat64()
	return &f
}

func (n number) integer() *int {
	if !n.set {
		return nil
	}
	i := int(n.value.IntPart())
	return &i
}

func (n number) amount() *decimal.Decimal {
	if !n.set {
		return nil
	}
	d := n.value
	return &d
}

func first(a, b number) number {
	if a.set {
		return a
	}
	return b
}

func firstString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return strings.TrimSpace(b)
}

func decodeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrDecode, fmt.Sprintf(format, args...))
}

// Listing payloads. The product view wraps entries as
// {"data":{"data":[...],"meta":{...}}}; the CMS returns
// {"data":[...],"meta":{...}}. Entries are flat or nested under "attributes".

type listingEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta json.RawMessage `json:"meta"`
}

type listingFields struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Slug         string `json:"slug"`
	THC          number `json:"thc"`
	CBD          number `json:"cbd"`
	RatingsScore number `json:"ratings_score"`
	RatingsCount number `json:"ratings_count"`
	MinPrice     number `json:"min_price"`
	MaxPrice     number `json:"max_price"`
}

type listingEntry struct {
	ID number `json:"id"`
	listingFields
	Attributes *listingFields `json:"attributes"`
}

type listingMeta struct {
	Pagination struct {
		PageCount number `json:"pageCount"`
	} `json:"pagination"`
}

// DecodeListPage maps a listing page of either flowzz shape.
func DecodeListPage(body []byte) (model.Page, error) {
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Page{}, decodeError("listing: %v", err)
	}

	data := bytes.TrimSpace(env.Data)
	meta := env.Meta
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return model.Page{}, decodeError("listing: missing data")
	case data[0] == '{':
		var inner listingEnvelope
		if err := json.Unmarshal(data, &inner); err != nil {
			return model.Page{}, decodeError("listing: %v", err)
		}
		data = bytes.TrimSpace(inner.Data)
		if len(inner.Meta) > 0 {
			meta = inner.Meta
		}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Page{}, decodeError("listing entries: %v", err)
	}

	page := model.Page{
		Items:     make([]model.CatalogSummary, 0, len(raw)),
		PageCount: pageCount(meta),
	}
	for i, r := range raw {
		var e listingEntry
		if err := json.Unmarshal(r, &e); err != nil {
			return model.Page{}, decodeError("listing entry %d: %v", i, err)
		}
		summary, ok := e.summary()
		if !ok {
			page.Skipped++
			continue
		}
		page.Items = append(page.Items, summary)
	}
	return page, nil
}

func (e listingEntry) summary() (model.CatalogSummary, bool) {
	attrs := listingFields{}
	if e.Attributes != nil {
		attrs = *e.Attributes
	}

	id := e.ID.integer()
	slug := firstString(e.URL, attrs.URL)
	if slug == "" {
		slug = firstString(e.Slug, attrs.Slug)
	}
	if id == nil || *id <= 0 || slug == "" {
		return model.CatalogSummary{}, false
	}

	return model.CatalogSummary{
		ID:          model.ItemID(*id),
		Name:        firstString(e.Name, attrs.Name),
		Slug:        strings.Trim(slug, "/"),
		THC:         first(e.THC, attrs.THC).float(),
		CBD:         first(e.CBD, attrs.CBD).float(),
		RatingScore: first(e.RatingsScore, attrs.RatingsScore).float(),
		RatingCount: first(e.RatingsCount, attrs.RatingsCount).integer(),
		MinPrice:    first(e.MinPrice, attrs.MinPrice).amount(),
		MaxPrice:    first(e.MaxPrice, attrs.MaxPrice).amount(),
	}, true
}

// pageCount reads meta.pagination.pageCount; missing or unusable metadata
// yields 0 so the pager falls back to stopping on an empty page.
func pageCount(meta json.RawMessage) int {
	if len(meta) == 0 {
		return 0
	}
	var m listingMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		return 0
	}
	if n := m.Pagination.PageCount.integer(); n != nil && *n > 0 {
		return *n
	}
	return 0
}

// Product detail payload: {"data":{"id":..,"num_likes":..,"attributes":{...}}}.

type detailFields struct {
	ID           number `json:"id"`
	Name         string `json:"name"`
	THC          number `json:"thc"`
	CBD          number `json:"cbd"`
	MinPrice     number `json:"min_price"`
	MaxPrice     number `json:"max_price"`
	NumLikes     number `json:"num_likes"`
	Price        number `json:"price"`
	RatingsScore number `json:"ratings_score"`
	RatingsCount number `json:"ratings_count"`
}

type detailEnvelope struct {
	Data *struct {
		detailFields
		Attributes *detailFields `json:"attributes"`
	} `json:"data"`
}

// DecodeProductDetail maps a product detail record.
func DecodeProductDetail(body []byte) (model.Detail, error) {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Detail{}, decodeError("detail: %v", err)
	}
	if env.Data == nil {
		return model.Detail{}, decodeError("detail: missing data")
	}

	attrs := detailFields{}
	if env.Data.Attributes != nil {
		attrs = *env.Data.Attributes
	}
	d := model.Detail{
		Likes:       first(env.Data.NumLikes, attrs.NumLikes).integer(),
		Price:       first(env.Data.Price, attrs.Price).amount(),
		RatingScore: first(env.Data.RatingsScore, attrs.RatingsScore).float(),
		RatingCount: first(env.Data.RatingsCount, attrs.RatingsCount).integer(),
		Name:        firstString(env.Data.Name, attrs.Name),
		THC:         first(env.Data.THC, attrs.THC).float(),
		CBD:         first(env.Data.CBD, attrs.CBD).float(),
		MinPrice:    first(env.Data.MinPrice, attrs.MinPrice).amount(),
		MaxPrice:    first(env.Data.MaxPrice, attrs.MaxPrice).amount(),
	}
	if id := first(env.Data.ID, attrs.ID).integer(); id != nil && *id > 0 {
		d.ID = model.ItemID(*id)
	}
	return d, nil
}

// Strain pages are server-rendered HTML; the metrics live in embedded
// script state.
var (
	likesPattern       = regexp.MustCompile(`(?i)"num_likes"\s*:\s*(\d+)`)
	ratingScorePattern = regexp.MustCompile(`(?i)"ratings_score"\s*:\s*(\d+(?:\.\d+)?)`)
	ratingCountPattern = regexp.MustCompile(`(?i)"ratings_count"\s*:\s*(\d+)`)
	pricePattern       = regexp.MustCompile(`(?i)"price"\s*:\s*(\d+(?:\.\d+)?)`)
)

// DecodeStrainPage extracts detail metrics from a strain HTML page.
func DecodeStrainPage(body []byte) (model.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return model.Detail{}, decodeError("strain page: %v", err)
	}

	var scripts strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts.WriteString(s.Text())
		scripts.WriteByte('\n')
	})
	text := scripts.String()

	var d model.Detail
	if v, ok := findInt(likesPattern, text); ok {
		d.Likes = &v
	}
	if v, ok := findFloat(ratingScorePattern, text); ok {
		d.RatingScore = &v
	}
	if v, ok := findInt(ratingCountPattern, text); ok {
		d.RatingCount = &v
	}
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		if p, err := decimal.NewFromString(m[1]); err == nil {
			d.Price = &p
		}
	}

	if d.Likes == nil && d.RatingScore == nil && d.RatingCount == nil && d.Price == nil {
		return model.Detail{}, decodeError("strain page: no metrics found")
	}
	return d, nil
}

func findInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	return v, err == nil
}

func findFloat(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

// Vendor payload:
// {"message":{"data":{"priceFlowers":{"data":[{"attributes":{...}}]}}}}.

type vendorOffer struct {
	Attributes struct {
		Availability number `json:"availibility"`
		Price        number `json:"price"`
		Vendor       struct {
			Data *struct {
				Attributes struct {
					Name    string  `json:"name"`
					Website *string `json:"website"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"vendor"`
	} `json:"attributes"`
}

type vendorEnvelope struct {
	Message *struct {
		Data *struct {
			PriceFlowers *struct {
				Data []vendorOffer `json:"data"`
			} `json:"priceFlowers"`
		} `json:"data"`
	} `json:"message"`
}

// DecodeVendorOffers maps the vendor endpoint payload into raw offers.
// Offers are returned unfiltered; a missing price stays nil.
func DecodeVendorOffers(body []byte) ([]model.RawOffer, error) {
	var env vendorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("vendor offers: %v", err)
	}
	if env.Message == nil || env.Message.Data == nil {
		return nil, decodeError("vendor offers: missing message.data")
	}
	if env.Message.Data.PriceFlowers == nil {
		return []model.RawOffer{}, nil
	}

	items := env.Message.Data.PriceFlowers.Data
	offers := make([]model.RawOffer, 0, len(items))
	for _, item := range items {
		a := item.Attributes
		offer := model.RawOffer{Price: a.Price.amount()}
		if code := a.Availability.integer(); code != nil {
			offer.AvailabilityCode = *code
		}
		if v := a.Vendor.Data; v != nil {
			offer.VendorName = v.Attributes.Name
			if v.Attributes.Website != nil {
				offer.Website = *v.Attributes.Website
			}
		}
		offers = append(offers, offer)
	}
	return offers, nil
}
