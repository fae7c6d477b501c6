// Package model defines the catalog, enrichment and vendor-matching types
// shared by every flowzz-client package.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ItemID is the stable flowzz identifier of a catalog item.
type ItemID int64

// CatalogSummary is one entry from a listing endpoint.
// All numeric fields are optional; nil means the listing did not carry them.
type CatalogSummary struct {
	ID   ItemID `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	THC         *float64         `json:"thc,omitempty"`
	CBD         *float64         `json:"cbd,omitempty"`
	RatingScore *float64         `json:"ratings_score,omitempty"`
	RatingCount *int             `json:"ratings_count,omitempty"`
	MinPrice    *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
}

// Page is one decoded listing page.
type Page struct {
	Items []CatalogSummary

	// PageCount is the total page count declared by the pagination
	// metadata, or 0 when the metadata was missing or unusable.
	PageCount int

	// Skipped counts listing entries dropped because they carried no id
	// or no slug and can therefore not be addressed later.
	Skipped int
}

// Detail holds the fields only available from a detail endpoint.
type Detail struct {
	Likes       *int
	Price       *decimal.Decimal
	RatingScore *float64
	RatingCount *int

	// Summary fields some detail payloads repeat. They only fill gaps,
	// which matters when a record starts from a bare slug.
	ID       ItemID
	Name     string
	THC      *float64
	CBD      *float64
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// EnrichedRecord is a CatalogSummary merged with its Detail.
// When enrichment failed, Enriched is false and the detail-only fields are nil.
type EnrichedRecord struct {
	CatalogSummary

	Likes    *int             `json:"num_likes,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Link     string           `json:"link,omitempty"`
	Enriched bool             `json:"enriched"`
}

// Enrich merges a detail into a summary. Summary fields repeated by the
// detail only fill gaps; the listing values win when both are present.
func Enrich(s CatalogSummary, d Detail, link string) EnrichedRecord {
	r := EnrichedRecord{
		CatalogSummary: s,
		Likes:          d.Likes,
		Price:          d.Price,
		Link:           link,
		Enriched:       true,
	}
	if r.RatingScore == nil {
		r.RatingScore = d.RatingScore
	}
	if r.RatingCount == nil {
		r.RatingCount = d.RatingCount
	}
	if r.ID == 0 {
		r.ID = d.ID
	}
	if r.Name == "" {
		r.Name = d.Name
	}
	if r.THC == nil {
		r.THC = d.THC
	}
	if r.CBD == nil {
		r.CBD = d.CBD
	}
	if r.MinPrice == nil {
		r.MinPrice = d.MinPrice
	}
	if r.MaxPrice == nil {
		r.MaxPrice = d.MaxPrice
	}
	return r
}

// Unenriched builds the record emitted when the detail fetch failed.
func Unenriched(s CatalogSummary, link string) EnrichedRecord {
	return EnrichedRecord{CatalogSummary: s, Link: link}
}

// EffectivePrice returns the detail price, falling back to the listing
// minimum price.
func (r EnrichedRecord) EffectivePrice() *decimal.Decimal {
	if r.Price != nil {
		return r.Price
	}
	return r.MinPrice
}

// RawOffer is a vendor offer exactly as reported by the vendor endpoint,
// before availability filtering and validation.
type RawOffer struct {
	VendorName       string
	Price            *decimal.Decimal
	Website          string
	AvailabilityCode int
}

// VendorOffer is a validated, currently orderable offer of one vendor for
// one item.
type VendorOffer struct {
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Website string          `json:"website,omitempty"`
}

// VendorComparisonRow is one vendor carrying every requested item.
// Prices are in request order.
type VendorComparisonRow struct {
	Vendor  string            `json:"vendor"`
	Prices  []decimal.Decimal `json:"prices"`
	Total   decimal.Decimal   `json:"total"`
	Website string            `json:"website,omitempty"`
}

// Source describes one catalog flavour on flowzz: where to list it, where
// its detail records live and how to link an item for humans.
// URL templates use {slug} as placeholder.
type Source struct {
	Name      string
	ListURL   string
	DetailURL string
	LinkURL   string
}

// DetailEndpoint resolves the detail URL for a slug.
func (s Source) DetailEndpoint(slug string) string {
	return strings.ReplaceAll(s.DetailURL, "{slug}", slug)
}

// Link resolves the human-facing URL for a slug.
func (s Source) Link(slug string) string {
	if s.LinkURL == "" {
		return ""
	}
	return strings.ReplaceAll(s.LinkURL, "{slug}", slug)
}

// Validate checks that the source can be paged and enriched.
func (s Source) Validate() error {
	if s.ListURL == "" {
		return fmt.Errorf("%w: source %q has no list url", ErrInvalidRequest, s.Name)
	}
	if !strings.Contains(s.DetailURL, "{slug}") {
		return fmt.Errorf("%w: source %q detail url must contain {slug}", ErrInvalidRequest, s.Name)
	}
	return nil
}

// Public flowzz endpoints.
const (
	DefaultSiteURL   = "https://flowzz.com"
	DefaultCMSURL    = "https://cms.flowzz.com"
	DefaultVendorURL = "https://flowzz.com/api/vendor?t=2&id={id}"
)

// Known flowzz sources.
const (
	SourceProducts = "products"
	SourceStrains  = "strains"
)

// DefaultSources returns the flowzz sources rooted at the given site and
// CMS base URLs.
func DefaultSources(siteURL, cmsURL string) map[string]Source {
	siteURL = strings.TrimRight(siteURL, "/")
	cmsURL = strings.TrimRight(cmsURL, "/")
	return map[string]Source{
		SourceProducts: {
			Name:      SourceProducts,
			ListURL:   siteURL + "/api/v1/views/flowers",
			DetailURL: siteURL + "/api/v1/views/flowers/{slug}",
			LinkURL:   siteURL + "/product/{slug}",
		},
		SourceStrains: {
			Name:      SourceStrains,
			ListURL:   cmsURL + "/api/strains",
			DetailURL: siteURL + "/strain/{slug}",
			LinkURL:   siteURL + "/strain/{slug}",
		},
	}
}
