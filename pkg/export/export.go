// Package export writes catalog records and vendor comparison rows as
// flat CSV or JSON documents.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/shopspring/decimal"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name or a file name ending in .csv or .json.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "csv" || strings.HasSuffix(s, ".csv"):
		return FormatCSV, nil
	case s == "json" || strings.HasSuffix(s, ".json"):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q (want csv or json)", model.ErrInvalidRequest, s)
	}
}

// RecordColumns is the CSV header for catalog records.
var RecordColumns = []string{
	"id", "name", "slug", "thc", "cbd", "ratings_score", "ratings_count",
	"num_likes", "price", "min_price", "max_price", "link", "enriched",
}

// WriteRecords writes records in the given format. Missing values are
// empty CSV cells or absent JSON fields.
func WriteRecords(w io.Writer, format Format, records []model.EnrichedRecord) error {
	switch format {
	case FormatJSON:
		if records == nil {
			records = []model.EnrichedRecord{}
		}
		return writeJSON(w, records)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(RecordColumns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for _, r := range records {
			row := []string{
				strconv.FormatInt(int64(r.ID), 10),
				r.Name,
				r.Slug,
				float(r.THC),
				float(r.CBD),
				float(r.RatingScore),
				integer(r.RatingCount),
				integer(r.Likes),
				amount(r.Price),
				amount(r.MinPrice),
				amount(r.MaxPrice),
				r.Link,
				strconv.FormatBool(r.Enriched),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write record %d: %w", r.ID, err)
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("%w: unknown export format %q", model.ErrInvalidRequest, format)
	}
}

// WriteRows writes vendor comparison rows. names labels the price columns
// in request order; missing names fall back to item_<n>.
func WriteRows(w io.Writer, format Format, names []string, rows []model.VendorComparisonRow) error {
	switch format {
	case FormatJSON:
		if rows == nil {
			rows = []model.VendorComparisonRow{}
		}
		return writeJSON(w, rows)
	case FormatCSV:
		width := len(names)
		for _, r := range rows {
			if len(r.Prices) > width {
				width = len(r.Prices)
			}
		}

		header := []string{"vendor"}
		for i := 0; i < width; i++ {
			if i < len(names) && names[i] != "" {
				header = append(header, "price_"+names[i])
			} else {
				header = append(header, fmt.Sprintf("price_item_%d", i+1))
			}
		}
		header = append(header, "total", "website")

		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for _, r := range rows {
			row := make([]string, 0, len(header))
			row = append(row, r.Vendor)
			for i := 0; i < width; i++ {
				if i < len(r.Prices) {
					row = append(row, r.Prices[i].StringFixed(2))
				} else {
					row = append(row, "")
				}
			}
			row = append(row, r.Total.StringFixed(2), r.Website)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write row %q: %w", r.Vendor, err)
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("%w: unknown export format %q", model.ErrInvalidRequest, format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func float(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func integer(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func amount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
