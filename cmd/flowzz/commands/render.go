package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

const missing = "-"

func renderRecords(out io.Writer, records []model.EnrichedRecord, key rank.Key) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("flowzz catalog by %s", key))
	t.AppendHeader(table.Row{"#", "Name", "ID", "Rating", "Ratings", "Likes", "Price", "THC", "CBD", "Link"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	for i, r := range records {
		t.AppendRow(table.Row{
			i + 1,
			r.Name,
			int64(r.ID),
			formatFloat(r.RatingScore, 2),
			formatInt(r.RatingCount),
			formatInt(r.Likes),
			formatPrice(r.EffectivePrice()),
			formatFloat(r.THC, 1),
			formatFloat(r.CBD, 1),
			r.Link,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d records", len(records))})
	t.Render()
}

func renderRows(out io.Writer, names []string, rows []model.VendorComparisonRow) {
	t := table.NewWriter()
	t.SetOutputMirror(out)

	header := table.Row{"Vendor"}
	for _, n := range names {
		header = append(header, n)
	}
	header = append(header, "Total", "Website")
	t.AppendHeader(header)

	for _, r := range rows {
		row := table.Row{r.Vendor}
		for _, p := range r.Prices {
			row = append(row, p.StringFixed(2))
		}
		row = append(row, r.Total.StringFixed(2), r.Website)
		t.AppendRow(row)
	}
	t.Render()
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return missing
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return missing
	}
	return strconv.Itoa(*v)
}

func formatPrice(v *decimal.Decimal) string {
	if v == nil {
		return missing
	}
	return v.StringFixed(2)
}
