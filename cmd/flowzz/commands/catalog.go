package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/export"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/spf13/cobra"
)

type catalogOptions struct {
	key    string
	order  string
	top    int
	format string
	output string
	slugs  []string
}

// filterFlags are the catalog filter parameters exposed as flags.
var filterFlags = []struct {
	name  string
	usage string
}{
	{catalog.FilterName, "keep names containing this text (case-insensitive)"},
	{catalog.FilterMinTHC, "minimum THC %"},
	{catalog.FilterMaxTHC, "maximum THC %"},
	{catalog.FilterMinCBD, "minimum CBD %"},
	{catalog.FilterMaxCBD, "maximum CBD %"},
	{catalog.FilterMinRating, "minimum rating score"},
	{catalog.FilterMaxRating, "maximum rating score"},
	{catalog.FilterMinRatingCount, "minimum number of ratings"},
	{catalog.FilterMaxRatingCount, "maximum number of ratings"},
	{catalog.FilterMinLikes, "minimum likes"},
	{catalog.FilterMaxLikes, "maximum likes"},
	{catalog.FilterMinPrice, "minimum price"},
	{catalog.FilterMaxPrice, "maximum price"},
}

func flagName(param string) string {
	return strings.ReplaceAll(param, "_", "-")
}

func newCatalogCommand(rt *runtime) *cobra.Command {
	opts := &catalogOptions{}

	cmd := &cobra.Command{
		Use:   "catalog [--rank <key>] [--top N] [--name text] [--min-thc N] [--slug s]... [--output file.csv|file.json]",
		Short: "Fetch, enrich and rank the flowzz catalog.",
		Long: "Pages through the configured source, enriches every entry with its detail " +
			"record and prints the ranked catalog. Failed pages or details are reported " +
			"and the partial catalog is still printed. With --slug only the named items " +
			"are fetched, without paging the listing. Filter flags narrow the catalog " +
			"before ranking.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.runCatalog(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.key, "rank", string(rank.KeyRating), fmt.Sprintf("ranking key: %v", rank.Keys))
	f.StringVar(&opts.order, "order", "", "asc or desc (default depends on the key)")
	f.IntVar(&opts.top, "top", 0, "show only the first N records (0 = all)")
	f.StringVar(&opts.format, "format", "table", "stdout format: table, csv or json")
	f.StringVar(&opts.output, "output", "", "also write all ranked records to this .csv or .json file")
	f.StringSliceVar(&opts.slugs, "slug", nil, "fetch only these slugs instead of the whole listing (repeatable)")
	for _, ff := range filterFlags {
		f.String(flagName(ff.name), "", ff.usage)
	}
	return cmd
}

func (rt *runtime) runCatalog(cmd *cobra.Command, opts *catalogOptions) error {
	key, err := rank.ParseKey(opts.key)
	if err != nil {
		return err
	}
	dir, err := rank.ParseDirection(opts.order, key)
	if err != nil {
		return err
	}
	if opts.top < 0 {
		return fmt.Errorf("%w: --top must be >= 0", model.ErrInvalidRequest)
	}
	var fileFormat export.Format
	if opts.output != "" {
		if fileFormat, err = export.ParseFormat(opts.output); err != nil {
			return err
		}
	}
	filter, err := catalog.ParseFilter(func(name string) (string, bool) {
		flag := cmd.Flags().Lookup(flagName(name))
		if flag == nil || !flag.Changed {
			return "", false
		}
		return flag.Value.String(), true
	})
	if err != nil {
		return err
	}

	a, err := rt.app(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var result catalog.CatalogResult
	if len(opts.slugs) > 0 {
		result, err = a.Engine.EnrichSlugs(cmd.Context(), opts.slugs, rt.cfg.Delay)
	} else {
		result, err = a.Engine.BuildCatalog(cmd.Context(), rt.cfg.PageSize, rt.cfg.Delay)
	}
	if err != nil {
		return err
	}
	rt.reportCatalog(result)

	records := result.Records
	if filter.Active() {
		records = filter.Apply(records)
		rt.logger.Info().
			Int("kept", len(records)).
			Int("total", len(result.Records)).
			Msg("Catalog filtered")
	}

	ranked, err := a.Engine.Rank(records, key, dir)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := writeFile(opts.output, func(f *os.File) error {
			return export.WriteRecords(f, fileFormat, ranked.Records)
		}); err != nil {
			return err
		}
		rt.logger.Info().Str("path", opts.output).Int("records", len(ranked.Records)).Msg("Catalog exported")
	}

	shown := ranked.Records
	if opts.top > 0 && opts.top < len(shown) {
		shown = shown[:opts.top]
	}

	switch opts.format {
	case "table":
		renderRecords(rt.stdout, shown, key)
		return nil
	default:
		format, err := export.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		return export.WriteRecords(rt.stdout, format, shown)
	}
}

// reportCatalog logs the cycle outcome and every diagnostic.
func (rt *runtime) reportCatalog(result catalog.CatalogResult) {
	for _, d := range result.Diagnostics {
		rt.logger.Warn().
			Str("code", string(d.Code)).
			Int64("item_id", int64(d.ItemID)).
			Int("page", d.Page).
			Str("detail", d.Detail).
			Msg("Catalog diagnostic")
	}
	event := rt.logger.Info()
	if result.Outcome() == model.OutcomePartial {
		event = rt.logger.Warn()
	}
	event.
		Str("source", result.Source).
		Int("records", len(result.Records)).
		Int("pages", result.Pages).
		Bool("truncated", result.Truncated).
		Bool("cancelled", result.Cancelled).
		Str("outcome", string(result.Outcome())).
		Msg("Catalog built")
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
