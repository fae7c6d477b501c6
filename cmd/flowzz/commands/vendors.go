package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/export"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/spf13/cobra"
)

type vendorsOptions struct {
	format string
	output string
}

func newVendorsCommand(rt *runtime) *cobra.Command {
	opts := &vendorsOptions{}

	cmd := &cobra.Command{
		Use:   "vendors <name|id> [<name|id> [<name|id>]]",
		Short: "List vendors that can deliver all given items.",
		Long: "Compares the orderable offers of one to three items and prints every vendor " +
			"stocking all of them, cheapest total first. Names are resolved against the " +
			"catalog case-insensitively; numeric arguments are item ids and skip the catalog.",
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runVendors(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "table", "stdout format: table, csv or json")
	f.StringVar(&opts.output, "output", "", "also write the comparison to this .csv or .json file")
	return cmd
}

func (rt *runtime) runVendors(cmd *cobra.Command, args []string, opts *vendorsOptions) error {
	var fileFormat export.Format
	if opts.output != "" {
		var err error
		if fileFormat, err = export.ParseFormat(opts.output); err != nil {
			return err
		}
	}

	a, err := rt.app(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ids, names, ok := parseIDs(args)
	if !ok {
		result, err := a.Engine.BuildCatalog(cmd.Context(), rt.cfg.PageSize, rt.cfg.Delay)
		if err != nil {
			return err
		}
		rt.reportCatalog(result)

		if ids, err = catalog.ResolveRefs(result.Records, args); err != nil {
			return err
		}
		names = columnNames(result.Records, ids)
	}

	res, err := a.Engine.FindCommonVendors(cmd.Context(), ids)
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		rt.logger.Warn().
			Str("code", string(d.Code)).
			Int64("item_id", int64(d.ItemID)).
			Str("detail", d.Detail).
			Msg("Vendor diagnostic")
	}
	rt.logger.Info().
		Int("vendors", len(res.Rows)).
		Str("outcome", string(res.Outcome())).
		Msg("Vendor comparison built")

	if opts.output != "" {
		if err := writeFile(opts.output, func(f *os.File) error {
			return export.WriteRows(f, fileFormat, names, res.Rows)
		}); err != nil {
			return err
		}
	}

	if len(res.Rows) == 0 {
		fmt.Fprintln(rt.stderr, "No vendor offers all requested items.")
	}

	switch opts.format {
	case "table":
		renderRows(rt.stdout, names, res.Rows)
		return nil
	default:
		format, err := export.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		return export.WriteRows(rt.stdout, format, names, res.Rows)
	}
}

// parseIDs reports whether every argument is an item id.
func parseIDs(args []string) ([]model.ItemID, []string, bool) {
	ids := make([]model.ItemID, 0, len(args))
	names := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.TrimSpace(a)
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, nil, false
		}
		ids = append(ids, model.ItemID(n))
		names = append(names, "item_"+a)
	}
	return ids, names, true
}

func columnNames(records []model.EnrichedRecord, ids []model.ItemID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = fmt.Sprintf("item_%d", id)
		for _, r := range records {
			if r.ID == id && r.Name != "" {
				names[i] = r.Name
				break
			}
		}
	}
	return names
}
