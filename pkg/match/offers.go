package match

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/model"
)

// OfferSet maps vendor name to that vendor's orderable offer for one item.
type OfferSet map[string]model.VendorOffer

// ReduceOffers filters raw offers by the availability predicate, drops
// invalid ones and keeps the last offer seen per vendor name. Every dropped
// or replaced offer is reported as a diagnostic for id.
func ReduceOffers(id model.ItemID, raw []model.RawOffer, orderable model.AvailabilityPredicate) (OfferSet, []model.Diagnostic) {
	set := make(OfferSet, len(raw))
	var diags []model.Diagnostic

	for _, o := range raw {
		if !orderable(o.AvailabilityCode) {
			continue
		}

		name := strings.TrimSpace(o.VendorName)
		switch {
		case name == "":
			diags = append(diags, model.Diagnostic{
				Code:   model.DiagInvalidOffer,
				ItemID: id,
				Detail: "offer without vendor name",
			})
			continue
		case o.Price == nil:
			diags = append(diags, model.Diagnostic{
				Code:   model.DiagInvalidOffer,
				ItemID: id,
				Detail: fmt.Sprintf("vendor %q has no price", name),
			})
			continue
		case o.Price.IsNegative():
			diags = append(diags, model.Diagnostic{
				Code:   model.DiagInvalidOffer,
				ItemID: id,
				Detail: fmt.Sprintf("vendor %q has negative price %s", name, o.Price),
			})
			continue
		}

		if prev, ok := set[name]; ok {
			diags = append(diags, model.Diagnostic{
				Code:   model.DiagDuplicateVendor,
				ItemID: id,
				Detail: fmt.Sprintf("vendor %q listed twice, %s replaced by %s", name, prev.Price, o.Price),
			})
		}
		set[name] = model.VendorOffer{
			Name:    name,
			Price:   *o.Price,
			Website: strings.TrimSpace(o.Website),
		}
	}

	if len(set) == 0 {
		diags = append(diags, model.Diagnostic{
			Code:   model.DiagNoOrderableOffers,
			ItemID: id,
			Detail: fmt.Sprintf("%d offers, none orderable", len(raw)),
		})
	}
	return set, diags
}
