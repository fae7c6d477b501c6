package model

import "fmt"

// DiagnosticCode names why a result is partial.
type DiagnosticCode string

const (
	// DiagPageFailed: a listing page failed and paging stopped there.
	DiagPageFailed DiagnosticCode = "page_failed"
	// DiagPageLimit: paging stopped at the configured page cap.
	DiagPageLimit DiagnosticCode = "page_limit"
	// DiagEntriesSkipped: listing entries without id or slug were dropped.
	DiagEntriesSkipped DiagnosticCode = "entries_skipped"
	// DiagDetailFailed: an item kept unknown detail fields.
	DiagDetailFailed DiagnosticCode = "detail_failed"
	// DiagVendorFetchFailed: an item's offers could not be fetched.
	DiagVendorFetchFailed DiagnosticCode = "vendor_fetch_failed"
	// DiagNoOrderableOffers: an item has no offer passing the availability predicate.
	DiagNoOrderableOffers DiagnosticCode = "no_orderable_offers"
	// DiagInvalidOffer: an offer without vendor name or with a missing or negative price.
	DiagInvalidOffer DiagnosticCode = "invalid_offer"
	// DiagDuplicateVendor: a vendor listed an item more than once.
	DiagDuplicateVendor DiagnosticCode = "duplicate_vendor"
	// DiagDuplicateRecord: two records share one id.
	DiagDuplicateRecord DiagnosticCode = "duplicate_record"
	// DiagCancelled: the operation stopped early on cancellation.
	DiagCancelled DiagnosticCode = "cancelled"
)

// Diagnostic explains one degradation of a result.
type Diagnostic struct {
	Code   DiagnosticCode `json:"code"`
	ItemID ItemID         `json:"item_id,omitempty"`
	Page   int            `json:"page,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Err    error          `json:"-"`
}

// String renders the diagnostic for humans.
func (d Diagnostic) String() string {
	s := string(d.Code)
	if d.ItemID != 0 {
		s += fmt.Sprintf(" item=%d", d.ItemID)
	}
	if d.Page != 0 {
		s += fmt.Sprintf(" page=%d", d.Page)
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	if d.Err != nil {
		s += ": " + d.Err.Error()
	}
	return s
}

// Outcome distinguishes complete results from partial ones. Hard failures
// are reported as errors and never carry an Outcome.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
)

// OutcomeOf reports partial whenever diagnostics exist.
func OutcomeOf(diags []Diagnostic) Outcome {
	if len(diags) > 0 {
		return OutcomePartial
	}
	return OutcomeComplete
}

// DiagnosticsFor filters diagnostics by item.
func DiagnosticsFor(diags []Diagnostic, id ItemID) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.ItemID == id {
			out = append(out, d)
		}
	}
	return out
}
