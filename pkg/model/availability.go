package model

// AvailabilityPredicate decides whether an availability code means the
// offer can currently be ordered.
type AvailabilityPredicate func(code int) bool

// DefaultOrderableCodes are the codes flowzz uses for orderable offers.
// Their exact meaning is undocumented upstream, so they stay configurable.
var DefaultOrderableCodes = []int{1, 2}

// OrderableCodes builds a predicate accepting exactly the given codes.
func OrderableCodes(codes ...int) AvailabilityPredicate {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(code int) bool {
		_, ok := set[code]
		return ok
	}
}
