// Package rank produces deterministic multi-key orderings of enriched
// records. Missing values always sort after present ones, in either
// direction, and every ordering ends in name and id tie-breaks.
package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/model"
)

// Key names a sortable record field.
type Key string

const (
	KeyRating      Key = "rating"
	KeyRatingCount Key = "rating_count"
	KeyLikes       Key = "likes"
	KeyPrice       Key = "price"
	KeyTHC         Key = "thc"
	KeyCBD         Key = "cbd"
	KeyName        Key = "name"
)

// Keys lists every key accepted by ParseKey.
var Keys = []Key{KeyRating, KeyRatingCount, KeyLikes, KeyPrice, KeyTHC, KeyCBD, KeyName}

// Direction is the sort direction of the primary and secondary keys.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseKey validates a key name.
func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Keys {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown rank key %q", model.ErrInvalidRequest, s)
}

// ParseDirection validates a direction. An empty string yields the
// key's default direction.
func ParseDirection(s string, key Key) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultDirection(key), nil
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", model.ErrInvalidRequest, s)
}

// DefaultDirection is the best-first direction of a key: cheapest first
// for price, alphabetical for name, highest first otherwise.
func DefaultDirection(key Key) Direction {
	switch key {
	case KeyPrice, KeyName:
		return Asc
	default:
		return Desc
	}
}

// Secondary returns the secondary key ranked under key, if any.
func Secondary(key Key) []Key {
	switch key {
	case KeyRating:
		return []Key{KeyRatingCount}
	case KeyLikes:
		return []Key{KeyRating}
	default:
		return nil
	}
}

// Result is a ranked view.
type Result struct {
	Records []model.EnrichedRecord
	// Diagnostics report records sharing an id. Such records are ranked
	// side by side, never merged.
	Diagnostics []model.Diagnostic
}

// Rank orders records by key and its secondary keys.
func Rank(records []model.EnrichedRecord, key Key, dir Direction) (Result, error) {
	return RankBy(records, dir, append([]Key{key}, Secondary(key)...)...)
}

// RankBy orders records by the given keys in order, all in direction dir,
// then by name case-insensitively ascending and finally by id. The input
// is not modified.
func RankBy(records []model.EnrichedRecord, dir Direction, keys ...Key) (Result, error) {
	if len(keys) == 0 {
		return Result{}, fmt.Errorf("%w: at least one rank key is required", model.ErrInvalidRequest)
	}
	for _, k := range keys {
		if _, err := ParseKey(string(k)); err != nil {
			return Result{}, err
		}
	}
	if dir != Asc && dir != Desc {
		return Result{}, fmt.Errorf("%w: unknown direction %q", model.ErrInvalidRequest, dir)
	}

	out := make([]model.EnrichedRecord, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		return compare(out[i], out[j], keys, dir) < 0
	})

	return Result{Records: out, Diagnostics: Duplicates(records)}, nil
}

func compare(a, b model.EnrichedRecord, keys []Key, dir Direction) int {
	for _, k := range keys {
		if c := compareKey(a, b, k, dir); c != 0 {
			return c
		}
	}
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// compareKey compares one key. Missing values sort last in both directions.
func compareKey(a, b model.EnrichedRecord, k Key, dir Direction) int {
	var c int
	switch k {
	case KeyName:
		c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case KeyPrice:
		pa, pb := a.EffectivePrice(), b.EffectivePrice()
		if n, done := nilsLast(pa == nil, pb == nil); done {
			return n
		}
		c = pa.Cmp(*pb)
	default:
		va, vb := number(a, k), number(b, k)
		if n, done := nilsLast(va == nil, vb == nil); done {
			return n
		}
		switch {
		case *va < *vb:
			c = -1
		case *va > *vb:
			c = 1
		}
	}
	if dir == Desc {
		return -c
	}
	return c
}

func nilsLast(aNil, bNil bool) (int, bool) {
	switch {
	case aNil && bNil:
		return 0, true
	case aNil:
		return 1, true
	case bNil:
		return -1, true
	}
	return 0, false
}

func number(r model.EnrichedRecord, k Key) *float64 {
	switch k {
	case KeyRating:
		return r.RatingScore
	case KeyRatingCount:
		return intValue(r.RatingCount)
	case KeyLikes:
		return intValue(r.Likes)
	case KeyTHC:
		return r.THC
	case KeyCBD:
		return r.CBD
	}
	return nil
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// Duplicates reports every id carried by more than one record.
func Duplicates(records []model.EnrichedRecord) []model.Diagnostic {
	seen := make(map[model.ItemID]string, len(records))
	reported := make(map[model.ItemID]bool)
	var diags []model.Diagnostic
	for _, r := range records {
		first, ok := seen[r.ID]
		if !ok {
			seen[r.ID] = r.Name
			continue
		}
		if reported[r.ID] {
			continue
		}
		reported[r.ID] = true
		diags = append(diags, model.Diagnostic{
			Code:   model.DiagDuplicateRecord,
			ItemID: r.ID,
			Detail: fmt.Sprintf("id shared by %q and %q", first, r.Name),
			Err:    model.ErrDataInvariant,
		})
	}
	return diags
}

