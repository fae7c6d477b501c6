package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/antzucaro/matchr"
)

// Suggestion tuning for unknown names.
const (
	maxSuggestions      = 3
	suggestionThreshold = 0.75
)

// NotFoundError is returned when a name matches no catalog item.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%q: %v", e.Name, model.ErrNotFound)
	}
	return fmt.Sprintf("%q: %v (did you mean %s?)", e.Name, model.ErrNotFound, strings.Join(quote(e.Suggestions), ", "))
}

// Unwrap allows errors.Is(err, model.ErrNotFound).
func (e *NotFoundError) Unwrap() error {
	return model.ErrNotFound
}

// AmbiguousNameError is returned when one name maps to several ids.
type AmbiguousNameError struct {
	Name string
	IDs  []model.ItemID
}

// Error implements the error interface.
func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("%q matches %d items %v: %v", e.Name, len(e.IDs), e.IDs, model.ErrDataInvariant)
}

// Unwrap allows errors.Is(err, model.ErrDataInvariant).
func (e *AmbiguousNameError) Unwrap() error {
	return model.ErrDataInvariant
}

// Resolve finds the record whose name equals name, ignoring case and
// surrounding whitespace. A name shared by several distinct ids is never
// resolved to an arbitrary one.
func Resolve(records []model.EnrichedRecord, name string) (model.EnrichedRecord, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return model.EnrichedRecord{}, fmt.Errorf("%w: empty name", model.ErrInvalidRequest)
	}

	var match model.EnrichedRecord
	var ids []model.ItemID
	for _, r := range records {
		if strings.ToLower(strings.TrimSpace(r.Name)) != want {
			continue
		}
		if len(ids) > 0 && containsID(ids, r.ID) {
			continue
		}
		ids = append(ids, r.ID)
		match = r
	}

	switch len(ids) {
	case 0:
		return model.EnrichedRecord{}, &NotFoundError{Name: name, Suggestions: Suggest(records, name)}
	case 1:
		return match, nil
	default:
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return model.EnrichedRecord{}, &AmbiguousNameError{Name: name, IDs: ids}
	}
}

// ResolveRefs turns each reference into an item id. A reference made only
// of digits is taken as an id and must exist in records; anything else is
// resolved by name.
func ResolveRefs(records []model.EnrichedRecord, refs []string) ([]model.ItemID, error) {
	ids := make([]model.ItemID, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if n, err := strconv.ParseInt(ref, 10, 64); err == nil {
			if !hasID(records, model.ItemID(n)) {
				return nil, &NotFoundError{Name: ref}
			}
			ids = append(ids, model.ItemID(n))
			continue
		}
		r, err := Resolve(records, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Suggest returns up to three catalog names most similar to name by
// Jaro-Winkler similarity.
func Suggest(records []model.EnrichedRecord, name string) []string {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return nil
	}

	type candidate struct {
		name  string
		score float64
	}
	seen := make(map[string]struct{}, len(records))
	var candidates []candidate
	for _, r := range records {
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}

		score := matchr.JaroWinkler(want, strings.ToLower(r.Name), false)
		if score >= suggestionThreshold {
			candidates = append(candidates, candidate{name: r.Name, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return strings.ToLower(candidates[i].name) < strings.ToLower(candidates[j].name)
	})
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

func containsID(ids []model.ItemID, id model.ItemID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func hasID(records []model.EnrichedRecord, id model.ItemID) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

func quote(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strconv.Quote(s)
	}
	return out
}
