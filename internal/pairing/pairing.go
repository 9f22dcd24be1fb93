// Package pairing matches base and improved image listings by derived key.
package pairing

import (
	"context"
	"sort"
	"strings"

	"github.com/anime-shed/image-eval-go/internal/storage"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

// Default name markers: "cat_base.png" and "cat_improved.png" share the key "cat"
const (
	BaseMarker     = "_base"
	ImprovedMarker = "_improved"
)

// CollisionPolicy decides which name keeps a key claimed by several names
// on the same side. Names are visited in ascending order.
type CollisionPolicy int

const (
	// LastEntryWins keeps the lexicographically greatest name
	LastEntryWins CollisionPolicy = iota
	// FirstEntryWins keeps the lexicographically smallest name
	FirstEntryWins
)

// Collision records a name that lost its key to another name on the same side
type Collision struct {
	Side    string `json:"side"`
	Key     string `json:"key"`
	Kept    string `json:"kept"`
	Dropped string `json:"dropped"`
}

// Result is the outcome of pairing two listings
type Result struct {
	Pairs             []models.ImagePair
	UnmatchedBase     []string
	UnmatchedImproved []string
	Collisions        []Collision
}

// Unmatched returns every name that found no partner, base side first
func (r Result) Unmatched() []string {
	out := make([]string, 0, len(r.UnmatchedBase)+len(r.UnmatchedImproved))
	out = append(out, r.UnmatchedBase...)
	return append(out, r.UnmatchedImproved...)
}

// DeriveKey truncates name at the first occurrence of marker. A name without
// the marker is its own key.
func DeriveKey(name, marker string) string {
	if i := strings.Index(name, marker); i >= 0 {
		return name[:i]
	}
	return name
}

// Resolver pairs listings
type Resolver struct {
	Policy         CollisionPolicy
	BaseMarker     string
	ImprovedMarker string
}

// NewResolver returns a resolver with the default markers and last-entry-wins
func NewResolver() *Resolver {
	return &Resolver{
		Policy:         LastEntryWins,
		BaseMarker:     BaseMarker,
		ImprovedMarker: ImprovedMarker,
	}
}

// Resolve pairs names with the default resolver
func Resolve(baseNames, improvedNames []string) Result {
	return NewResolver().Resolve(baseNames, improvedNames)
}

// Resolve derives a key for every name, applies the collision policy per
// side and returns the pairs whose key appears on both sides, in ascending
// key order. Input order does not matter.
func (r *Resolver) Resolve(baseNames, improvedNames []string) Result {
	var result Result
	baseByKey := r.index("base", baseNames, r.BaseMarker, &result)
	improvedByKey := r.index("improved", improvedNames, r.ImprovedMarker, &result)

	keys := make([]string, 0, len(baseByKey))
	for k := range baseByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		improved, ok := improvedByKey[k]
		if !ok {
			result.UnmatchedBase = append(result.UnmatchedBase, baseByKey[k])
			continue
		}
		result.Pairs = append(result.Pairs, models.ImagePair{Key: k, Base: baseByKey[k], Improved: improved})
	}

	var onlyImproved []string
	for k := range improvedByKey {
		if _, ok := baseByKey[k]; !ok {
			onlyImproved = append(onlyImproved, k)
		}
	}
	sort.Strings(onlyImproved)
	for _, k := range onlyImproved {
		result.UnmatchedImproved = append(result.UnmatchedImproved, improvedByKey[k])
	}
	return result
}

func (r *Resolver) index(side string, names []string, marker string, result *Result) map[string]string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	byKey := make(map[string]string, len(sorted))
	for _, name := range sorted {
		key := DeriveKey(name, marker)
		prev, exists := byKey[key]
		if !exists {
			byKey[key] = name
			continue
		}
		if prev == name {
			continue
		}
		switch r.Policy {
		case FirstEntryWins:
			result.Collisions = append(result.Collisions, Collision{Side: side, Key: key, Kept: prev, Dropped: name})
		default:
			byKey[key] = name
			result.Collisions = append(result.Collisions, Collision{Side: side, Key: key, Kept: name, Dropped: prev})
		}
	}
	return byKey
}

// ResolveSources lists both sources and pairs them. Listing failures, such
// as a missing directory, are returned as-is with no partial result.
func (r *Resolver) ResolveSources(ctx context.Context, base, improved storage.Source) (Result, error) {
	baseNames, err := base.List(ctx)
	if err != nil {
		return Result{}, err
	}
	improvedNames, err := improved.List(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.Resolve(baseNames, improvedNames), nil
}
