// Package catalog resolves product and category references against the remote
// catalog, its cache, and the static local catalog.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref identifies a catalog entry either by a legacy positional composite or by
// a canonical tagged id. Implemented by LegacyRef and CanonicalRef only.
type Ref interface {
	isRef()
	String() string
}

// LegacyRef is the old "{category}_{index}" composite, 1-based within the category.
type LegacyRef struct {
	Category string
	Index    int
}

func (LegacyRef) isRef() {}

func (r LegacyRef) String() string {
	return fmt.Sprintf("%s_%d", r.Category, r.Index)
}

// RefKind is the entity a canonical id names.
type RefKind string

const (
	KindProduct  RefKind = "prod"
	KindCategory RefKind = "cat"
)

// CanonicalRef is a "{kind}_{id}" tagged reference.
type CanonicalRef struct {
	Kind RefKind
	ID   string
}

func (CanonicalRef) isRef() {}

func (r CanonicalRef) String() string {
	return string(r.Kind) + "_" + r.ID
}

// ProductRef is shorthand for a canonical product reference.
func ProductRef(id string) CanonicalRef {
	return CanonicalRef{Kind: KindProduct, ID: id}
}

// ParseRef reads a reference. Canonical tags win over the legacy reading, so
// "cat_2" is category "2", not position 2 of category "cat".
func ParseRef(s string) (Ref, bool) {
	for _, kind := range []RefKind{KindProduct, KindCategory} {
		if id, ok := strings.CutPrefix(s, string(kind)+"_"); ok && id != "" {
			return CanonicalRef{Kind: kind, ID: id}, true
		}
	}
	if r, ok := ParseLegacy(s); ok {
		return r, true
	}
	return nil, false
}

// ParseLegacy reads "{category}_{index}" where index is a positive integer.
// The category may itself contain underscores; the index is the last segment.
func ParseLegacy(s string) (LegacyRef, bool) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return LegacyRef{}, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 1 {
		return LegacyRef{}, false
	}
	return LegacyRef{Category: s[:i], Index: n}, true
}
