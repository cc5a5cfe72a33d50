// Package graph holds the value model shared by the store backends and the
// preloader: rows keyed by column name and the opaque, ordered, hashable keys
// used to look rows up and to fan batch results back to their parents.
package graph

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/google/uuid"
)

// Key is a primary or foreign key value. Keys are normalized by Normalize so
// that equal database values compare equal with ==; in practice a Key is one of
// int64, uint64, float64, string, bool or uuid.UUID.
type Key = any

// Row is one materialized record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsNull reports whether k represents SQL NULL.
func IsNull(k Key) bool { return k == nil }

func rank(k Key) int {
	switch k.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, uint64, float64:
		return 2
	case string:
		return 3
	case uuid.UUID:
		return 4
	}
	return 5
}

// CompareKeys orders keys. Keys of different kinds order by kind (null, bool,
// number, string, uuid); numbers compare numerically across representations.
func CompareKeys(a, b Key) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case int64, uint64, float64:
		return compareNumbers(a, b)
	case string:
		return cmp.Compare(x, b.(string))
	case uuid.UUID:
		y := b.(uuid.UUID)
		return bytes.Compare(x[:], y[:])
	}
	return 0
}

func compareNumbers(a, b Key) int {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y)
		case uint64:
			if x < 0 {
				return -1
			}
			return cmp.Compare(uint64(x), y)
		case float64:
			return cmp.Compare(float64(x), y)
		}
	case uint64:
		switch y := b.(type) {
		case int64:
			return -compareNumbers(y, x)
		case uint64:
			return cmp.Compare(x, y)
		case float64:
			return cmp.Compare(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, float64(y))
		case uint64:
			return cmp.Compare(x, float64(y))
		case float64:
			return cmp.Compare(x, y)
		}
	}
	return 0
}

// SortedUniqueKeys returns keys sorted by CompareKeys with duplicates and nulls
// removed. The input is not modified.
func SortedUniqueKeys(keys []Key) []Key {
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if !IsNull(k) {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, CompareKeys)
	return slices.CompactFunc(out, func(a, b Key) bool { return CompareKeys(a, b) == 0 })
}
