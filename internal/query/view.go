package query

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Apply returns the items satisfying every active predicate of p, ordered by
// p.Sort. Ties keep insertion order; a descending sort is the exact reverse
// of the ascending one. Entities lacking a filtered field are excluded.
func Apply[T any](items []T, schema Schema[T], p Params) []T {
	type row struct {
		idx  int
		item T
	}
	rows := make([]row, 0, len(items))
	for i, it := range items {
		if matches(it, schema, p) {
			rows = append(rows, row{i, it})
		}
	}

	if field, ok := schema.Fields[p.Sort.Field]; ok && p.Sort.Field != "" {
		tag := schema.Locale
		if p.Locale != language.Und {
			tag = p.Locale
		}
		coll := collate.New(tag)
		keyed := make([]sortKey, len(rows))
		for i, r := range rows {
			keyed[i] = makeKey(field, r.item, r.idx)
		}
		order := make([]int, len(rows))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			c := compareKeys(coll, field.Kind, keyed[a], keyed[b])
			if p.Sort.Desc {
				return -c
			}
			return c
		})
		sorted := make([]row, len(rows))
		for i, o := range order {
			sorted[i] = rows[o]
		}
		rows = sorted
	}

	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out
}

// Page slices a view for callers that paginate. A non-positive limit means
// no limit.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func matches[T any](it T, schema Schema[T], p Params) bool {
	if term := strings.TrimSpace(p.Search); term != "" {
		found := false
		for _, name := range schema.Search {
			if f, ok := schema.Fields[name]; ok && containsFold(f.values(it), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, m := range p.AnyOf {
		terms := m.active()
		if len(terms) == 0 {
			continue
		}
		f, ok := schema.Fields[m.Field]
		if !ok {
			return false
		}
		vals := f.values(it)
		if !slices.ContainsFunc(terms, func(t string) bool { return containsFold(vals, t) }) {
			return false
		}
	}

	for _, flt := range p.Filters {
		want := flt.active()
		if len(want) == 0 {
			continue
		}
		f, ok := schema.Fields[flt.Field]
		if !ok || !memberOf(f, it, want) {
			return false
		}
	}

	for _, r := range p.Ranges {
		if r.Min == nil && r.Max == nil {
			continue
		}
		f, ok := schema.Fields[r.Field]
		if !ok || f.Number == nil {
			return false
		}
		n, ok := f.Number(it)
		if !ok {
			return false
		}
		if r.Min != nil && n < *r.Min {
			return false
		}
		if r.Max != nil && n > *r.Max {
			return false
		}
	}
	return true
}

func memberOf[T any](f Field[T], it T, want []string) bool {
	if f.Kind == KindNumber && f.Number != nil {
		n, ok := f.Number(it)
		if !ok {
			return false
		}
		for _, w := range want {
			if x, err := strconv.ParseFloat(w, 64); err == nil && x == n {
				return true
			}
		}
		return false
	}
	for _, v := range f.values(it) {
		for _, w := range want {
			if strings.EqualFold(v, w) {
				return true
			}
		}
	}
	return false
}

type sortKey struct {
	idx     int
	present bool
	str     string
	num     float64
}

func makeKey[T any](f Field[T], it T, idx int) sortKey {
	k := sortKey{idx: idx}
	if f.Kind == KindNumber && f.Number != nil {
		k.num, k.present = f.Number(it)
		return k
	}
	if vals := f.values(it); len(vals) > 0 {
		k.str = strings.Join(vals, ", ")
		k.present = true
	}
	return k
}

// compareKeys orders present values before absent ones and breaks ties by
// insertion index, so the result is a strict total order.
func compareKeys(coll *collate.Collator, kind Kind, a, b sortKey) int {
	switch {
	case a.present && !b.present:
		return -1
	case !a.present && b.present:
		return 1
	case a.present && b.present:
		var c int
		switch kind {
		case KindNumber:
			c = cmp.Compare(a.num, b.num)
		case KindDate:
			c = strings.Compare(a.str, b.str)
		default:
			c = coll.CompareString(a.str, b.str)
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(a.idx, b.idx)
}
