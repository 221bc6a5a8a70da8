package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// All is the sentinel filter value meaning "no constraint".
const All = "all"

// Params drives a derived view. The zero value selects everything in
// insertion order.
type Params struct {
	// Search is matched case-insensitively against the schema search fields.
	Search string
	// AnyOf holds OR'd substring terms matched against any element of a field.
	AnyOf []Match
	// Filters are exact or set-membership predicates.
	Filters []Filter
	// Ranges are inclusive numeric bounds.
	Ranges []Range
	Sort   Sort
	// Locale overrides Schema.Locale for text collation when set.
	Locale language.Tag
}

// Match passes when any element of Field contains any of Terms.
type Match struct {
	Field string
	Terms []string
}

// Filter passes when Field equals one of Values. Empty values and "all"
// impose no constraint.
type Filter struct {
	Field  string
	Values []string
}

// Range passes when Min <= Field <= Max; a nil bound is open.
type Range struct {
	Field string
	Min   *float64
	Max   *float64
}

// Sort orders the view by Field. An empty or unknown field keeps insertion
// order.
type Sort struct {
	Field string
	Desc  bool
}

// active returns the values that actually constrain.
func (f Filter) active() []string {
	var out []string
	for _, v := range f.Values {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, All) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (m Match) active() []string {
	var out []string
	for _, t := range m.Terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseParams reads query parameters from url values:
//
//	q=<text>            free-text search
//	sort=<field>        sort field
//	dir=asc|desc        sort direction
//	f.<field>=a,b       set membership filter
//	any.<field>=a,b     OR'd substring terms
//	min.<field>=n       lower bound
//	max.<field>=n       upper bound
//
// Malformed numeric bounds are ignored.
func ParseParams(v url.Values) Params {
	p := Params{
		Search: v.Get("q"),
		Sort: Sort{
			Field: v.Get("sort"),
			Desc:  strings.EqualFold(v.Get("dir"), "desc"),
		},
	}

	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ranges := map[string]*Range{}
	var rangeOrder []string
	bound := func(field string) *Range {
		r, ok := ranges[field]
		if !ok {
			r = &Range{Field: field}
			ranges[field] = r
			rangeOrder = append(rangeOrder, field)
		}
		return r
	}

	for _, k := range keys {
		prefix, field, ok := strings.Cut(k, ".")
		if !ok || field == "" {
			continue
		}
		switch prefix {
		case "f":
			p.Filters = append(p.Filters, Filter{Field: field, Values: splitValues(v[k])})
		case "any":
			p.AnyOf = append(p.AnyOf, Match{Field: field, Terms: splitValues(v[k])})
		case "min", "max":
			n, err := strconv.ParseFloat(strings.TrimSpace(v.Get(k)), 64)
			if err != nil {
				continue
			}
			r := bound(field)
			if prefix == "min" {
				r.Min = &n
			} else {
				r.Max = &n
			}
		}
	}
	for _, f := range rangeOrder {
		p.Ranges = append(p.Ranges, *ranges[f])
	}
	return p
}

func splitValues(raw []string) []string {
	var out []string
	for _, r := range raw {
		out = append(out, strings.Split(r, ",")...)
	}
	return out
}

// Float is a convenience for building Range bounds.
func Float(n float64) *float64 { return &n }

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
