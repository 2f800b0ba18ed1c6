package mock

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Skycoder42/firebox/pkg/rtdb"
)

type orderKind int

const (
	orderByKey orderKind = iota
	orderByValue
	orderByChild
	orderByPriority
)

type bound struct {
	value     any
	exclusive bool
}

type query struct {
	order      orderKind
	child      []string
	limitFirst int
	limitLast  int
	start      *bound
	end        *bound
}

var errOrderByRequired = errors.New("orderBy must be defined when other query parameters are defined")

var filterKeys = []string{
	rtdb.QueryLimitToFirst,
	rtdb.QueryLimitToLast,
	rtdb.QueryStartAt,
	rtdb.QueryStartAfter,
	rtdb.QueryEndAt,
	rtdb.QueryEndBefore,
	rtdb.QueryEqualTo,
}

// parseQuery extracts the ordering and filter parameters. It returns nil when
// the request carries no orderBy.
func parseQuery(values url.Values) (*query, error) {
	rawOrder := values.Get(rtdb.QueryOrderBy)
	if rawOrder == "" {
		for _, key := range filterKeys {
			if values.Has(key) {
				return nil, errOrderByRequired
			}
		}
		return nil, nil
	}

	var order string
	if err := json.Unmarshal([]byte(rawOrder), &order); err != nil {
		return nil, fmt.Errorf("orderBy must be a valid JSON encoded path")
	}
	q := &query{}
	switch order {
	case "$key":
		q.order = orderByKey
	case "$value":
		q.order = orderByValue
	case "$priority":
		q.order = orderByPriority
	default:
		q.order = orderByChild
		q.child = splitPath(order)
	}

	var err error
	if q.limitFirst, err = parseLimit(values, rtdb.QueryLimitToFirst); err != nil {
		return nil, err
	}
	if q.limitLast, err = parseLimit(values, rtdb.QueryLimitToLast); err != nil {
		return nil, err
	}
	if q.limitFirst > 0 && q.limitLast > 0 {
		return nil, fmt.Errorf("limitToFirst and limitToLast cannot both be set")
	}

	for _, rp := range []struct {
		key       string
		exclusive bool
		target    **bound
	}{
		{rtdb.QueryStartAt, false, &q.start},
		{rtdb.QueryStartAfter, true, &q.start},
		{rtdb.QueryEndAt, false, &q.end},
		{rtdb.QueryEndBefore, true, &q.end},
	} {
		if !values.Has(rp.key) {
			continue
		}
		if *rp.target != nil {
			return nil, fmt.Errorf("%s conflicts with another range parameter", rp.key)
		}
		v, err := parseBound(values.Get(rp.key), rp.key)
		if err != nil {
			return nil, err
		}
		*rp.target = &bound{value: v, exclusive: rp.exclusive}
	}
	if values.Has(rtdb.QueryEqualTo) {
		if q.start != nil || q.end != nil {
			return nil, fmt.Errorf("equalTo cannot be combined with range parameters")
		}
		v, err := parseBound(values.Get(rtdb.QueryEqualTo), rtdb.QueryEqualTo)
		if err != nil {
			return nil, err
		}
		q.start = &bound{value: v}
		q.end = &bound{value: v}
	}
	return q, nil
}

func parseLimit(values url.Values, key string) (int, error) {
	if !values.Has(key) {
		return 0, nil
	}
	n, err := strconv.Atoi(values.Get(key))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func parseBound(raw, key string) (any, error) {
	v, err := decodeValue([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%s must be a valid JSON value", key)
	}
	if _, ok := v.(map[string]any); ok {
		return nil, fmt.Errorf("%s must be a primitive", key)
	}
	return v, nil
}

type child struct {
	key   string
	value any
	ord   any
}

// apply orders the children of v and keeps those inside the window. The
// result is a plain object, so the ordering itself is not observable.
func (q *query) apply(v any) any {
	m, ok := v.(map[string]any)
	if !ok || q == nil {
		return v
	}

	children := make([]child, 0, len(m))
	for k, cv := range m {
		c := child{key: k, value: cv}
		switch q.order {
		case orderByValue:
			c.ord = cv
		case orderByChild:
			c.ord = getAt(cv, q.child)
		}
		children = append(children, c)
	}
	slices.SortFunc(children, q.compare)

	kept := children[:0]
	for _, c := range children {
		if q.start != nil {
			cmp := q.compareBound(c, q.start.value)
			if cmp < 0 || (cmp == 0 && q.start.exclusive) {
				continue
			}
		}
		if q.end != nil {
			cmp := q.compareBound(c, q.end.value)
			if cmp > 0 || (cmp == 0 && q.end.exclusive) {
				continue
			}
		}
		kept = append(kept, c)
	}
	if q.limitFirst > 0 && len(kept) > q.limitFirst {
		kept = kept[:q.limitFirst]
	}
	if q.limitLast > 0 && len(kept) > q.limitLast {
		kept = kept[len(kept)-q.limitLast:]
	}

	out := make(map[string]any, len(kept))
	for _, c := range kept {
		out[c.key] = c.value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (q *query) compare(a, b child) int {
	if q.order == orderByValue || q.order == orderByChild {
		if c := compareValues(a.ord, b.ord); c != 0 {
			return c
		}
	}
	return compareKeys(a.key, b.key)
}

func (q *query) compareBound(c child, b any) int {
	if q.order == orderByKey || q.order == orderByPriority {
		return compareKeys(c.key, keyString(b))
	}
	return compareValues(c.ord, b)
}

func keyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// compareKeys sorts keys that parse as 32-bit integers numerically ahead of
// all other keys, which sort lexicographically.
func compareKeys(a, b string) int {
	ai, aInt := intKey(a)
	bi, bInt := intKey(b)
	switch {
	case aInt && bInt:
		return cmp.Compare(ai, bi)
	case aInt:
		return -1
	case bInt:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func intKey(k string) (int64, bool) {
	n, err := strconv.ParseInt(k, 10, 64)
	if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return n, true
}

// compareValues orders null, false, true, numbers, strings and then objects.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch at := a.(type) {
	case bool:
		bt := b.(bool)
		switch {
		case at == bt:
			return 0
		case !at:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(at, b.(float64))
	case string:
		return strings.Compare(at, b.(string))
	default:
		return 0
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
