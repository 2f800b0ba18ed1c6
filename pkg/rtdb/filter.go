package rtdb

import (
	"fmt"
	"strconv"

	"github.com/Skycoder42/firebox/internal/httpx"
)

// Param is a single query parameter contributed by a Filter.
type Param struct {
	Key   string
	Value string
}

// Filter is an ordered set of query constraints on child keys or values.
// Build one with an OrderBy constructor and chain range and limit methods:
//
//	rtdb.OrderByChild("age").StartAt(18).LimitToFirst(10)
//
// Values passed to range methods are JSON-encoded. The first encoding
// failure is kept and reported by Err.
type Filter struct {
	params []Param
	err    error
}

// OrderByKey orders children by their keys.
func OrderByKey() *Filter { return newFilter("$key") }

// OrderByValue orders children by their values.
func OrderByValue() *Filter { return newFilter("$value") }

// OrderByPriority orders children by priority.
func OrderByPriority() *Filter { return newFilter("$priority") }

// OrderByChild orders children by the value at the given child path.
func OrderByChild(path string) *Filter { return newFilter(path) }

func newFilter(orderBy string) *Filter {
	f := &Filter{}
	f.setJSON(QueryOrderBy, orderBy)
	return f
}

// LimitToFirst keeps the first n children in order.
func (f *Filter) LimitToFirst(n int) *Filter { return f.set(QueryLimitToFirst, strconv.Itoa(n)) }

// LimitToLast keeps the last n children in order.
func (f *Filter) LimitToLast(n int) *Filter { return f.set(QueryLimitToLast, strconv.Itoa(n)) }

// StartAt keeps children ordered at or after v.
func (f *Filter) StartAt(v any) *Filter { return f.setJSON(QueryStartAt, v) }

// StartAfter keeps children ordered strictly after v.
func (f *Filter) StartAfter(v any) *Filter { return f.setJSON(QueryStartAfter, v) }

// EndAt keeps children ordered at or before v.
func (f *Filter) EndAt(v any) *Filter { return f.setJSON(QueryEndAt, v) }

// EndBefore keeps children ordered strictly before v.
func (f *Filter) EndBefore(v any) *Filter { return f.setJSON(QueryEndBefore, v) }

// EqualTo keeps children ordered equal to v.
func (f *Filter) EqualTo(v any) *Filter { return f.setJSON(QueryEqualTo, v) }

// Params returns a copy of the parameters in insertion order.
func (f *Filter) Params() []Param {
	if f == nil {
		return nil
	}
	return append([]Param(nil), f.params...)
}

// Err reports the first value that could not be encoded.
func (f *Filter) Err() error {
	if f == nil {
		return nil
	}
	return f.err
}

func (f *Filter) setJSON(key string, v any) *Filter {
	data, err := httpx.MarshalJSON(v)
	if err != nil {
		if f.err == nil {
			f.err = fmt.Errorf("rtdb: encode filter %s: %w", key, err)
		}
		return f
	}
	return f.set(key, string(data))
}

func (f *Filter) set(key, value string) *Filter {
	for i := range f.params {
		if f.params[i].Key == key {
			f.params[i].Value = value
			return f
		}
	}
	f.params = append(f.params, Param{Key: key, Value: value})
	return f
}
