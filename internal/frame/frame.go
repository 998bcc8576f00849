// Package frame provides the time-indexed result tables produced by a
// simulation run and the per-equation series extracted from them.
package frame

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Frame is a table indexed by simulation time with one float64 column per
// equation. Column order is insertion order.
type Frame struct {
	index   []float64
	columns []string
	data    map[string][]float64
}

// New creates an empty frame over the given time index.
func New(index []float64) *Frame {
	idx := make([]float64, len(index))
	copy(idx, index)
	return &Frame{
		index: idx,
		data:  make(map[string][]float64),
	}
}

// Index returns a copy of the time index.
func (f *Frame) Index() []float64 {
	if f == nil {
		return nil
	}
	out := make([]float64, len(f.index))
	copy(out, f.index)
	return out
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.index)
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.columns))
	copy(out, f.columns)
	return out
}

// Has reports whether the frame contains column name.
func (f *Frame) Has(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.data[name]
	return ok
}

// Set stores values as column name, replacing an existing column in place.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("column %q has %d values, index has %d", name, len(values), len(f.index))
	}
	if _, ok := f.data[name]; !ok {
		f.columns = append(f.columns, name)
	}
	col := make([]float64, len(values))
	copy(col, values)
	f.data[name] = col
	return nil
}

// Join adds s as column name, aligning on time like an outer join: the
// index becomes the sorted union of both indexes and missing cells are NaN.
func (f *Frame) Join(name string, s Series) {
	if len(f.columns) == 0 {
		f.index = append([]float64(nil), s.Index...)
		f.columns = append(f.columns, name)
		f.data[name] = append([]float64(nil), s.Values...)
		return
	}

	if !sameIndex(f.index, s.Index) {
		f.reindex(unionIndex(f.index, s.Index))
	}

	if _, ok := f.data[name]; !ok {
		f.columns = append(f.columns, name)
	}
	f.data[name] = align(f.index, s)
}

func (f *Frame) reindex(index []float64) {
	for _, name := range f.columns {
		f.data[name] = align(index, Series{Index: f.index, Values: f.data[name]})
	}
	f.index = index
}

// align returns the values of s at each time of index, NaN where s has no
// point. The first point wins when s repeats a time, as in At.
func align(index []float64, s Series) []float64 {
	if sameIndex(index, s.Index) {
		return append([]float64(nil), s.Values...)
	}
	pos := make(map[float64]int, len(s.Index))
	for i, t := range s.Index {
		if _, ok := pos[t]; !ok {
			pos[t] = i
		}
	}
	col := make([]float64, len(index))
	for i, t := range index {
		col[i] = math.NaN()
		if j, ok := pos[t]; ok {
			col[i] = s.Values[j]
		}
	}
	return col
}

func sameIndex(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionIndex(a, b []float64) []float64 {
	seen := make(map[float64]bool, len(a)+len(b))
	out := make([]float64, 0, len(a)+len(b))
	for _, src := range [][]float64{a, b} {
		for _, t := range src {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Float64s(out)
	return out
}

// Series extracts column name.
func (f *Frame) Series(name string) (Series, bool) {
	if f == nil {
		return Series{}, false
	}
	col, ok := f.data[name]
	if !ok {
		return Series{}, false
	}
	return Series{Name: name, Index: f.Index(), Values: append([]float64(nil), col...)}, true
}

// Dict returns column -> time key -> value, the keyed-series shape used for
// step results.
func (f *Frame) Dict() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	if f == nil {
		return out
	}
	for _, name := range f.columns {
		s, _ := f.Series(name)
		out[name] = s.Dict()
	}
	return out
}

// Series is one equation's values over time.
type Series struct {
	Name   string
	Index  []float64
	Values []float64
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Values) }

// At returns the value at time t.
func (s Series) At(t float64) (float64, bool) {
	for i, x := range s.Index {
		if x == t {
			return s.Values[i], true
		}
	}
	return 0, false
}

// Dict converts the series to a plain time -> value mapping. Keys are the
// shortest decimal representation of the time value so the result encodes
// as a JSON object.
func (s Series) Dict() map[string]float64 {
	out := make(map[string]float64, len(s.Values))
	for i, t := range s.Index {
		out[FormatTime(t)] = s.Values[i]
	}
	return out
}

// MarshalJSON encodes the series as its Dict form.
func (s Series) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Dict())
}

// FormatTime renders a time index value as a mapping key.
func FormatTime(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
