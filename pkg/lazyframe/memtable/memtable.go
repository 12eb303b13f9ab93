// Package memtable is the reference LazyFrameHandle backend: a small,
// fully in-memory columnar engine. It exists so the graph engine can be
// exercised end to end without an external lazy-dataframe dependency; a
// production deployment swaps it for a different lazyframe.Handle
// implementation without the graph package noticing, since the graph
// only ever talks to the Handle interface.
package memtable

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"github.com/flowfile/flowfile/pkg/exprcache"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// Backend owns the shared expression cache used by every Handle it
// produces, so filter/formula predicates compile once across a run.
type Backend struct {
	cache *exprcache.Cache
}

// NewBackend constructs a Backend with a fresh expression cache.
func NewBackend() *Backend {
	return &Backend{cache: exprcache.New(256)}
}

// FromRows builds a root Handle over already-materialized rows, the
// entry point for a read-style node kind once it has loaded data.
func (b *Backend) FromRows(sch schema.Schema, rows []map[string]any) lazyframe.Handle {
	return &handle{backend: b, sch: sch.Clone(), rows: rows, identity: identityOf(sch, rows)}
}

type handle struct {
	backend  *Backend
	sch      schema.Schema
	rows     []map[string]any
	identity string
}

func identityOf(sch schema.Schema, rows []map[string]any) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(sch)
	_ = enc.Encode(rows)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (h *handle) Schema() schema.Schema { return h.sch.Clone() }
func (h *handle) Identity() string      { return h.identity }

func (h *handle) derive(sch schema.Schema, rows []map[string]any) lazyframe.Handle {
	return &handle{backend: h.backend, sch: sch, rows: rows, identity: identityOf(sch, rows)}
}

func cloneRow(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (h *handle) Select(cols []string) (lazyframe.Handle, error) {
	newSchema := make(schema.Schema, 0, len(cols))
	for _, c := range cols {
		f, ok := h.sch.Field(c)
		if !ok {
			return nil, fmt.Errorf("select: unknown column %q", c)
		}
		newSchema = append(newSchema, f)
	}
	rows := make([]map[string]any, len(h.rows))
	for i, r := range h.rows {
		nr := make(map[string]any, len(cols))
		for _, c := range cols {
			nr[c] = r[c]
		}
		rows[i] = nr
	}
	return h.derive(newSchema, rows), nil
}

func (h *handle) Rename(mapping map[string]string) (lazyframe.Handle, error) {
	newSchema := make(schema.Schema, len(h.sch))
	for i, f := range h.sch {
		nf := f
		if to, ok := mapping[f.Name]; ok {
			nf.Name = to
		}
		newSchema[i] = nf
	}
	rows := make([]map[string]any, len(h.rows))
	for i, r := range h.rows {
		nr := cloneRow(r)
		for from, to := range mapping {
			if v, ok := nr[from]; ok {
				delete(nr, from)
				nr[to] = v
			}
		}
		rows[i] = nr
	}
	return h.derive(newSchema, rows), nil
}

func (h *handle) Filter(predicate string) (lazyframe.Handle, error) {
	out := make([]map[string]any, 0, len(h.rows))
	for _, r := range h.rows {
		ok, err := h.backend.cache.EvalPredicate(predicate, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return h.derive(h.sch.Clone(), out), nil
}

func (h *handle) WithColumns(exprs map[string]string) (lazyframe.Handle, error) {
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)

	newSchema := h.sch.Clone()
	rows := make([]map[string]any, len(h.rows))
	for i, r := range h.rows {
		nr := cloneRow(r)
		for _, name := range names {
			v, err := h.backend.cache.EvalExpr(exprs[name], r)
			if err != nil {
				return nil, err
			}
			nr[name] = v
		}
		rows[i] = nr
	}
	for _, name := range names {
		t := inferType(rows, name)
		if f, ok := newSchema.Field(name); ok {
			f.Type = t
			for idx := range newSchema {
				if newSchema[idx].Name == name {
					newSchema[idx] = f
				}
			}
		} else {
			newSchema = append(newSchema, schema.Field{Name: name, Type: t})
		}
	}
	return h.derive(newSchema, rows), nil
}

func inferType(rows []map[string]any, col string) schema.LogicalType {
	for _, r := range rows {
		switch r[col].(type) {
		case int, int64:
			return schema.Int64
		case float64, float32:
			return schema.Float64
		case bool:
			return schema.Bool
		case string:
			return schema.String
		case nil:
			continue
		}
	}
	return schema.Unknown
}

func (h *handle) Sort(keys []lazyframe.SortKey) (lazyframe.Handle, error) {
	rows := make([]map[string]any, len(h.rows))
	copy(rows, h.rows)
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.Column], rows[j][k.Column])
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return h.derive(h.sch.Clone(), rows), nil
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func (h *handle) GroupBy(keys []string, aggs []lazyframe.AggExpr) (lazyframe.Handle, error) {
	type group struct {
		keyVals []any
		rows    []map[string]any
	}
	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, r := range h.rows {
		kv := make([]any, len(keys))
		for i, k := range keys {
			kv[i] = r[k]
		}
		gk := fmt.Sprintf("%v", kv)
		g, ok := groups[gk]
		if !ok {
			g = &group{keyVals: kv}
			groups[gk] = g
			order = append(order, gk)
		}
		g.rows = append(g.rows, r)
	}

	newSchema := make(schema.Schema, 0, len(keys)+len(aggs))
	for _, k := range keys {
		f, _ := h.sch.Field(k)
		newSchema = append(newSchema, f)
	}
	for _, a := range aggs {
		t := schema.Float64
		if a.Aggregator == lazyframe.AggCount || a.Aggregator == lazyframe.AggNUnique {
			t = schema.Int64
		} else if a.Aggregator == lazyframe.AggFirst || a.Aggregator == lazyframe.AggLast || a.Aggregator == lazyframe.AggConcat {
			if f, ok := h.sch.Field(a.Column); ok {
				t = f.Type
			}
		}
		newSchema = append(newSchema, schema.Field{Name: a.OutputName, Type: t})
	}

	rows := make([]map[string]any, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		nr := make(map[string]any, len(keys)+len(aggs))
		for i, k := range keys {
			nr[k] = g.keyVals[i]
		}
		for _, a := range aggs {
			nr[a.OutputName] = aggregate(a.Aggregator, a.Column, g.rows)
		}
		rows = append(rows, nr)
	}
	return h.derive(newSchema, rows), nil
}

func aggregate(agg lazyframe.Aggregation, col string, rows []map[string]any) any {
	switch agg {
	case lazyframe.AggCount:
		return int64(len(rows))
	case lazyframe.AggNUnique:
		seen := map[string]struct{}{}
		for _, r := range rows {
			seen[fmt.Sprintf("%v", r[col])] = struct{}{}
		}
		return int64(len(seen))
	case lazyframe.AggFirst:
		if len(rows) == 0 {
			return nil
		}
		return rows[0][col]
	case lazyframe.AggLast:
		if len(rows) == 0 {
			return nil
		}
		return rows[len(rows)-1][col]
	case lazyframe.AggConcat:
		parts := make([]string, len(rows))
		for i, r := range rows {
			parts[i] = fmt.Sprintf("%v", r[col])
		}
		return strings.Join(parts, ",")
	case lazyframe.AggSum, lazyframe.AggMean, lazyframe.AggMedian, lazyframe.AggMax, lazyframe.AggMin:
		vals := make([]float64, 0, len(rows))
		for _, r := range rows {
			if f, ok := toFloat(r[col]); ok {
				vals = append(vals, f)
			}
		}
		return reduceNumeric(agg, vals)
	}
	return nil
}

func reduceNumeric(agg lazyframe.Aggregation, vals []float64) any {
	if len(vals) == 0 {
		return nil
	}
	switch agg {
	case lazyframe.AggSum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s
	case lazyframe.AggMean:
		var s float64
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	case lazyframe.AggMax:
		m := vals[0]
		for _, v := range vals {
			if v > m {
				m = v
			}
		}
		return m
	case lazyframe.AggMin:
		m := vals[0]
		for _, v := range vals {
			if v < m {
				m = v
			}
		}
		return m
	case lazyframe.AggMedian:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	}
	return nil
}

func (h *handle) Join(other lazyframe.Handle, keys []lazyframe.JoinKeyPair, how lazyframe.JoinHow, verifyIntegrity bool) (lazyframe.Handle, error) {
	o, ok := other.(*handle)
	if !ok {
		return nil, fmt.Errorf("join: incompatible handle implementation")
	}

	if verifyIntegrity && how != lazyframe.JoinCross {
		if dupeKeyCount(h.rows, leftCols(keys)) > 0 || dupeKeyCount(o.rows, rightCols(keys)) > 0 {
			return nil, fmt.Errorf("join integrity violation: duplicate keys present")
		}
	}

	newSchema := h.sch.Clone()
	rightNames := map[string]bool{}
	for _, f := range o.sch {
		if !newSchema.Has(f.Name) {
			newSchema = append(newSchema, f)
			rightNames[f.Name] = true
		} else {
			newSchema = append(newSchema, schema.Field{Name: f.Name + "_right", Type: f.Type})
			rightNames[f.Name+"_right"] = true
		}
	}

	if how == lazyframe.JoinCross {
		rows := make([]map[string]any, 0, len(h.rows)*len(o.rows))
		for _, lr := range h.rows {
			for _, rr := range o.rows {
				rows = append(rows, mergeRow(lr, rr, o.sch))
			}
		}
		return h.derive(newSchema, rows), nil
	}

	rightIndex := map[string][]map[string]any{}
	for _, rr := range o.rows {
		rightIndex[joinKey(rr, rightColsOnly(keys))] = append(rightIndex[joinKey(rr, rightColsOnly(keys))], rr)
	}

	var rows []map[string]any
	matchedRight := map[int]bool{}
	for _, lr := range h.rows {
		k := joinKey(lr, leftColsOnly(keys))
		matches := rightIndex[k]
		switch how {
		case lazyframe.JoinInner, lazyframe.JoinLeft, lazyframe.JoinFull:
			if len(matches) == 0 {
				if how == lazyframe.JoinLeft || how == lazyframe.JoinFull {
					rows = append(rows, mergeRow(lr, nullRow(o.sch), o.sch))
				}
				continue
			}
			for _, rr := range matches {
				rows = append(rows, mergeRow(lr, rr, o.sch))
			}
		case lazyframe.JoinSemi:
			if len(matches) > 0 {
				rows = append(rows, lr)
			}
		case lazyframe.JoinAnti:
			if len(matches) == 0 {
				rows = append(rows, lr)
			}
		}
	}
	if how == lazyframe.JoinFull {
		for i, rr := range o.rows {
			k := joinKey(rr, rightColsOnly(keys))
			if len(matchIndexLeft(h.rows, leftColsOnly(keys), k)) == 0 {
				rows = append(rows, mergeRow(nullRow(h.sch), rr, o.sch))
				matchedRight[i] = true
			}
		}
	}
	switch how {
	case lazyframe.JoinSemi, lazyframe.JoinAnti:
		return h.derive(h.sch.Clone(), rows), nil
	}
	return h.derive(newSchema, rows), nil
}

func leftCols(keys []lazyframe.JoinKeyPair) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Left
	}
	return out
}
func rightCols(keys []lazyframe.JoinKeyPair) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Right
	}
	return out
}
func leftColsOnly(keys []lazyframe.JoinKeyPair) []string  { return leftCols(keys) }
func rightColsOnly(keys []lazyframe.JoinKeyPair) []string { return rightCols(keys) }

func joinKey(r map[string]any, cols []string) string {
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = r[c]
	}
	return fmt.Sprintf("%v", vals)
}

func matchIndexLeft(rows []map[string]any, cols []string, key string) []map[string]any {
	var out []map[string]any
	for _, r := range rows {
		if joinKey(r, cols) == key {
			out = append(out, r)
		}
	}
	return out
}

func dupeKeyCount(rows []map[string]any, cols []string) int {
	seen := map[string]int{}
	for _, r := range rows {
		seen[joinKey(r, cols)]++
	}
	dupes := 0
	for _, c := range seen {
		if c > 1 {
			dupes++
		}
	}
	return dupes
}

func nullRow(sch schema.Schema) map[string]any {
	r := make(map[string]any, len(sch))
	for _, f := range sch {
		r[f.Name] = nil
	}
	return r
}

func mergeRow(left, right map[string]any, rightSchema schema.Schema) map[string]any {
	nr := cloneRow(left)
	for _, f := range rightSchema {
		name := f.Name
		if _, clash := nr[name]; clash {
			name = f.Name + "_right"
		}
		nr[name] = right[f.Name]
	}
	return nr
}

func (h *handle) Concat(others []lazyframe.Handle) (lazyframe.Handle, error) {
	all := []*handle{h}
	for _, o := range others {
		hh, ok := o.(*handle)
		if !ok {
			return nil, fmt.Errorf("concat: incompatible handle implementation")
		}
		all = append(all, hh)
	}

	union := schema.Schema{}
	for _, hh := range all {
		for _, f := range hh.sch {
			if existing, ok := union.Field(f.Name); ok {
				if existing.Type != f.Type {
					for i := range union {
						if union[i].Name == f.Name {
							union[i].Type = schema.WidenType(existing.Type, f.Type)
						}
					}
				}
				continue
			}
			union = append(union, f)
		}
	}

	var rows []map[string]any
	for _, hh := range all {
		for _, r := range hh.rows {
			nr := make(map[string]any, len(union))
			for _, f := range union {
				if v, ok := r[f.Name]; ok {
					nr[f.Name] = v
				} else {
					nr[f.Name] = nil
				}
			}
			rows = append(rows, nr)
		}
	}
	return h.derive(union, rows), nil
}

func (h *handle) Pivot(index []string, pivotCol, valueCol string, aggs []lazyframe.Aggregation) (lazyframe.Handle, error) {
	type group struct {
		keyVals []any
		byPivot map[string][]map[string]any
	}
	order := []string{}
	groups := map[string]*group{}
	pivotValues := map[string]bool{}
	pivotOrder := []string{}

	for _, r := range h.rows {
		kv := make([]any, len(index))
		for i, k := range index {
			kv[i] = r[k]
		}
		gk := fmt.Sprintf("%v", kv)
		g, ok := groups[gk]
		if !ok {
			g = &group{keyVals: kv, byPivot: map[string][]map[string]any{}}
			groups[gk] = g
			order = append(order, gk)
		}
		pv := fmt.Sprintf("%v", r[pivotCol])
		if !pivotValues[pv] {
			pivotValues[pv] = true
			pivotOrder = append(pivotOrder, pv)
		}
		g.byPivot[pv] = append(g.byPivot[pv], r)
	}
	sort.Strings(pivotOrder)

	newSchema := make(schema.Schema, 0, len(index)+len(pivotOrder)*len(aggs))
	for _, k := range index {
		f, _ := h.sch.Field(k)
		newSchema = append(newSchema, f)
	}
	colName := func(pv string, agg lazyframe.Aggregation) string {
		if len(aggs) == 1 {
			return pv
		}
		return pv + "_" + string(agg)
	}
	valType, _ := h.sch.Field(valueCol)
	for _, pv := range pivotOrder {
		for _, agg := range aggs {
			t := valType.Type
			if agg == lazyframe.AggCount || agg == lazyframe.AggNUnique {
				t = schema.Int64
			}
			newSchema = append(newSchema, schema.Field{Name: colName(pv, agg), Type: t})
		}
	}

	rows := make([]map[string]any, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		nr := make(map[string]any, len(newSchema))
		for i, k := range index {
			nr[k] = g.keyVals[i]
		}
		for _, pv := range pivotOrder {
			for _, agg := range aggs {
				cn := colName(pv, agg)
				if rs, ok := g.byPivot[pv]; ok {
					nr[cn] = aggregate(agg, valueCol, rs)
				} else {
					nr[cn] = nil
				}
			}
		}
		rows = append(rows, nr)
	}
	return h.derive(newSchema, rows), nil
}

func (h *handle) Unpivot(indexCols, valueCols []string) (lazyframe.Handle, error) {
	newSchema := make(schema.Schema, 0, len(indexCols)+2)
	for _, c := range indexCols {
		f, _ := h.sch.Field(c)
		newSchema = append(newSchema, f)
	}
	newSchema = append(newSchema, schema.Field{Name: "variable", Type: schema.String})
	valType := schema.Unknown
	for _, c := range valueCols {
		if f, ok := h.sch.Field(c); ok {
			if valType == schema.Unknown {
				valType = f.Type
			} else {
				valType = schema.WidenType(valType, f.Type)
			}
		}
	}
	newSchema = append(newSchema, schema.Field{Name: "value", Type: valType})

	var rows []map[string]any
	for _, r := range h.rows {
		for _, vc := range valueCols {
			nr := make(map[string]any, len(newSchema))
			for _, ic := range indexCols {
				nr[ic] = r[ic]
			}
			nr["variable"] = vc
			nr["value"] = r[vc]
			rows = append(rows, nr)
		}
	}
	return h.derive(newSchema, rows), nil
}

func (h *handle) Unique(subset []string, strategy lazyframe.UniqueStrategy) (lazyframe.Handle, error) {
	cols := subset
	if len(cols) == 0 {
		cols = h.sch.Names()
	}
	groups := map[string][]int{}
	order := []string{}
	for i, r := range h.rows {
		k := joinKey(r, cols)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}
	var rows []map[string]any
	for _, k := range order {
		idxs := groups[k]
		switch strategy {
		case lazyframe.UniqueFirst:
			rows = append(rows, h.rows[idxs[0]])
		case lazyframe.UniqueLast:
			rows = append(rows, h.rows[idxs[len(idxs)-1]])
		case lazyframe.UniqueAny:
			rows = append(rows, h.rows[idxs[0]])
		case lazyframe.UniqueNone:
			if len(idxs) == 1 {
				rows = append(rows, h.rows[idxs[0]])
			}
		}
	}
	return h.derive(h.sch.Clone(), rows), nil
}

func (h *handle) Head(n int) (lazyframe.Handle, error) {
	if n < 0 || n > len(h.rows) {
		n = len(h.rows)
	}
	rows := make([]map[string]any, n)
	copy(rows, h.rows[:n])
	return h.derive(h.sch.Clone(), rows), nil
}

func (h *handle) Sample(n int, seed int64) (lazyframe.Handle, error) {
	if n < 0 || n > len(h.rows) {
		n = len(h.rows)
	}
	rng := rand.New(rand.NewSource(seed))
	idxs := rng.Perm(len(h.rows))[:n]
	sort.Ints(idxs)
	rows := make([]map[string]any, n)
	for i, idx := range idxs {
		rows[i] = h.rows[idx]
	}
	return h.derive(h.sch.Clone(), rows), nil
}

func (h *handle) WithRowID(name string, offset int64) (lazyframe.Handle, error) {
	newSchema := append(h.sch.Clone(), schema.Field{Name: name, Type: schema.Int64})
	rows := make([]map[string]any, len(h.rows))
	for i, r := range h.rows {
		nr := cloneRow(r)
		nr[name] = offset + int64(i)
		rows[i] = nr
	}
	return h.derive(newSchema, rows), nil
}

func (h *handle) Collect(ctx context.Context, limit int) (*lazyframe.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := h.rows
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	cols := make([]lazyframe.Column, len(h.sch))
	for ci, f := range h.sch {
		col := make(lazyframe.Column, len(rows))
		for ri, r := range rows {
			col[ri] = r[f.Name]
		}
		cols[ci] = col
	}
	return &lazyframe.Table{SchemaVal: h.sch.Clone(), Columns: cols}, nil
}

func (h *handle) Sink(ctx context.Context, location, format string, mode lazyframe.WriteMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == lazyframe.WriteErrorIfExists {
		if _, err := os.Stat(location); err == nil {
			return fmt.Errorf("sink: %s already exists", location)
		}
	}
	data, err := json.Marshal(h.rows)
	if err != nil {
		return fmt.Errorf("sink: encode: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if mode == lazyframe.WriteAppend {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(location, flags, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", location, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("sink: write %s: %w", location, err)
	}
	return nil
}
