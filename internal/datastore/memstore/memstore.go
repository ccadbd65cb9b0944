// Package memstore provides an in-memory datastore.Store implementation for
// tests. It supports the filter operators, geo/text queries and the lookup
// anti-join shape the pipeline and services actually use; it is not a
// general MongoDB emulation.
package memstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tattler-mx/tattler-go/internal/datastore"
)

// Store is an in-memory document store. All methods are safe for concurrent
// use.
type Store struct {
	mu    sync.RWMutex
	colls map[string][]bson.M
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{colls: make(map[string][]bson.M)}
}

// Insert is a test convenience: it normalizes and stores a document,
// assigning an _id when absent.
func (s *Store) Insert(coll string, doc any) error {
	norm, err := normalizeDoc(doc)
	if err != nil {
		return err
	}
	if _, ok := norm["_id"]; !ok {
		norm["_id"] = primitive.NewObjectID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colls[coll] = append(s.colls[coll], norm)
	return nil
}

// normalizeDoc round-trips through bson so stored values use the same
// representation the real driver returns (primitive.DateTime for times,
// primitive.A for arrays).
func normalizeDoc(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func cloneDoc(doc bson.M) bson.M {
	out, err := normalizeDoc(doc)
	if err != nil {
		// Documents in the store already round-tripped once; re-marshaling
		// them cannot fail.
		panic(err)
	}
	return out
}

func (s *Store) FindOne(ctx context.Context, coll string, filter bson.M) (bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.colls[coll] {
		if matches(doc, filter) {
			return cloneDoc(doc), nil
		}
	}
	return nil, nil
}

func (s *Store) Find(ctx context.Context, coll string, filter bson.M, opts *datastore.FindOptions) ([]bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []bson.M
	for _, doc := range s.colls[coll] {
		if matches(doc, filter) {
			out = append(out, cloneDoc(doc))
		}
	}
	if opts != nil {
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(out)) {
				out = nil
			} else {
				out = out[opts.Skip:]
			}
		}
		if opts.Limit > 0 && int64(len(out)) > opts.Limit {
			out = out[:opts.Limit]
		}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, coll string, filter bson.M) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.colls[coll] {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateOne(ctx context.Context, coll string, filter, update bson.M, upsert bool) (*datastore.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.colls[coll]
	for i, doc := range docs {
		if !matches(doc, filter) {
			continue
		}
		modified := applyUpdate(doc, update, false)
		docs[i] = doc
		res := &datastore.UpdateResult{MatchedCount: 1}
		if modified {
			res.ModifiedCount = 1
		}
		return res, nil
	}

	if !upsert {
		return &datastore.UpdateResult{}, nil
	}

	newDoc := bson.M{}
	// Seed identity from equality fields of the filter, as mongo does.
	for k, v := range filter {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if _, isOp := asMap(v); !isOp {
			newDoc[k] = normalizeValue(v)
		}
	}
	applyUpdate(newDoc, update, true)
	id := primitive.NewObjectID()
	newDoc["_id"] = id
	s.colls[coll] = append(docs, newDoc)
	return &datastore.UpdateResult{UpsertedID: id}, nil
}

// applyUpdate applies $set (and on insert, $setOnInsert) to doc in place and
// reports whether any value actually changed.
func applyUpdate(doc bson.M, update bson.M, insert bool) bool {
	modified := false
	apply := func(fields any) {
		m, ok := asMap(fields)
		if !ok {
			return
		}
		for k, v := range m {
			nv := normalizeValue(v)
			if cur, ok := doc[k]; !ok || !valuesEqual(cur, nv) {
				doc[k] = nv
				modified = true
			}
		}
	}
	if set, ok := update["$set"]; ok {
		apply(set)
	}
	if insert {
		if soi, ok := update["$setOnInsert"]; ok {
			apply(soi)
		}
	}
	return modified
}

func (s *Store) DeleteOne(ctx context.Context, coll string, filter bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.colls[coll]
	for i, doc := range docs {
		if matches(doc, filter) {
			s.colls[coll] = append(docs[:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) Near(ctx context.Context, coll, field string, lon, lat float64, maxMeters int, filter bson.M) ([]bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		doc  bson.M
		dist float64
	}
	var hits []scored
	for _, doc := range s.colls[coll] {
		if !matches(doc, filter) {
			continue
		}
		val, ok := lookupPath(doc, field+".coordinates")
		if !ok {
			continue
		}
		coords, ok := asFloatSlice(val)
		if !ok || len(coords) != 2 {
			continue
		}
		d := haversineMeters(lat, lon, coords[1], coords[0])
		if d <= float64(maxMeters) {
			hits = append(hits, scored{doc: cloneDoc(doc), dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]bson.M, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out, nil
}

func (s *Store) TextSearch(ctx context.Context, coll, query string, filter bson.M) ([]bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	terms := strings.Fields(strings.ToLower(query))
	var out []bson.M
	for _, doc := range s.colls[coll] {
		if !matches(doc, filter) {
			continue
		}
		if docMatchesTerms(doc, terms) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func docMatchesTerms(doc bson.M, terms []string) bool {
	for _, v := range doc {
		str, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(str)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return true
			}
		}
	}
	return false
}

func (s *Store) Aggregate(ctx context.Context, coll string, pipeline []bson.M) ([]bson.M, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var working []bson.M
	for _, doc := range s.colls[coll] {
		working = append(working, cloneDoc(doc))
	}

	for _, stage := range pipeline {
		for op, spec := range stage {
			switch op {
			case "$match":
				m, _ := asMap(spec)
				var kept []bson.M
				for _, doc := range working {
					if matches(doc, m) {
						kept = append(kept, doc)
					}
				}
				working = kept
			case "$lookup":
				if err := s.applyLookup(working, spec); err != nil {
					return nil, err
				}
			case "$project":
				m, _ := asMap(spec)
				for i, doc := range working {
					projected := bson.M{}
					if id, ok := doc["_id"]; ok {
						projected["_id"] = id
					}
					for k, v := range m {
						if include, ok := normalizeValue(v).(float64); ok && include == 1 {
							if val, found := lookupPath(doc, k); found {
								projected[k] = val
							}
						}
					}
					working[i] = projected
				}
			case "$limit":
				if n, ok := normalizeValue(spec).(float64); ok && int64(n) < int64(len(working)) {
					working = working[:int64(n)]
				}
			}
		}
	}
	return working, nil
}

// applyLookup handles the two lookup shapes the code uses: the classic
// localField/foreignField join and the let+pipeline form restricted to a
// single $expr equality match (the anti-join check).
func (s *Store) applyLookup(working []bson.M, spec any) error {
	m, ok := asMap(spec)
	if !ok {
		return nil
	}
	from, _ := m["from"].(string)
	as, _ := m["as"].(string)
	foreign := s.colls[from]

	localField, _ := m["localField"].(string)
	foreignField, _ := m["foreignField"].(string)
	limit := 0

	if localField == "" {
		// let + pipeline form: extract the join fields from the $expr.
		letMap, _ := asMap(m["let"])
		var letExpr string
		for _, v := range letMap {
			letExpr, _ = v.(string)
		}
		localField = strings.TrimPrefix(letExpr, "$")
		pipeline, _ := m["pipeline"].(primitive.A)
		if pipeline == nil {
			if p, ok := m["pipeline"].([]bson.M); ok {
				for _, st := range p {
					pipeline = append(pipeline, st)
				}
			}
		}
		for _, st := range pipeline {
			stage, _ := asMap(st)
			if matchSpec, ok := stage["$match"]; ok {
				matchM, _ := asMap(matchSpec)
				exprM, _ := asMap(matchM["$expr"])
				eq, _ := exprM["$eq"]
				parts, _ := asSlice(eq)
				for _, p := range parts {
					str, _ := p.(string)
					if strings.HasPrefix(str, "$$") {
						continue // the let variable side
					}
					if strings.HasPrefix(str, "$") {
						foreignField = strings.TrimPrefix(str, "$")
					}
				}
			}
			if limSpec, ok := stage["$limit"]; ok {
				if n, ok := normalizeValue(limSpec).(float64); ok {
					limit = int(n)
				}
			}
		}
	}

	for _, doc := range working {
		localVal, _ := lookupPath(doc, localField)
		var joined primitive.A
		for _, f := range foreign {
			fv, _ := lookupPath(f, foreignField)
			if valuesEqual(localVal, fv) {
				joined = append(joined, cloneDoc(f))
				if limit > 0 && len(joined) >= limit {
					break
				}
			}
		}
		doc[as] = joined
	}
	return nil
}

func (s *Store) Drop(ctx context.Context, coll string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.colls, coll)
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

// --- filter matching ---

func matches(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$or":
			branches, ok := asSlice(cond)
			if !ok {
				return false
			}
			anyMatch := false
			for _, b := range branches {
				bm, ok := asMap(b)
				if ok && matches(doc, bm) {
					anyMatch = true
					break
				}
			}
			if !anyMatch {
				return false
			}
		case "$and":
			branches, ok := asSlice(cond)
			if !ok {
				return false
			}
			for _, b := range branches {
				bm, ok := asMap(b)
				if !ok || !matches(doc, bm) {
					return false
				}
			}
		default:
			val, found := lookupPath(doc, key)
			if !fieldMatches(val, found, cond) {
				return false
			}
		}
	}
	return true
}

func fieldMatches(val any, found bool, cond any) bool {
	condMap, isMap := asMap(cond)
	if isMap && hasOperator(condMap) {
		for op, arg := range condMap {
			switch op {
			case "$exists":
				want, _ := normalizeValue(arg).(bool)
				if found != want {
					return false
				}
			case "$eq":
				if !valuesEqual(val, normalizeValue(arg)) {
					return false
				}
			case "$ne":
				// A missing field compares as null, so {$ne: true} matches
				// documents without the field at all.
				if valuesEqual(val, normalizeValue(arg)) {
					return false
				}
			case "$lte":
				if !numericCompare(val, arg, func(c int) bool { return c <= 0 }) {
					return false
				}
			case "$lt":
				if !numericCompare(val, arg, func(c int) bool { return c < 0 }) {
					return false
				}
			case "$gte":
				if !numericCompare(val, arg, func(c int) bool { return c >= 0 }) {
					return false
				}
			case "$gt":
				if !numericCompare(val, arg, func(c int) bool { return c > 0 }) {
					return false
				}
			case "$in":
				opts, ok := asSlice(arg)
				if !ok {
					return false
				}
				anyEq := false
				for _, o := range opts {
					if valuesEqual(val, normalizeValue(o)) {
						anyEq = true
						break
					}
				}
				if !anyEq {
					return false
				}
			case "$size":
				arr, ok := asSlice(val)
				want, wok := normalizeValue(arg).(float64)
				if !ok || !wok || len(arr) != int(want) {
					return false
				}
			default:
				return false
			}
		}
		return true
	}
	return valuesEqual(val, normalizeValue(cond))
}

func hasOperator(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func lookupPath(doc bson.M, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return m, true
	case bson.D:
		out := make(map[string]any, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case primitive.A:
		return s, true
	case []any:
		return s, true
	case []bson.M:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloatSlice(v any) ([]float64, bool) {
	raw, ok := asSlice(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(raw))
	for _, e := range raw {
		f, ok := normalizeValue(e).(float64)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// normalizeValue canonicalizes scalars for comparison: all numbers to
// float64, all time representations to primitive.DateTime.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case time.Time:
		return primitive.NewDateTimeFromTime(n)
	case *time.Time:
		if n == nil {
			return nil
		}
		return primitive.NewDateTimeFromTime(*n)
	default:
		return v
	}
}

func valuesEqual(a, b any) bool {
	na, nb := normalizeValue(a), normalizeValue(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	if fa, ok := na.(float64); ok {
		if fb, ok := nb.(float64); ok {
			return fa == fb
		}
	}
	if da, ok := na.(primitive.DateTime); ok {
		if db, ok := nb.(primitive.DateTime); ok {
			return da == db
		}
	}
	if sa, okA := asSlice(na); okA {
		sb, okB := asSlice(nb)
		if !okB || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !valuesEqual(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	if ma, okA := asMap(na); okA {
		mb, okB := asMap(nb)
		if !okB || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !valuesEqual(va, vb) {
				return false
			}
		}
		return true
	}
	return na == nb
}

func numericCompare(val, arg any, ok func(int) bool) bool {
	fa, aok := toComparable(val)
	fb, bok := toComparable(arg)
	if !aok || !bok {
		return false
	}
	switch {
	case fa < fb:
		return ok(-1)
	case fa > fb:
		return ok(1)
	default:
		return ok(0)
	}
}

func toComparable(v any) (float64, bool) {
	switch n := normalizeValue(v).(type) {
	case float64:
		return n, true
	case primitive.DateTime:
		return float64(n), true
	default:
		return 0, false
	}
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}
