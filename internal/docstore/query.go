package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Match reports whether doc satisfies every filter. A filter on "__id__"
// matches the document id.
func Match(doc Document, filters []Filter) bool {
	for _, f := range filters {
		var v any
		if f.Field == FieldDocumentID {
			v = doc.ID
		} else {
			var ok bool
			v, ok = doc.Data[f.Field]
			if !ok {
				return false
			}
		}
		if Compare(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

// FieldDocumentID addresses the document id in filters.
const FieldDocumentID = "__id__"

// Apply filters, orders and limits docs the way a backend would for q.
// The input slice is not modified.
func Apply(q Query, docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Match(d, q.Filters) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := Compare(out[i].Data[o.Field], out[j].Data[o.Field])
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Compare orders two field values. Values of different kinds order by kind
// (bool < number < string < time); nil sorts after everything so documents
// whose server timestamp is still pending show up as the newest.
func Compare(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}

	switch ka {
	case kindNil:
		return 0
	case kindBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case kindNumber:
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case kindString:
		return strings.Compare(a.(string), b.(string))
	case kindTime:
		return toTime(a).Compare(toTime(b))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

const (
	kindBool = iota
	kindNumber
	kindString
	kindTime
	kindOther
	kindNil
)

func kindOf(v any) int {
	switch x := v.(type) {
	case nil:
		return kindNil
	case bool:
		return kindBool
	case int, int32, int64, float32, float64:
		return kindNumber
	case string:
		return kindString
	case time.Time:
		return kindTime
	case *time.Time:
		if x == nil {
			return kindNil
		}
		return kindTime
	default:
		return kindOther
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func toTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case *time.Time:
		return *x
	}
	return time.Time{}
}

// CloneData copies a document's data so callers cannot mutate stored state.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneData(x)
	case []any:
		c := make([]any, len(x))
		for i := range x {
			c[i] = cloneValue(x[i])
		}
		return c
	default:
		return v
	}
}

// ResolveTimestamps returns a copy of data where every ServerTimestamp
// sentinel is replaced by now, plus the names of the replaced fields.
func ResolveTimestamps(data map[string]any, now time.Time) (map[string]any, []string) {
	out := CloneData(data)
	var fields []string
	for k, v := range out {
		if IsServerTimestamp(v) {
			out[k] = now
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return out, fields
}

// SameDocs reports whether two results are identical, ids and data included.
func SameDocs(a, b []Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !reflect.DeepEqual(a[i].Data, b[i].Data) {
			return false
		}
	}
	return true
}
