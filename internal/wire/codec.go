package wire

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
)

var ErrMalformed = errors.New("malformed message")

// Tags used to carry values structpb has no type for.
const (
	tagTime            = "$time"
	tagServerTimestamp = "$serverTimestamp"
)

// EncodeValue converts a document field value to its wire form.
func EncodeValue(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case time.Time:
		return taggedTime(x), nil
	case *time.Time:
		if x == nil {
			return structpb.NewNullValue(), nil
		}
		return taggedTime(*x), nil
	case map[string]any:
		s, err := EncodeData(x)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(s), nil
	case []any:
		vals := make([]*structpb.Value, 0, len(x))
		for _, e := range x {
			ev, err := EncodeValue(e)
			if err != nil {
				return nil, err
			}
			vals = append(vals, ev)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: vals}), nil
	}
	if docstore.IsServerTimestamp(v) {
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			tagServerTimestamp: structpb.NewBoolValue(true),
		}}), nil
	}
	return structpb.NewValue(v)
}

func taggedTime(t time.Time) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		tagTime: structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano)),
	}})
}

// DecodeValue is the inverse of EncodeValue. Numbers come back as float64.
func DecodeValue(v *structpb.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_NumberValue:
		return k.NumberValue
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, e := range k.ListValue.GetValues() {
			out = append(out, DecodeValue(e))
		}
		return out
	case *structpb.Value_StructValue:
		fields := k.StructValue.GetFields()
		if len(fields) == 1 {
			if ts, ok := fields[tagTime]; ok {
				if t, err := time.Parse(time.RFC3339Nano, ts.GetStringValue()); err == nil {
					return t
				}
			}
			if _, ok := fields[tagServerTimestamp]; ok {
				return docstore.ServerTimestamp
			}
		}
		return DecodeData(k.StructValue)
	}
	return nil
}

// EncodeData converts document data to a Struct.
func EncodeData(data map[string]any) (*structpb.Struct, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(data))}
	for k, v := range data {
		ev, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		s.Fields[k] = ev
	}
	return s, nil
}

// DecodeData converts a Struct back to document data. A nil struct yields an
// empty map.
func DecodeData(s *structpb.Struct) map[string]any {
	out := make(map[string]any, len(s.GetFields()))
	for k, v := range s.GetFields() {
		out[k] = DecodeValue(v)
	}
	return out
}

func EncodeDocument(d docstore.Document) (*structpb.Value, error) {
	data, err := EncodeData(d.Data)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		KeyID:   structpb.NewStringValue(d.ID),
		KeyData: structpb.NewStructValue(data),
	}}), nil
}

func DecodeDocument(v *structpb.Value) (docstore.Document, error) {
	s := v.GetStructValue()
	if s == nil {
		return docstore.Document{}, ErrMalformed
	}
	id := String(s, KeyID)
	if id == "" {
		return docstore.Document{}, fmt.Errorf("%w: document without id", ErrMalformed)
	}
	return docstore.Document{ID: id, Data: DecodeData(s.GetFields()[KeyData].GetStructValue())}, nil
}

// EncodeDocuments builds a list value of documents.
func EncodeDocuments(docs []docstore.Document) (*structpb.Value, error) {
	vals := make([]*structpb.Value, 0, len(docs))
	for _, d := range docs {
		v, err := EncodeDocument(d)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals}), nil
}

func DecodeDocuments(v *structpb.Value) ([]docstore.Document, error) {
	list := v.GetListValue()
	out := make([]docstore.Document, 0, len(list.GetValues()))
	for _, e := range list.GetValues() {
		d, err := DecodeDocument(e)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// EncodeSnapshot builds a Watch stream message.
func EncodeSnapshot(s docstore.Snapshot) (*structpb.Struct, error) {
	docs, err := EncodeDocuments(s.Docs)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		KeyDocs:   docs,
		KeyReadAt: taggedTime(s.ReadAt),
	}}, nil
}

func DecodeSnapshot(s *structpb.Struct) (docstore.Snapshot, error) {
	docs, err := DecodeDocuments(s.GetFields()[KeyDocs])
	if err != nil {
		return docstore.Snapshot{}, err
	}
	snap := docstore.Snapshot{Docs: docs}
	if t, ok := DecodeValue(s.GetFields()[KeyReadAt]).(time.Time); ok {
		snap.ReadAt = t
	}
	return snap, nil
}

// EncodeQuery converts q to its wire form.
func EncodeQuery(q docstore.Query) (*structpb.Value, error) {
	filters := make([]*structpb.Value, 0, len(q.Filters))
	for _, f := range q.Filters {
		val, err := EncodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Field, err)
		}
		filters = append(filters, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"field": structpb.NewStringValue(f.Field),
			"op":    structpb.NewStringValue(string(f.Op)),
			"value": val,
		}}))
	}
	orders := make([]*structpb.Value, 0, len(q.OrderBy))
	for _, o := range q.OrderBy {
		orders = append(orders, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"field":     structpb.NewStringValue(o.Field),
			"direction": structpb.NewStringValue(o.Direction.String()),
		}}))
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		KeyCollection: structpb.NewStringValue(q.Collection),
		"filters":     structpb.NewListValue(&structpb.ListValue{Values: filters}),
		"orderBy":     structpb.NewListValue(&structpb.ListValue{Values: orders}),
		"limit":       structpb.NewNumberValue(float64(q.Limit)),
	}}), nil
}

func DecodeQuery(v *structpb.Value) (docstore.Query, error) {
	s := v.GetStructValue()
	if s == nil {
		return docstore.Query{}, ErrMalformed
	}
	q := docstore.Query{
		Collection: String(s, KeyCollection),
		Limit:      int(s.GetFields()["limit"].GetNumberValue()),
	}
	if q.Collection == "" {
		return docstore.Query{}, fmt.Errorf("%w: query without collection", ErrMalformed)
	}
	for _, fv := range s.GetFields()["filters"].GetListValue().GetValues() {
		f := fv.GetStructValue()
		op := docstore.Op(String(f, "op"))
		if op != docstore.OpEqual {
			return docstore.Query{}, fmt.Errorf("%w: unsupported operator %q", ErrMalformed, op)
		}
		q.Filters = append(q.Filters, docstore.Filter{
			Field: String(f, "field"),
			Op:    op,
			Value: DecodeValue(f.GetFields()["value"]),
		})
	}
	for _, ov := range s.GetFields()["orderBy"].GetListValue().GetValues() {
		o := ov.GetStructValue()
		dir := docstore.Asc
		if String(o, "direction") == docstore.Desc.String() {
			dir = docstore.Desc
		}
		q.OrderBy = append(q.OrderBy, docstore.Order{Field: String(o, "field"), Direction: dir})
	}
	return q, nil
}

// String returns s[key] as a string, or "".
func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// NewMessage builds a message of string fields.
func NewMessage(kv ...string) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Fields[kv[i]] = structpb.NewStringValue(kv[i+1])
	}
	return s
}
