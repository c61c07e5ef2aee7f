package firestore

import (
	"sort"

	"cloud.google.com/go/firestore"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
)

func direction(d docstore.Direction) firestore.Direction {
	if d == docstore.Desc {
		return firestore.Desc
	}
	return firestore.Asc
}

// toFirestoreValue swaps our server timestamp sentinel for Firestore's.
func toFirestoreValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return toFirestoreData(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = toFirestoreValue(x[i])
		}
		return out
	}
	if docstore.IsServerTimestamp(v) {
		return firestore.ServerTimestamp
	}
	return v
}

func toFirestoreData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = toFirestoreValue(v)
	}
	return out
}

// toUpdates turns a merge into field updates, sorted for stable requests.
func toUpdates(data map[string]any) []firestore.Update {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		out = append(out, firestore.Update{Path: k, Value: toFirestoreValue(data[k])})
	}
	return out
}

// fromFirestoreValue maps references to their ids; everything else Firestore
// returns is already a docstore value.
func fromFirestoreValue(v any) any {
	switch x := v.(type) {
	case *firestore.DocumentRef:
		if x == nil {
			return nil
		}
		return x.ID
	case map[string]any:
		return fromFirestoreData(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = fromFirestoreValue(x[i])
		}
		return out
	}
	return v
}

func fromFirestoreData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = fromFirestoreValue(v)
	}
	return out
}
