package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/siherrmann/persona/helper"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a structured attribute value: a scalar, a list of scalars or a
// one level map whose entries are scalars or lists of scalars.
// Scalars are nil, string, bool, int64 or float64.
type Value struct {
	Kind   ValueKind
	Scalar any
	List   []any
	Map    map[string]Value
}

// Attributes is a parsed structured-data map.
type Attributes map[string]Value

// ParseAttributes parses every entry of a structured-data map.
func ParseAttributes(structured map[string]any) (Attributes, error) {
	attrs := make(Attributes, len(structured))
	for key, raw := range structured {
		if strings.TrimSpace(key) == "" {
			return nil, helper.NewValidationError("attribute with empty name")
		}
		v, err := ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		attrs[key] = v
	}
	return attrs, nil
}

// ParseValue converts a decoded JSON, BSON or Cypher value into a Value.
func ParseValue(raw any) (Value, error) {
	if scalar, ok := normalizeScalar(raw); ok {
		return Value{Kind: KindScalar, Scalar: scalar}, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		list, err := parseList(rv)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindList, List: list}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, helper.NewValidationError("map keys must be strings, got %s", rv.Type().Key())
		}
		entries := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			entry := iter.Value().Interface()
			if scalar, ok := normalizeScalar(entry); ok {
				entries[key] = Value{Kind: KindScalar, Scalar: scalar}
				continue
			}
			ev := reflect.ValueOf(entry)
			if ev.Kind() != reflect.Slice && ev.Kind() != reflect.Array {
				return Value{}, helper.NewValidationError("nested value %q of type %T is too deep", key, entry)
			}
			list, err := parseList(ev)
			if err != nil {
				return Value{}, fmt.Errorf("nested value %q: %w", key, err)
			}
			entries[key] = Value{Kind: KindList, List: list}
		}
		return Value{Kind: KindMap, Map: entries}, nil
	}

	return Value{}, helper.NewValidationError("unsupported value of type %T", raw)
}

func parseList(rv reflect.Value) ([]any, error) {
	list := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		scalar, ok := normalizeScalar(item)
		if !ok {
			return nil, helper.NewValidationError("list item %d of type %T is not a scalar", i, item)
		}
		list = append(list, scalar)
	}
	return list, nil
}

func normalizeScalar(raw any) (any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, true
	case string:
		return v, true
	case bool:
		return v, true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case json.Number:
		return v.String(), true
	case time.Time:
		return v.Format(time.RFC3339), true
	case []byte:
		return string(v), true
	}
	return nil, false
}

// IsEmpty reports whether the value carries nothing worth rendering:
// nil, a blank string, an empty list or an empty map.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindList:
		return len(v.List) == 0
	case KindMap:
		return len(v.Map) == 0
	default:
		if v.Scalar == nil {
			return true
		}
		if s, ok := v.Scalar.(string); ok {
			return strings.TrimSpace(s) == ""
		}
		return false
	}
}

// String renders the value: lists comma-joined, maps as sorted "key: value"
// pairs comma-joined, scalars in their plain string form.
func (v Value) String() string {
	switch v.Kind {
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = formatScalar(item)
		}
		return strings.Join(parts, ", ")
	case KindMap:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.Map[k].String()
		}
		return strings.Join(parts, ", ")
	default:
		return formatScalar(v.Scalar)
	}
}

// Keys returns the map keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.Map))
	for k := range v.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw converts the value back into plain Go values.
func (v Value) Raw() any {
	switch v.Kind {
	case KindList:
		out := make([]any, len(v.List))
		copy(out, v.List)
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, entry := range v.Map {
			out[k] = entry.Raw()
		}
		return out
	default:
		return v.Scalar
	}
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatScalar(s any) string {
	switch v := s.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
