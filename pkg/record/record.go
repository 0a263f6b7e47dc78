// Package record provides total accessor functions over untyped JSON values
// as produced by encoding/json decoding into any. Ragora payloads are
// dynamically shaped, so every accessor returns a zero value on a shape
// mismatch instead of failing.
package record

import (
	"encoding/json"
	"math"
	"strconv"
)

// Record is a decoded JSON object.
type Record = map[string]any

// IsRecord reports whether v is a JSON object.
func IsRecord(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// AsRecord returns v as a Record, or nil and false when v is not an object.
func AsRecord(v any) (Record, bool) {
	r, ok := v.(map[string]any)
	return r, ok
}

// Parse decodes data as a JSON object. Arrays, scalars and invalid JSON are
// reported as errors.
func Parse(data []byte) (Record, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	r, ok := AsRecord(v)
	if !ok {
		return nil, ErrNotRecord
	}
	return r, nil
}

// Path walks nested objects by key and returns the value found, if any.
func Path(r Record, keys ...string) (any, bool) {
	var cur any = r
	for _, k := range keys {
		obj, ok := AsRecord(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns v when it is a string, "" otherwise.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// OptString returns v and true when v is a string.
func OptString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// ID renders identifier-like values as strings: strings pass through and
// finite numbers are formatted without an exponent. Anything else is "".
func ID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// Number returns v as a finite float64, or 0 when v is absent, not numeric,
// NaN or infinite. Numeric strings are not coerced.
func Number(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Slice returns v as a slice, or nil when it is not a JSON array.
func Slice(v any) []any {
	s, _ := v.([]any)
	return s
}

// First returns the first element of a JSON array.
func First(v any) (any, bool) {
	s := Slice(v)
	if len(s) == 0 {
		return nil, false
	}
	return s[0], true
}

// Records returns the object elements of a JSON array, skipping every other
// element kind.
func Records(v any) []Record {
	items := Slice(v)
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if r, ok := AsRecord(item); ok {
			out = append(out, r)
		}
	}
	return out
}
