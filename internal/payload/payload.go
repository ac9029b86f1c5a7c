// Package payload reads fields out of drifting API objects. Different
// Moltbook deployments emit camelCase or snake_case names for the same
// field; every accessor takes candidate keys in preference order and
// returns nil (or the zero value) when none is present, so absent fields
// stay absent instead of overwriting stored values downstream.
package payload

import (
	"math"
	"strconv"
	"strings"
)

// Raw returns the first non-nil value under keys, untyped.
func Raw(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// Text returns the first non-empty string under keys, or "".
func Text(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// TextOrNil is Text but with nil for absence, suitable for upsert rows
// where nil means "leave the stored value alone".
func TextOrNil(m map[string]any, keys ...string) any {
	if s := Text(m, keys...); s != "" {
		return s
	}
	return nil
}

// ID canonicalizes an identifier to a string. Numeric ids are formatted
// without an exponent or trailing fraction so the same id always maps to
// the same graph key.
func ID(m map[string]any, keys ...string) string {
	switch v := Raw(m, keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// Int returns the first numeric value under keys as int64, or nil.
// Non-integral floats pass through unchanged.
func Int(m map[string]any, keys ...string) any {
	switch v := Raw(m, keys...).(type) {
	case float64:
		if v == math.Trunc(v) {
			return int64(v)
		}
		return v
	case int64:
		return v
	case int:
		return int64(v)
	}
	return nil
}

// Bool returns the first boolean under keys, or nil.
func Bool(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b
		}
	}
	return nil
}
