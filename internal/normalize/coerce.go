// Package normalize converts raw, loosely-typed payload fragments into
// validated domain records. All functions are pure: no I/O, and malformed
// input yields absence rather than an error.
package normalize

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// weiboTimeLayout is the created_at format used across timeline, comment and
// profile payloads, e.g. "Fri Aug 29 10:23:45 +0800 2025".
const weiboTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"

// str returns the first non-empty string coercion among the given keys.
// Numeric json values ("id": 123456) coerce to their decimal form.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s := cast.ToString(v); s != "" {
			return s
		}
	}
	return ""
}

// i64 returns the first parseable integer among the given keys. Values like
// "3.2万" or "10亿" that Weibo substitutes for large counters are scaled.
func i64(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if n, found := toCount(v); found {
			return n
		}
	}
	return 0
}

func toCount(v any) (int64, bool) {
	if n, err := cast.ToInt64E(v); err == nil {
		return n, true
	}
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return 0, false
	}
	s = strings.TrimSuffix(s, "+")
	scale := int64(1)
	switch {
	case strings.HasSuffix(s, "万"):
		scale = 10_000
		s = strings.TrimSuffix(s, "万")
	case strings.HasSuffix(s, "亿"):
		scale = 100_000_000
		s = strings.TrimSuffix(s, "亿")
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, false
	}
	return int64(f * float64(scale)), true
}

// flag coerces a truthy value ("1", 1, true) for the first present key.
func flag(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return false
}

// child returns a nested object as a map, or nil when absent or mistyped.
func child(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return sub
}

// list returns a nested array, or nil when absent or mistyped. Weibo APIs
// sometimes put `false` where an empty list would be; that maps to nil too.
func list(m map[string]any, key string) []any {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	return arr
}

// asMap narrows an untyped list element to an object.
func asMap(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

// parseTime parses the first parseable timestamp among the given keys.
func parseTime(m map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		s := str(m, k)
		if s == "" {
			continue
		}
		if t, err := time.Parse(weiboTimeLayout, s); err == nil {
			t = t.UTC()
			return &t
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
