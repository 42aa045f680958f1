package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// renderDataRE matches the $render_data assignment mobile pages embed in a
// script tag: `var $render_data = [{...}][0] || {};`.
var renderDataRE = regexp.MustCompile(`\$render_data\s*=\s*(\[[\s\S]*?\])\s*\[0\]\s*\|\|`)

// Payload parses a raw content string into an object. Plain JSON objects
// are decoded directly; a JSON array is wrapped under "data" so callers see
// one shape; HTML pages are scanned for an embedded $render_data script
// payload. The second return is false when nothing parseable was found.
func Payload(rawContent string) (map[string]any, bool) {
	s := strings.TrimSpace(rawContent)
	if s == "" {
		return nil, false
	}
	switch s[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, false
		}
		return m, true
	case '[':
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, false
		}
		return map[string]any{"data": arr}, true
	}

	match := renderDataRE.FindStringSubmatch(s)
	if match == nil {
		return nil, false
	}
	var arr []any
	if err := json.Unmarshal([]byte(match[1]), &arr); err != nil || len(arr) == 0 {
		return nil, false
	}
	m := asMap(arr[0])
	if m == nil {
		return nil, false
	}
	return m, true
}
