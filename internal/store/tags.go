package store

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// encodeExtra JSON-encodes a tag's members beyond name/value (e.g. a marker
// or relay hint on an "e" tag) for storage in event_tags.extra. Empty extras
// store as empty string rather than "[]" so getEventTags can skip them
// without a parse.
func encodeExtra(extra []string) string {
	if len(extra) == 0 {
		return ""
	}
	b, _ := json.Marshal(extra)
	return string(b)
}

// decodeExtra reads the extra JSON array back into a string slice using
// gjson, avoiding a full json.Unmarshal allocation for what is almost
// always a one- or two-element array.
func decodeExtra(raw string) []string {
	result := gjson.Parse(raw)
	if !result.IsArray() {
		return nil
	}
	values := make([]string, 0, 2)
	result.ForEach(func(_, value gjson.Result) bool {
		values = append(values, value.String())
		return true
	})
	return values
}
