package nostr

import "encoding/json"

// Filter is a subscription predicate (spec.md §3/§4.1). Empty list fields
// are unconstrained; a non-empty field requires the event's value to be a
// member. All specified fields AND together; within a field, OR.
type Filter struct {
	IDs            []string            `json:"ids,omitempty"`
	Authors        []string            `json:"authors,omitempty"`
	Kinds          []int               `json:"kinds,omitempty"`
	Tags           map[string][]string `json:"-"`
	Since          *int64              `json:"since,omitempty"`
	Until          *int64              `json:"until,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
	SubscriptionID string              `json:"-"`
}

// UnmarshalJSON parses known fields plus any "#<letter>" tag filter key,
// mirroring the teacher's internal/relay/types.go Filter.UnmarshalJSON.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["ids"]; ok {
		_ = json.Unmarshal(v, &f.IDs)
	}
	if v, ok := raw["authors"]; ok {
		_ = json.Unmarshal(v, &f.Authors)
	}
	if v, ok := raw["kinds"]; ok {
		_ = json.Unmarshal(v, &f.Kinds)
	}
	if v, ok := raw["since"]; ok {
		var since int64
		if err := json.Unmarshal(v, &since); err == nil {
			f.Since = &since
		}
	}
	if v, ok := raw["until"]; ok {
		var until int64
		if err := json.Unmarshal(v, &until); err == nil {
			f.Until = &until
		}
	}
	if v, ok := raw["limit"]; ok {
		_ = json.Unmarshal(v, &f.Limit)
	}

	f.Tags = make(map[string][]string)
	for key, value := range raw {
		if len(key) == 2 && key[0] == '#' {
			var values []string
			if err := json.Unmarshal(value, &values); err == nil {
				f.Tags[key[1:]] = values
			}
		}
	}

	return nil
}

// IDs/Authors/... tag letters relevant to this spec's persisted tag index.
const (
	TagE = "e"
	TagP = "p"
	TagD = "d"
)

// IsEmpty reports whether every field is unconstrained; empty filters are
// invalid as mutation scopes (spec.md §4.1).
func (f *Filter) IsEmpty() bool {
	return len(f.IDs) == 0 && len(f.Authors) == 0 && len(f.Kinds) == 0 &&
		len(f.Tags[TagE]) == 0 && len(f.Tags[TagP]) == 0 && len(f.Tags[TagD]) == 0 &&
		f.Since == nil && f.Until == nil
}

// EnforceLimit tightens Limit to at most cap (server-side cap, spec.md §4.1).
// A cap of 0 means no tightening.
func (f *Filter) EnforceLimit(cap int) {
	if cap <= 0 {
		return
	}
	if f.Limit <= 0 || f.Limit > cap {
		f.Limit = cap
	}
}

// Matches reports whether event satisfies every specified field of f.
// since is inclusive, until is exclusive (spec.md §4.1, boundary-locked).
func (f *Filter) Matches(e *Event) bool {
	if len(f.IDs) != 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) != 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) != 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt >= *f.Until {
		return false
	}
	for _, name := range []string{TagE, TagP, TagD} {
		if !f.tagMatches(e, name) {
			return false
		}
	}
	return true
}

func (f *Filter) tagMatches(e *Event, tagName string) bool {
	want := f.Tags[tagName]
	if len(want) == 0 {
		return true
	}
	for _, v := range e.TagValues(tagName) {
		if containsString(want, v) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
