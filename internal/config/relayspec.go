package config

import "time"

// FullStorageAction names what happens to new writes once a relay's storage
// quota is exhausted (spec.md §4.5).
type FullStorageAction string

const (
	FullStorageActionPrune FullStorageAction = "prune"
	FullStorageActionBlock FullStorageAction = "block"
)

// RelaySpec is the per-relay configuration hydrated into the registry
// (spec.md §3, §4.3). It flattens what the original Python modeled as
// several mixed-in Spec classes (FilterSpec/EventSpec/StorageSpec/AuthSpec/
// PaymentSpec) into one struct, since Go has no equivalent to Pydantic
// multiple inheritance and a flat struct is the idiomatic shape here.
type RelaySpec struct {
	RelayID string `mapstructure:"relay_id" db:"relay_id"`
	Name    string `mapstructure:"name" db:"name"`
	Enabled bool   `mapstructure:"enabled" db:"enabled"`

	// Filter limits.
	MaxClientFilters int `mapstructure:"max_client_filters" db:"max_client_filters"`
	LimitPerFilter   int `mapstructure:"limit_per_filter" db:"limit_per_filter"`

	// Write-rate and time-window limits.
	MaxEventsPerHour      int `mapstructure:"max_events_per_hour" db:"max_events_per_hour"`
	CreatedAtInPastDays   int `mapstructure:"created_at_in_past_days" db:"created_at_in_past_days"`
	CreatedAtInFutureSec  int `mapstructure:"created_at_in_future_sec" db:"created_at_in_future_sec"`

	// Storage accounting.
	FreeStorageBytesValue int64              `mapstructure:"free_storage_bytes_value" db:"free_storage_bytes_value"`
	FreeStorageBytesUnit  string             `mapstructure:"free_storage_bytes_unit" db:"free_storage_bytes_unit"`
	FullStorageAction     FullStorageAction  `mapstructure:"full_storage_action" db:"full_storage_action"`

	// Payment / admission.
	IsPaidRelay      bool   `mapstructure:"is_paid_relay" db:"is_paid_relay"`
	CostToJoin       int64  `mapstructure:"cost_to_join" db:"cost_to_join"`
	StorageCostValue int64  `mapstructure:"storage_cost_value" db:"storage_cost_value"`
	StorageCostUnit  string `mapstructure:"storage_cost_unit" db:"storage_cost_unit"`

	// NIP-42 auth gating.
	RequireAuthEvents     bool  `mapstructure:"require_auth_events" db:"require_auth_events"`
	SkippedAuthEventKinds []int `mapstructure:"skipped_auth_event_kinds" db:"-"`
	ForcedAuthEventKinds  []int `mapstructure:"forced_auth_event_kinds" db:"-"`
	RequireAuthFilter     bool  `mapstructure:"require_auth_filter" db:"require_auth_filter"`

	// Domain used to validate a NIP-42 AUTH event's "relay" tag.
	Domain string `mapstructure:"domain" db:"domain"`
}

// IsReadOnlyRelay reports whether writes are globally rejected for this
// relay: no free storage budget and no paid-admission path to buy more
// (spec.md §3: `is_read_only_relay = (free_storage_bytes_value == 0) &&
// !is_paid_relay`).
func (s *RelaySpec) IsReadOnlyRelay() bool {
	return s.FreeStorageBytesValue == 0 && !s.IsPaidRelay
}

// EventRequiresAuth reports whether an event of the given kind may only be
// accepted from an authenticated connection (spec.md §4.4/§4.6). Grounded
// on original_source/relay/relay.py's AuthSpec.event_requires_auth: when
// require_auth_events is on, every kind needs auth except the skipped
// list; when it's off, only the forced list needs auth.
func (s *RelaySpec) EventRequiresAuth(kind int) bool {
	if s.RequireAuthEvents {
		return !containsKind(s.SkippedAuthEventKinds, kind)
	}
	return containsKind(s.ForcedAuthEventKinds, kind)
}

// FreeStorageBytes converts FreeStorageBytesValue/Unit into a byte count.
// Per spec.md §9's locked Open Question, any unit other than the exact
// string "MB" is treated as KB (matches the original's implicit fallthrough
// behavior: only "MB" gets the x1024x1024 branch).
func (s *RelaySpec) FreeStorageBytes() int64 {
	if s.FreeStorageBytesUnit == "MB" {
		return s.FreeStorageBytesValue * 1024 * 1024
	}
	return s.FreeStorageBytesValue * 1024
}

// CreatedAtLowerBound returns the earliest created_at this relay accepts,
// or nil if there is no lower bound configured.
func (s *RelaySpec) CreatedAtLowerBound(now time.Time) *int64 {
	if s.CreatedAtInPastDays <= 0 {
		return nil
	}
	bound := now.Add(-time.Duration(s.CreatedAtInPastDays) * 24 * time.Hour).Unix()
	return &bound
}

// CreatedAtUpperBound returns the latest created_at this relay accepts, or
// nil if there is no upper bound configured.
func (s *RelaySpec) CreatedAtUpperBound(now time.Time) *int64 {
	if s.CreatedAtInFutureSec <= 0 {
		return nil
	}
	bound := now.Add(time.Duration(s.CreatedAtInFutureSec) * time.Second).Unix()
	return &bound
}

func containsKind(list []int, kind int) bool {
	for _, k := range list {
		if k == kind {
			return true
		}
	}
	return false
}
