package config

import (
	"testing"
	"time"
)

func TestFreeStorageBytesUnitHandling(t *testing.T) {
	mb := &RelaySpec{FreeStorageBytesValue: 10, FreeStorageBytesUnit: "MB"}
	if got, want := mb.FreeStorageBytes(), int64(10*1024*1024); got != want {
		t.Errorf("MB: got %d want %d", got, want)
	}

	kb := &RelaySpec{FreeStorageBytesValue: 10, FreeStorageBytesUnit: "KB"}
	if got, want := kb.FreeStorageBytes(), int64(10*1024); got != want {
		t.Errorf("KB: got %d want %d", got, want)
	}

	// Locked open question: any unrecognized unit also falls through to KB.
	unknown := &RelaySpec{FreeStorageBytesValue: 10, FreeStorageBytesUnit: "GB"}
	if got, want := unknown.FreeStorageBytes(), int64(10*1024); got != want {
		t.Errorf("unrecognized unit: got %d want %d", got, want)
	}
}

func TestEventRequiresAuth(t *testing.T) {
	s := &RelaySpec{
		RequireAuthEvents:     true,
		SkippedAuthEventKinds: []int{0, 3},
		ForcedAuthEventKinds:  []int{4},
	}

	if s.EventRequiresAuth(0) {
		t.Error("kind 0 is skipped, should not require auth")
	}
	if !s.EventRequiresAuth(1) {
		t.Error("kind 1 is not skipped, require_auth_events is true, should require auth")
	}
	if !s.EventRequiresAuth(4) {
		t.Error("kind 4 is forced, should require auth regardless of require_auth_events")
	}

	off := &RelaySpec{RequireAuthEvents: false, ForcedAuthEventKinds: []int{4}}
	if off.EventRequiresAuth(1) {
		t.Error("require_auth_events off and not forced: should not require auth")
	}
	if !off.EventRequiresAuth(4) {
		t.Error("forced kind overrides require_auth_events=false")
	}
}

func TestCreatedAtBounds(t *testing.T) {
	now := time.Unix(1700000000, 0)

	noPast := &RelaySpec{CreatedAtInPastDays: 0}
	if noPast.CreatedAtLowerBound(now) != nil {
		t.Error("zero past days should mean no lower bound")
	}

	withPast := &RelaySpec{CreatedAtInPastDays: 1}
	lb := withPast.CreatedAtLowerBound(now)
	if lb == nil || *lb != now.Add(-24*time.Hour).Unix() {
		t.Errorf("lower bound = %v", lb)
	}

	noFuture := &RelaySpec{CreatedAtInFutureSec: 0}
	if noFuture.CreatedAtUpperBound(now) != nil {
		t.Error("zero future seconds should mean no upper bound")
	}

	withFuture := &RelaySpec{CreatedAtInFutureSec: 900}
	ub := withFuture.CreatedAtUpperBound(now)
	if ub == nil || *ub != now.Add(900*time.Second).Unix() {
		t.Errorf("upper bound = %v", ub)
	}
}

func TestIsReadOnlyRelay(t *testing.T) {
	withStorage := &RelaySpec{FreeStorageBytesValue: 500}
	if withStorage.IsReadOnlyRelay() {
		t.Error("relay with a free storage budget should not be read-only")
	}

	paidNoFreeStorage := &RelaySpec{FreeStorageBytesValue: 0, IsPaidRelay: true}
	if paidNoFreeStorage.IsReadOnlyRelay() {
		t.Error("paid relay with zero free storage should not be read-only, it can sell storage")
	}

	noStorageNoPayment := &RelaySpec{FreeStorageBytesValue: 0, IsPaidRelay: false}
	if !noStorageNoPayment.IsReadOnlyRelay() {
		t.Error("zero free storage and no paid path should be read-only")
	}
}
