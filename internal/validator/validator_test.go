package validator

import (
	"path/filepath"
	"testing"
	"time"

	gonostr "github.com/nbd-wtf/go-nostr"
	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Init("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func signedEvent(t *testing.T, kind int, createdAt int64, tags [][]string) *nostr.Event {
	t.Helper()
	sk := gonostr.GeneratePrivateKey()
	pk, err := gonostr.GetPublicKey(sk)
	require.NoError(t, err)

	ge := gonostr.Event{
		PubKey:    pk,
		CreatedAt: gonostr.Timestamp(createdAt),
		Kind:      kind,
		Tags:      gonostr.Tags{},
		Content:   "hello",
	}
	for _, tg := range tags {
		ge.Tags = append(ge.Tags, gonostr.Tag(tg))
	}
	require.NoError(t, ge.Sign(sk))

	e := &nostr.Event{
		ID:        ge.ID,
		PubKey:    ge.PubKey,
		CreatedAt: int64(ge.CreatedAt),
		Kind:      ge.Kind,
		Content:   ge.Content,
		Sig:       ge.Sig,
	}
	for _, tg := range ge.Tags {
		e.Tags = append(e.Tags, []string(tg))
	}
	return e
}

func baseSpec() *config.RelaySpec {
	return &config.RelaySpec{
		RelayID:               "relay1",
		FreeStorageBytesValue: 500,
		FreeStorageBytesUnit:  "MB",
		FullStorageAction:     config.FullStorageActionPrune,
		Domain:                "relay.example.com",
	}
}

func TestValidateWriteAcceptsOrdinaryEvent(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	e := signedEvent(t, 1, time.Now().Unix(), nil)

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonNone, reason)
}

func TestValidateWriteRejectsTamperedSignature(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	e := signedEvent(t, 1, time.Now().Unix(), nil)
	e.Content = "tampered"

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonInvalidSignature, reason)
}

func TestValidateWriteRejectsRateLimited(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	spec.MaxEventsPerHour = 1

	counter := &RateCounter{}
	now := time.Now()
	e1 := signedEvent(t, 1, now.Unix(), nil)
	e2 := signedEvent(t, 1, now.Unix(), nil)

	require.Equal(t, ReasonNone, v.ValidateWrite(spec, counter, e1, e1.PubKey))
	require.Equal(t, ReasonRateLimited, v.ValidateWrite(spec, counter, e2, e2.PubKey))
}

func TestValidateWriteRejectsCreatedAtTooOld(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	spec.CreatedAtInPastDays = 1
	e := signedEvent(t, 1, time.Now().Add(-48*time.Hour).Unix(), nil)

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonCreatedAtTooOld, reason)
}

func TestValidateWriteRejectsCreatedAtTooNew(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	spec.CreatedAtInFutureSec = 60
	e := signedEvent(t, 1, time.Now().Add(1*time.Hour).Unix(), nil)

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonCreatedAtTooNew, reason)
}

func TestValidateWriteEphemeralSkipsStorageCheck(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	spec.FreeStorageBytesValue = 0
	spec.IsPaidRelay = false
	e := signedEvent(t, 20000, time.Now().Unix(), nil)

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonNone, reason, "ephemeral events must bypass read-only storage rejection")
}

func TestValidateWriteRejectsReadOnlyRelay(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	spec.FreeStorageBytesValue = 0
	spec.IsPaidRelay = false
	e := signedEvent(t, 1, time.Now().Unix(), nil)

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonReadOnly, reason)
}

func TestValidateWriteRejectsBlockedAccount(t *testing.T) {
	s := newTestStore(t)
	v := New(s)
	spec := baseSpec()
	e := signedEvent(t, 1, time.Now().Unix(), nil)

	require.NoError(t, s.UpsertAccount(&store.Account{RelayID: spec.RelayID, PubKey: e.PubKey, Blocked: true}))

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonBlocked, reason)
}

func TestValidateWriteRejectsUnpaidOnPaidRelay(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	spec.IsPaidRelay = true
	e := signedEvent(t, 1, time.Now().Unix(), nil)

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonPaidRelayNoAccess, reason)
}

func TestValidateWriteAllowsPaidAccountOnPaidRelay(t *testing.T) {
	s := newTestStore(t)
	v := New(s)
	spec := baseSpec()
	spec.IsPaidRelay = true
	e := signedEvent(t, 1, time.Now().Unix(), nil)

	require.NoError(t, s.UpsertAccount(&store.Account{RelayID: spec.RelayID, PubKey: e.PubKey, PaidToJoin: true}))

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonNone, reason)
}

func TestValidateWriteAcceptsEventWithinSmallBudget(t *testing.T) {
	s := newTestStore(t)
	v := New(s)
	spec := baseSpec()
	spec.FreeStorageBytesValue = 1
	spec.FreeStorageBytesUnit = "KB"
	spec.FullStorageAction = config.FullStorageActionPrune

	e := signedEvent(t, 1, time.Now().Unix(), nil)
	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	// A 1KB budget comfortably fits a small test event, so neither pruning
	// nor a rejection is needed.
	require.Equal(t, ReasonNone, reason)
}

func TestValidateWriteBlocksWhenFullStorageActionIsBlock(t *testing.T) {
	s := newTestStore(t)
	v := New(s)
	spec := baseSpec()
	spec.FreeStorageBytesValue = 0
	spec.FreeStorageBytesUnit = "KB"
	spec.IsPaidRelay = true
	spec.FullStorageAction = config.FullStorageActionBlock

	e := signedEvent(t, 1, time.Now().Unix(), nil)
	require.NoError(t, s.UpsertAccount(&store.Account{RelayID: spec.RelayID, PubKey: e.PubKey, PaidToJoin: true, Storage: 0}))

	reason := v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey)
	require.Equal(t, ReasonNoStorage, reason)
}

func TestValidateAuthAcceptsMatchingChallenge(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	challenge := "relay1:abc123"

	e := signedEvent(t, 22242, time.Now().Unix(), [][]string{
		{"relay", "wss://relay.example.com"},
		{"challenge", challenge},
	})

	reason := v.ValidateAuth(spec, e, challenge)
	require.Equal(t, ReasonNone, reason)
}

func TestValidateAuthRejectsMissingTags(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	e := signedEvent(t, 22242, time.Now().Unix(), nil)

	reason := v.ValidateAuth(spec, e, "relay1:abc123")
	require.Equal(t, ReasonMissingAuthTags, reason)
}

func TestValidateAuthAcceptsMixedCaseDomain(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	challenge := "relay1:abc123"

	e := signedEvent(t, 22242, time.Now().Unix(), [][]string{
		{"relay", "wss://Relay.Example.COM"},
		{"challenge", challenge},
	})

	reason := v.ValidateAuth(spec, e, challenge)
	require.Equal(t, ReasonNone, reason, "domain match must be case-insensitive")
}

func TestValidateAuthRejectsWrongDomain(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()
	challenge := "relay1:abc123"

	e := signedEvent(t, 22242, time.Now().Unix(), [][]string{
		{"relay", "wss://other.example.com"},
		{"challenge", challenge},
	})

	reason := v.ValidateAuth(spec, e, challenge)
	require.Equal(t, ReasonWrongDomain, reason)
}

func TestValidateAuthRejectsWrongChallenge(t *testing.T) {
	v := New(newTestStore(t))
	spec := baseSpec()

	e := signedEvent(t, 22242, time.Now().Unix(), [][]string{
		{"relay", "wss://relay.example.com"},
		{"challenge", "wrong-value"},
	})

	reason := v.ValidateAuth(spec, e, "relay1:abc123")
	require.Equal(t, ReasonWrongChallenge, reason)
}

func TestRateCounterResetsOnNewHour(t *testing.T) {
	c := &RateCounter{}
	hour1 := time.Unix(3600*10, 0)
	hour2 := time.Unix(3600*11, 0)

	require.True(t, c.Allow(1, hour1))
	require.False(t, c.Allow(1, hour1))
	require.True(t, c.Allow(1, hour2))
}

func TestRateCounterUnlimitedWhenZero(t *testing.T) {
	c := &RateCounter{}
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.True(t, c.Allow(0, now))
	}
}

func TestValidateWriteUsesStorageCacheOverStoreAggregate(t *testing.T) {
	s := newTestStore(t)
	cache, err := store.OpenStorageCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	v := NewWithCache(s, cache)
	spec := baseSpec()
	e := signedEvent(t, 1, time.Now().Unix(), nil)

	require.Equal(t, ReasonNone, v.ValidateWrite(spec, &RateCounter{}, e, e.PubKey))
	require.NoError(t, s.InsertEvent(spec.RelayID, e.PubKey, e))
	v.RecordWrite(spec.RelayID, e.PubKey, int64(e.SizeBytes()))

	cached, ok := cache.Get(spec.RelayID, e.PubKey)
	require.True(t, ok)
	require.Equal(t, int64(e.SizeBytes()), cached)

	second := signedEvent(t, 1, time.Now().Unix(), nil)
	require.Equal(t, ReasonNone, v.ValidateWrite(spec, &RateCounter{}, second, e.PubKey))
}
