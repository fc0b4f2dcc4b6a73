package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndGetAccount(t *testing.T) {
	s := newTestStore(t)

	a := &Account{RelayID: "relay1", PubKey: "pubA", Sats: 100, Storage: 0, Allowed: true}
	require.NoError(t, s.UpsertAccount(a))

	got, err := s.GetAccount("relay1", "pubA")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(100), got.Sats)
	require.True(t, got.Allowed)
	require.False(t, got.Blocked)
}

func TestGetAccountUnknownReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAccount("relay1", "nobody")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpsertAccountOverwritesMutableFields(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertAccount(&Account{RelayID: "relay1", PubKey: "pubA", Sats: 50}))
	require.NoError(t, s.UpsertAccount(&Account{RelayID: "relay1", PubKey: "pubA", Sats: 150, Blocked: true}))

	got, err := s.GetAccount("relay1", "pubA")
	require.NoError(t, err)
	require.Equal(t, int64(150), got.Sats)
	require.True(t, got.Blocked)
}

func TestListAccountsFiltersByFlags(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertAccount(&Account{RelayID: "relay1", PubKey: "pubA", Allowed: true}))
	require.NoError(t, s.UpsertAccount(&Account{RelayID: "relay1", PubKey: "pubB", Allowed: false, Blocked: true}))

	allowed, err := s.ListAccounts("relay1", true, false)
	require.NoError(t, err)
	require.Len(t, allowed, 1)
	require.Equal(t, "pubA", allowed[0].PubKey)
}
