package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/registry"
	"github.com/relaynest/relaynest/internal/relay"
	"github.com/relaynest/relaynest/internal/store"
)

func newTestRouter(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	s, err := store.Init("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := registry.New(s)
	mgr := relay.New(reg, s)

	npub, _, err := nostr.GenerateIdentity()
	require.NoError(t, err)
	config.ResetForTest(&config.Config{
		Identity: config.IdentityConfig{Npub: npub},
	})

	r := NewRouter(mgr, reg)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, reg
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	server, _ := newTestRouter(t)
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRelayEndpointServesNIP11Document(t *testing.T) {
	server, reg := newTestRouter(t)
	require.NoError(t, reg.Enable("relay1", config.RelaySpec{
		Name:                  "My Relay",
		LimitPerFilter:        500,
		MaxEventsPerHour:      100,
		FreeStorageBytesValue: 500,
		FreeStorageBytesUnit:  "MB",
		Domain:                "relay.example.com",
	}))

	req, err := http.NewRequest(http.MethodGet, server.URL+"/relay1", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/nostr+json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info relayInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	require.Equal(t, "relay1", info.ID)
	require.Equal(t, "My Relay", info.Name)
	require.Len(t, info.Pubkey, 64, "pubkey field must be hex, not bech32 npub")
	require.NotEmpty(t, info.SupportedNIPs)
	require.Equal(t, 500, info.Config.LimitPerFilter)
	require.Equal(t, 100, info.Config.MaxEventsPerHour)
	require.Equal(t, int64(500), info.Config.FreeStorageValue)
	require.Equal(t, "MB", info.Config.FreeStorageUnit)
	require.Equal(t, "relay.example.com", info.Config.Domain)
}

func TestRelayEndpointNotFoundForUnknownRelay(t *testing.T) {
	server, _ := newTestRouter(t)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/does-not-exist", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/nostr+json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
