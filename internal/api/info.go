package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/registry"
	"github.com/relaynest/relaynest/internal/store"
)

// relayInfoVersion is this relay's own software version string, reported
// in the NIP-11 document alongside the relay's public identity.
const relayInfoVersion = "0.1.0"

// supportedNIPs lists the protocol extensions this relay implements.
// Grounded on original_source/relay/relay.py's NostrRelay.info, including
// NIP-42 from the original's list.
var supportedNIPs = []int{1, 2, 4, 9, 11, 15, 16, 20, 22, 28, 42}

// relayInfo is the NIP-11 "relay information document" served to clients
// that GET a relay's URL with an Accept: application/nostr+json header.
// Grounded on spec.md §6's exact field list: id, name, description,
// pubkey, contact, supported_nips, software, version, and the public
// config subset (wallet/admission fields excluded).
type relayInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Pubkey        string `json:"pubkey,omitempty"`
	Contact       string `json:"contact,omitempty"`
	SupportedNIPs []int  `json:"supported_nips"`
	Software      string `json:"software"`
	Version       string `json:"version"`

	Limitation struct {
		MaxFilters      int  `json:"max_filters,omitempty"`
		AuthRequired    bool `json:"auth_required,omitempty"`
		PaymentRequired bool `json:"payment_required,omitempty"`
	} `json:"limitation"`

	// Config is the public subset of the relay's RelaySpec: the limits a
	// client needs to negotiate against, with wallet and admission-list
	// fields (cost_to_join, storage_cost_*, account allow/block lists)
	// excluded.
	Config relayInfoConfig `json:"config"`
}

type relayInfoConfig struct {
	LimitPerFilter       int    `json:"limit_per_filter,omitempty"`
	MaxEventsPerHour     int    `json:"max_events_per_hour,omitempty"`
	CreatedAtInPastDays  int    `json:"created_at_in_past_days,omitempty"`
	CreatedAtInFutureSec int    `json:"created_at_in_future_sec,omitempty"`
	FreeStorageValue     int64  `json:"free_storage_bytes_value"`
	FreeStorageUnit      string `json:"free_storage_bytes_unit,omitempty"`
	IsPaidRelay          bool   `json:"is_paid_relay"`
	Domain               string `json:"domain,omitempty"`
}

// infoHandler renders relayID's NIP-11 document, grounded on
// original_source/relay/relay.py's NostrRelay.info plus the per-relay
// config fields relevant to client-side capability negotiation.
func infoHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		relayID := relayIDFromPath(r)
		spec, err := reg.Get(relayID)
		if err != nil {
			http.Error(w, "relay not found", http.StatusNotFound)
			return
		}

		row, err := reg.Row(relayID)
		if err != nil {
			log.Debug().Err(err).Str("relay_id", relayID).Msg("failed to load relay row for info document")
			row = nil
		}

		info := relayInfo{
			ID:            relayID,
			Name:          spec.Name,
			Pubkey:        relayPubkeyHex(row),
			SupportedNIPs: supportedNIPs,
			Software:      "relaynest",
			Version:       relayInfoVersion,
		}
		if row != nil {
			info.Description = row.Description
			info.Contact = row.Contact
		}

		info.Limitation.MaxFilters = spec.MaxClientFilters
		info.Limitation.AuthRequired = spec.RequireAuthEvents || spec.RequireAuthFilter
		info.Limitation.PaymentRequired = spec.IsPaidRelay

		info.Config = relayInfoConfig{
			LimitPerFilter:       spec.LimitPerFilter,
			MaxEventsPerHour:     spec.MaxEventsPerHour,
			CreatedAtInPastDays:  spec.CreatedAtInPastDays,
			CreatedAtInFutureSec: spec.CreatedAtInFutureSec,
			FreeStorageValue:     spec.FreeStorageBytesValue,
			FreeStorageUnit:      spec.FreeStorageBytesUnit,
			IsPaidRelay:          spec.IsPaidRelay,
			Domain:               spec.Domain,
		}

		w.Header().Set("Content-Type", "application/nostr+json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(info)
	}
}

// relayPubkeyHex resolves the hex pubkey to publish for a relay: the row's
// own pubkey if the admin set one, otherwise the host process's identity
// (config.Identity.Npub, decoded from bech32).
func relayPubkeyHex(row *store.RelayRow) string {
	if row != nil && row.PubKey != "" {
		return row.PubKey
	}
	pubkeyHex, err := nostr.NpubToHex(config.Get().Identity.Npub)
	if err != nil {
		log.Debug().Err(err).Msg("relay identity not yet configured, omitting pubkey from info document")
		return ""
	}
	return pubkeyHex
}
