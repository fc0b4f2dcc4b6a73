// Package validator implements the write-path and NIP-42 auth-event checks
// a relay applies before accepting an EVENT frame (spec.md §4.4).
package validator

import (
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/store"
)

// Reason is a closed set of rejection reasons, replacing the ad-hoc string
// messages original_source/relay/event_validator.py concatenates on each
// return path; the wire form is produced by Wire.
type Reason int

const (
	// ReasonNone means validation passed.
	ReasonNone Reason = iota
	ReasonRateLimited
	ReasonInvalidSignature
	ReasonCreatedAtTooOld
	ReasonCreatedAtTooNew
	ReasonReadOnly
	ReasonBlocked
	ReasonPaidRelayNoAccess
	ReasonNoStorage
	ReasonTooLarge
	ReasonMissingAuthTags
	ReasonWrongDomain
	ReasonWrongChallenge
)

// Wire renders reason as the string NIP-20 OK-frame third element expects.
func (r Reason) Wire() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonRateLimited:
		return "rate-limited: exceeded max events per hour"
	case ReasonInvalidSignature:
		return "invalid: wrong event id or signature"
	case ReasonCreatedAtTooOld:
		return "invalid: created_at is too far in the past"
	case ReasonCreatedAtTooNew:
		return "invalid: created_at is too far in the future"
	case ReasonReadOnly:
		return "blocked: relay is read-only"
	case ReasonBlocked:
		return "blocked: pubkey is blocked on this relay"
	case ReasonPaidRelayNoAccess:
		return "blocked: this is a paid relay, pubkey has not paid to join"
	case ReasonNoStorage:
		return "error: no more storage available for this pubkey"
	case ReasonTooLarge:
		return "invalid: event too large for remaining storage"
	case ReasonMissingAuthTags:
		return "restricted: NIP-42 relay/challenge tags are missing"
	case ReasonWrongDomain:
		return "restricted: wrong relay domain for auth event"
	case ReasonWrongChallenge:
		return "restricted: wrong challenge value for auth event"
	default:
		return "error: rejected"
	}
}

// RateCounter tracks the hourly event count for one connection. It lives on
// the connection (spec.md §4.6), not in the validator, since each
// connection needs its own independent counter; methods take no lock
// because a connection's read loop is single-goroutine.
type RateCounter struct {
	lastHour int64
	count    int
}

// Allow reports whether one more event is permitted under maxPerHour (0
// means unlimited), bumping the counter as a side effect. Grounded on
// original_source/relay/event_validator.py's _exceeded_max_events_per_hour.
func (c *RateCounter) Allow(maxPerHour int, now time.Time) bool {
	if maxPerHour == 0 {
		return true
	}
	hour := now.Unix() / 3600
	if c.lastHour == hour {
		c.count++
	} else {
		c.lastHour = hour
		c.count = 1
	}
	return c.count <= maxPerHour
}

// Validator runs the write and auth checks for one relay. It is stateless
// beyond the store it reads from; per-connection rate state is passed in by
// the caller via RateCounter.
type Validator struct {
	store *store.Store
	cache *store.StorageCache
	clock func() time.Time
}

// New constructs a Validator backed by s. A nil clock defaults to time.Now.
func New(s *store.Store) *Validator {
	return &Validator{store: s, clock: time.Now}
}

// NewWithCache constructs a Validator whose storage-used lookups are
// fronted by cache, avoiding a SQL SUM() aggregate on every EVENT frame.
func NewWithCache(s *store.Store, cache *store.StorageCache) *Validator {
	return &Validator{store: s, cache: cache, clock: time.Now}
}

// RecordWrite updates the storage cache after e has been durably persisted,
// so the next validation for publisherPubkey doesn't miss the cache.
func (v *Validator) RecordWrite(relayID, publisherPubkey string, sizeBytes int64) {
	if v.cache == nil {
		return
	}
	if _, err := v.cache.Add(relayID, publisherPubkey, sizeBytes); err != nil {
		log.Debug().Err(err).Msg("failed to update storage cache")
	}
}

func (v *Validator) now() time.Time {
	if v.clock != nil {
		return v.clock()
	}
	return time.Now()
}

// ValidateWrite runs the full write-path check for e, published on behalf
// of publisherPubkey (the authenticated pubkey if any, else e.PubKey).
// Grounded step-for-step on event_validator.py's validate_write/
// _validate_event/_validate_storage.
func (v *Validator) ValidateWrite(spec *config.RelaySpec, counter *RateCounter, e *nostr.Event, publisherPubkey string) Reason {
	if reason := v.validateEvent(spec, counter, e); reason != ReasonNone {
		return reason
	}

	if e.IsEphemeral() {
		return ReasonNone
	}

	return v.validateStorage(spec, publisherPubkey, e.SizeBytes())
}

func (v *Validator) validateEvent(spec *config.RelaySpec, counter *RateCounter, e *nostr.Event) Reason {
	if !counter.Allow(spec.MaxEventsPerHour, v.now()) {
		return ReasonRateLimited
	}

	if err := e.CheckSignature(); err != nil {
		return ReasonInvalidSignature
	}

	now := v.now()
	if lb := spec.CreatedAtLowerBound(now); lb != nil && e.CreatedAt < *lb {
		return ReasonCreatedAtTooOld
	}
	if ub := spec.CreatedAtUpperBound(now); ub != nil && e.CreatedAt > *ub {
		return ReasonCreatedAtTooNew
	}

	return ReasonNone
}

func (v *Validator) validateStorage(spec *config.RelaySpec, pubkey string, eventSize int) Reason {
	if spec.IsReadOnlyRelay() {
		return ReasonReadOnly
	}

	account, err := v.store.GetAccount(spec.RelayID, pubkey)
	if err != nil || account == nil {
		account = store.NullAccount(pubkey)
	}

	if account.Blocked {
		return ReasonBlocked
	}

	if spec.IsPaidRelay && !account.CanJoin() {
		return ReasonPaidRelayNoAccess
	}

	storedBytes, err := v.storageUsed(spec.RelayID, pubkey)
	if err != nil {
		storedBytes = 0
	}

	totalAvailable := account.Storage + spec.FreeStorageBytes()
	if storedBytes+int64(eventSize) <= totalAvailable {
		return ReasonNone
	}

	if spec.FullStorageAction == config.FullStorageActionBlock {
		return ReasonNoStorage
	}

	if int64(eventSize) > totalAvailable {
		return ReasonTooLarge
	}

	if err := v.pruneUntil(spec.RelayID, pubkey, int64(eventSize)); err != nil {
		return ReasonNoStorage
	}

	return ReasonNone
}

// storageUsed returns (relayID, pubkey)'s cumulative published bytes,
// consulting the pebble-backed cache before falling back to the store's
// SQL SUM() aggregate, and populating the cache on a miss.
func (v *Validator) storageUsed(relayID, pubkey string) (int64, error) {
	if v.cache != nil {
		if cached, ok := v.cache.Get(relayID, pubkey); ok {
			return cached, nil
		}
	}

	storedBytes, err := v.store.StorageUsed(relayID, pubkey)
	if err != nil {
		return 0, err
	}

	if v.cache != nil {
		if err := v.cache.Set(relayID, pubkey, storedBytes); err != nil {
			log.Debug().Err(err).Msg("failed to seed storage cache")
		}
	}

	return storedBytes, nil
}

// pruneUntil deletes the oldest events for (relayID, pubkey) until
// spaceToRegain bytes have been freed or the oldest-10,000 window is
// exhausted. Grounded on original_source/crud.py's prune_old_events.
func (v *Validator) pruneUntil(relayID, pubkey string, spaceToRegain int64) error {
	oldest, err := v.store.OldestEvents(relayID, pubkey)
	if err != nil {
		return err
	}

	var ids []string
	var freed int64
	for _, e := range oldest {
		ids = append(ids, e.ID)
		freed += e.Size
		if freed >= spaceToRegain {
			break
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := v.store.DeleteEvents(relayID, &nostr.Filter{IDs: ids}); err != nil {
		return err
	}

	if v.cache != nil {
		if err := v.cache.Invalidate(relayID, pubkey); err != nil {
			log.Debug().Err(err).Msg("failed to invalidate storage cache after prune")
		}
	}

	return nil
}

// ValidateAuth checks a NIP-42 kind-22242 auth response event against the
// challenge this connection issued. Grounded on event_validator.py's
// validate_auth_event.
func (v *Validator) ValidateAuth(spec *config.RelaySpec, e *nostr.Event, issuedChallenge string) Reason {
	if err := e.CheckSignature(); err != nil {
		return ReasonInvalidSignature
	}

	relayTags := e.TagValues("relay")
	challengeTags := e.TagValues("challenge")
	if len(relayTags) == 0 || len(challengeTags) == 0 {
		return ReasonMissingAuthTags
	}

	if !strings.EqualFold(spec.Domain, extractDomain(relayTags[0])) {
		return ReasonWrongDomain
	}

	if issuedChallenge != challengeTags[0] {
		return ReasonWrongChallenge
	}

	return ReasonNone
}

// extractDomain pulls the host (without port) out of a relay URL tag value.
// Hand-rolled on net/url: no corpus library models this better than the
// stdlib URL parser for a single-field extraction.
func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Hostname() != "" {
		return u.Hostname()
	}
	return raw
}
