// Package nostr implements the typed Nostr primitives relaynest ingests,
// persists and matches: events, filters, and the kind-class rules that
// decide how a write is handled (replaceable, ephemeral, delete, regular).
package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	gonostr "github.com/nbd-wtf/go-nostr"
)

// EventType is a client<->relay frame tag (NIP-01).
type EventType string

const (
	TypeEvent  EventType = "EVENT"
	TypeReq    EventType = "REQ"
	TypeClose  EventType = "CLOSE"
	TypeAuth   EventType = "AUTH"
	TypeOK     EventType = "OK"
	TypeEOSE   EventType = "EOSE"
	TypeNotice EventType = "NOTICE"
)

// Nostr kind constants used for classification (spec.md §3).
const (
	KindProfile       = 0
	KindContacts      = 3
	KindDelete        = 5
	KindDirectMessage = 4
	KindChannelMeta   = 41
	KindAuthResponse  = 22242
)

// Event is the wire shape of a Nostr event, field-for-field (spec.md §6).
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize produces the canonical id-hashing payload: [0, pubkey,
// created_at, kind, tags, content], no whitespace, stable member order.
func (e *Event) Serialize() []byte {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	row := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}
	// json.Marshal would turn <, > and & into unicode escape sequences;
	// the canonical form (and go-nostr's own serialization) leaves them
	// literal.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(row)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// ComputeID returns the hex sha256 of the canonical serialization.
func (e *Event) ComputeID() string {
	sum := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(sum[:])
}

// SizeBytes is the byte length of the canonical JSON object representation
// used for storage accounting (spec.md §4.1).
func (e *Event) SizeBytes() int {
	b, _ := json.Marshal(e)
	return len(b)
}

// CheckSignature verifies id recomputation and the Schnorr signature by
// delegating to github.com/nbd-wtf/go-nostr, the same library and
// conversion pattern the teacher repo used in internal/relay/types.go.
func (e *Event) CheckSignature() error {
	want := e.ComputeID()
	if e.ID != want {
		return fmt.Errorf("invalid-id: expected %q got %q", want, e.ID)
	}

	ge := e.toGoNostr()
	ok, err := ge.CheckSignature()
	if err != nil {
		return fmt.Errorf("invalid-pubkey: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid-sig: signature does not verify for pubkey %q", e.PubKey)
	}
	return nil
}

func (e *Event) toGoNostr() *gonostr.Event {
	ge := &gonostr.Event{
		ID:        e.ID,
		PubKey:    e.PubKey,
		CreatedAt: gonostr.Timestamp(e.CreatedAt),
		Kind:      e.Kind,
		Content:   e.Content,
		Sig:       e.Sig,
	}
	for _, t := range e.Tags {
		ge.Tags = append(ge.Tags, gonostr.Tag(t))
	}
	return ge
}

// IsReplaceable reports whether writing this event supersedes prior events
// with the same (relay_id, pubkey, kind) (spec.md §3).
func (e *Event) IsReplaceable() bool {
	if e.Kind == KindProfile || e.Kind == KindContacts || e.Kind == KindChannelMeta {
		return true
	}
	return e.Kind >= 10000 && e.Kind < 20000
}

// IsEphemeral reports whether the event is broadcast-only, never persisted.
func (e *Event) IsEphemeral() bool {
	return e.Kind >= 20000 && e.Kind < 30000
}

// IsDeleteEvent reports whether this is a NIP-09 delete event (kind 5).
func (e *Event) IsDeleteEvent() bool {
	return e.Kind == KindDelete
}

// IsDirectMessage reports whether this is a NIP-04 direct message (kind 4).
func (e *Event) IsDirectMessage() bool {
	return e.Kind == KindDirectMessage
}

// IsAuthResponse reports whether this is a NIP-42 auth response (kind 22242).
func (e *Event) IsAuthResponse() bool {
	return e.Kind == KindAuthResponse
}

// IsRegular reports whether the event falls in the plain regular-kind range.
func (e *Event) IsRegular() bool {
	return e.Kind >= 1000 && e.Kind < 10000
}

// TagValues returns every value for tags named tagName.
func (e *Event) TagValues(tagName string) []string {
	var values []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == tagName {
			values = append(values, t[1])
		}
	}
	return values
}

// HasTagValue reports whether some tag named tagName carries tagValue.
func (e *Event) HasTagValue(tagName, tagValue string) bool {
	for _, v := range e.TagValues(tagName) {
		if v == tagValue {
			return true
		}
	}
	return false
}

// SerializeResponse wraps the event in a ["EVENT", subID, event] frame.
func (e *Event) SerializeResponse(subID string) []interface{} {
	return []interface{}{TypeEvent, subID, e}
}
