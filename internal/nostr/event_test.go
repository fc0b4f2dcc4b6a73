package nostr

import (
	"testing"

	gonostr "github.com/nbd-wtf/go-nostr"
)

// signedEvent builds a valid, signed Event using a freshly generated key.
func signedEvent(t *testing.T, kind int, content string, tags [][]string) *Event {
	t.Helper()
	sk := gonostr.GeneratePrivateKey()
	pk, err := gonostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}

	ge := &gonostr.Event{
		PubKey:    pk,
		CreatedAt: gonostr.Timestamp(1700000000),
		Kind:      kind,
		Content:   content,
	}
	for _, tag := range tags {
		ge.Tags = append(ge.Tags, gonostr.Tag(tag))
	}
	if err := ge.Sign(sk); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	e := &Event{
		ID:        ge.ID,
		PubKey:    ge.PubKey,
		CreatedAt: int64(ge.CreatedAt),
		Kind:      ge.Kind,
		Content:   ge.Content,
		Sig:       ge.Sig,
	}
	for _, tag := range ge.Tags {
		e.Tags = append(e.Tags, []string(tag))
	}
	return e
}

func TestCheckSignatureValid(t *testing.T) {
	e := signedEvent(t, 1, "hello", nil)
	if err := e.CheckSignature(); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestCheckSignatureTamperedID(t *testing.T) {
	e := signedEvent(t, 1, "hello", nil)
	e.Content = "tampered"
	if err := e.CheckSignature(); err == nil {
		t.Fatal("expected invalid-id error, got nil")
	}
}

func TestCheckSignatureTamperedSig(t *testing.T) {
	e := signedEvent(t, 1, "hello", nil)
	e.Sig = e.Sig[:len(e.Sig)-2] + "00"
	if err := e.CheckSignature(); err == nil {
		t.Fatal("expected invalid-sig error, got nil")
	}
}

func TestComputeIDRoundTrip(t *testing.T) {
	e := signedEvent(t, 1, "round trip", [][]string{{"e", "abc"}})
	id1 := e.ComputeID()
	id2 := e.ComputeID()
	if id1 != id2 || id1 != e.ID {
		t.Fatalf("canonical id not stable: %q vs %q vs %q", id1, id2, e.ID)
	}
}

func TestKindClassification(t *testing.T) {
	cases := []struct {
		kind                                            int
		replaceable, ephemeral, delete, dm, auth, regular bool
	}{
		{0, true, false, false, false, false, false},
		{3, true, false, false, false, false, false},
		{41, true, false, false, false, false, false},
		{1, false, false, false, false, false, false},
		{4, false, false, false, true, false, false},
		{5, false, false, true, false, false, false},
		{1000, false, false, false, false, false, true},
		{10000, true, false, false, false, false, false},
		{19999, true, false, false, false, false, false},
		{20000, false, true, false, false, false, false},
		{29999, false, true, false, false, false, false},
		{22242, false, false, false, false, true, false},
	}
	for _, c := range cases {
		e := &Event{Kind: c.kind}
		if got := e.IsReplaceable(); got != c.replaceable {
			t.Errorf("kind %d: IsReplaceable = %v, want %v", c.kind, got, c.replaceable)
		}
		if got := e.IsEphemeral(); got != c.ephemeral {
			t.Errorf("kind %d: IsEphemeral = %v, want %v", c.kind, got, c.ephemeral)
		}
		if got := e.IsDeleteEvent(); got != c.delete {
			t.Errorf("kind %d: IsDeleteEvent = %v, want %v", c.kind, got, c.delete)
		}
		if got := e.IsDirectMessage(); got != c.dm {
			t.Errorf("kind %d: IsDirectMessage = %v, want %v", c.kind, got, c.dm)
		}
		if got := e.IsAuthResponse(); got != c.auth {
			t.Errorf("kind %d: IsAuthResponse = %v, want %v", c.kind, got, c.auth)
		}
		if got := e.IsRegular(); got != c.regular {
			t.Errorf("kind %d: IsRegular = %v, want %v", c.kind, got, c.regular)
		}
	}
}

func TestTagValues(t *testing.T) {
	e := &Event{Tags: [][]string{{"e", "id1"}, {"p", "pub1"}, {"e", "id2"}}}
	got := e.TagValues("e")
	if len(got) != 2 || got[0] != "id1" || got[1] != "id2" {
		t.Fatalf("TagValues(e) = %v", got)
	}
	if !e.HasTagValue("p", "pub1") {
		t.Fatal("expected HasTagValue p/pub1 true")
	}
	if e.HasTagValue("p", "pub2") {
		t.Fatal("expected HasTagValue p/pub2 false")
	}
}
