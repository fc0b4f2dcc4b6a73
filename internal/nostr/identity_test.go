package nostr

import "testing"

func TestGenerateIdentityRoundTrips(t *testing.T) {
	npub, nsec, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if !ValidateNpub(npub) {
		t.Fatalf("generated npub %q does not validate", npub)
	}
	if !ValidateNsec(nsec) {
		t.Fatalf("generated nsec %q does not validate", nsec)
	}

	derived, err := NsecToNpub(nsec)
	if err != nil {
		t.Fatalf("NsecToNpub: %v", err)
	}
	if derived != npub {
		t.Fatalf("NsecToNpub(nsec) = %q, want %q", derived, npub)
	}
}

func TestNpubToHexRejectsWrongPrefix(t *testing.T) {
	_, nsec, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	if _, err := NpubToHex(nsec); err == nil {
		t.Fatal("NpubToHex accepted an nsec value")
	}
}

func TestValidateNpubRejectsGarbage(t *testing.T) {
	if ValidateNpub("not-a-key") {
		t.Fatal("ValidateNpub accepted garbage input")
	}
	if ValidateNsec("not-a-key") {
		t.Fatal("ValidateNsec accepted garbage input")
	}
}
