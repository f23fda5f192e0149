package escrow

import (
	"strings"
	"testing"
)

func TestAddressFromString(t *testing.T) {
	a, err := AddressFromString("VAULT-USER")
	if err != nil {
		t.Fatalf("from string: %v", err)
	}
	if !a.IsValid() {
		t.Error("parsed address reported invalid")
	}
	if a.String() != "VAULT-USER" {
		t.Errorf("round trip = %q", a.String())
	}

	if _, err := AddressFromString(""); err == nil {
		t.Error("empty address accepted")
	}
	if _, err := AddressFromString(strings.Repeat("x", AddressLen+1)); err == nil {
		t.Error("oversized address accepted")
	}
	full, err := AddressFromString(strings.Repeat("x", AddressLen))
	if err != nil {
		t.Fatalf("full width address: %v", err)
	}
	if full.String() != strings.Repeat("x", AddressLen) {
		t.Errorf("full width round trip = %q", full.String())
	}

	var zero Address
	if zero.IsValid() {
		t.Error("zero address reported valid")
	}
}

func TestEvidenceDigestFromHex(t *testing.T) {
	hex := strings.Repeat("0f", EvidenceDigestLen)
	d, err := EvidenceDigestFromHex(hex)
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if d.IsZero() {
		t.Error("parsed digest reported zero")
	}
	if d.String() != hex {
		t.Errorf("round trip = %q", d.String())
	}

	if _, err := EvidenceDigestFromHex("abcd"); err == nil {
		t.Error("short digest accepted")
	}
	if _, err := EvidenceDigestFromHex(strings.Repeat("zz", EvidenceDigestLen)); err == nil {
		t.Error("non-hex digest accepted")
	}
}

func TestStateStrings(t *testing.T) {
	agreementWants := map[AgreementState]string{
		AgreementCreated:   "CREATED",
		AgreementFunded:    "FUNDED",
		AgreementActive:    "ACTIVE",
		AgreementCompleted: "COMPLETED",
		AgreementRefunded:  "REFUNDED",
		AgreementDisputed:  "DISPUTED",
	}
	for state, want := range agreementWants {
		if state.String() != want {
			t.Errorf("agreement state %d = %q, want %q", state, state.String(), want)
		}
	}
	milestoneWants := map[MilestoneState]string{
		MilestonePending:   "PENDING",
		MilestoneVerified:  "VERIFIED",
		MilestoneReleased:  "RELEASED",
		MilestoneCancelled: "CANCELLED",
	}
	for state, want := range milestoneWants {
		if state.String() != want {
			t.Errorf("milestone state %d = %q, want %q", state, state.String(), want)
		}
	}
}
