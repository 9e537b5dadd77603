package tonsub

import "testing"

func TestParseAccountIDAcceptsWorkchainPrefixedAddress(t *testing.T) {
	id, err := ParseAccountID("0:0102030000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id[0] != 1 || id[1] != 2 || id[2] != 3 {
		t.Fatalf("unexpected account id %x", id)
	}
}

func TestParseAccountIDRejectsWrongLength(t *testing.T) {
	if _, err := ParseAccountID("0:0102"); err == nil {
		t.Fatal("expected error for short address")
	}
}

func TestParseAccountIDRejectsNonHex(t *testing.T) {
	if _, err := ParseAccountID("0:zz"); err == nil {
		t.Fatal("expected error for non-hex address")
	}
}
