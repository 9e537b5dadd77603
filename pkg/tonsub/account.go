package tonsub

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseAccountID parses a TON raw address of the form "<workchain>:<64 hex
// chars>" (e.g. "0:deadbeef...") into an AccountID, discarding the
// workchain id since this repository's AccountID is workchain-agnostic
// (masterchain/basechain distinction is a Non-goal). Matches the raw
// address format ton_block::MsgAddressInt::from_str accepts in the
// reference configuration loader.
func ParseAccountID(s string) (AccountID, error) {
	parts := strings.SplitN(s, ":", 2)
	hexPart := parts[len(parts)-1]
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return AccountID{}, fmt.Errorf("tonsub: invalid account address %q: %w", s, err)
	}
	if len(raw) != len(AccountID{}) {
		return AccountID{}, fmt.Errorf("tonsub: account address %q has %d bytes, want %d", s, len(raw), len(AccountID{}))
	}
	var id AccountID
	copy(id[:], raw)
	return id, nil
}
