package tonobserve

import (
	"encoding/binary"
	"fmt"
)

// RawMessage is this repository's opaque stand-in for an ABI-encoded TON
// external message: a named function plus a byte payload, with no byte
// layout decoding performed anywhere in this package (per the Non-goal
// excluding ABI wire encoding).
type RawMessage struct {
	Function string
	Payload  []byte
}

// Encode serializes m as [u16 name length][name][payload], the wire layout
// DecodeMessage expects. This is a placeholder framing, not a TON ABI cell
// encoding.
func (m RawMessage) Encode() []byte {
	out := make([]byte, 2+len(m.Function)+len(m.Payload))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(m.Function)))
	copy(out[2:], m.Function)
	copy(out[2+len(m.Function):], m.Payload)
	return out
}

// DecodeMessage parses the framing produced by Encode.
func DecodeMessage(body []byte) (RawMessage, error) {
	if len(body) < 2 {
		return RawMessage{}, fmt.Errorf("tonobserve: message body too short")
	}
	nameLen := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) < 2+nameLen {
		return RawMessage{}, fmt.Errorf("tonobserve: message body truncated")
	}
	return RawMessage{
		Function: string(body[2 : 2+nameLen]),
		Payload:  append([]byte(nil), body[2+nameLen:]...),
	}, nil
}

// UnsignedMessage is a pure message-builder's output: everything needed to
// sign and submit a call to a contract, but not yet signed. ExpiresAt is a
// TON message expiration unix timestamp; DeliverMessage treats the deadline
// as fatal (MessageExpired) rather than retrying forever.
type UnsignedMessage struct {
	Account   [32]byte
	Function  string
	Payload   []byte
	ExpiresAt uint32
}
