// Package codec implements the fixed binary layout that the Casper gateway
// contract stores for every outgoing message:
//
//	srcChainId:u32(BE) | dstChainId:u32(BE) | srcGateway:32B | receiver:32B | nonce:u64(BE) | payload
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	AddressLength = 32
	HeaderLength  = 4 + 4 + AddressLength + AddressLength + 8

	// MaxSniffedPayloadLength bounds the length values that the legacy decoder
	// accepts as a payload prefix.
	MaxSniffedPayloadLength = 10000
)

var ErrMalformedWireRecord = errors.New("malformed wire record")

// WireMode selects how the payload tail of a record is interpreted.
type WireMode int

const (
	// WireLegacy treats the first 4 bytes of the tail as a big-endian length
	// only when the value is smaller than the remaining bytes and below
	// MaxSniffedPayloadLength. Otherwise the whole tail is the payload.
	WireLegacy WireMode = iota
	// WireRaw takes the whole tail as the payload.
	WireRaw
	// WireLengthPrefixed requires an explicit u32 big-endian payload length.
	WireLengthPrefixed
)

func (m WireMode) String() string {
	switch m {
	case WireLegacy:
		return "legacy"
	case WireRaw:
		return "raw"
	case WireLengthPrefixed:
		return "length-prefixed"
	default:
		return fmt.Sprintf("WireMode(%d)", int(m))
	}
}

// ParseWireMode parses the configuration form of a WireMode.
func ParseWireMode(s string) (WireMode, error) {
	switch s {
	case "", "legacy":
		return WireLegacy, nil
	case "raw":
		return WireRaw, nil
	case "length-prefixed", "prefixed":
		return WireLengthPrefixed, nil
	default:
		return 0, fmt.Errorf("unknown wire mode: %q", s)
	}
}

// Message is the decoded form of a wire record.
type Message struct {
	SrcChainID uint32
	DstChainID uint32
	SrcGateway [AddressLength]byte
	Receiver   [AddressLength]byte
	Nonce      uint64
	Payload    []byte
}

func (m *Message) Equal(o *Message) bool {
	return m.SrcChainID == o.SrcChainID &&
		m.DstChainID == o.DstChainID &&
		m.SrcGateway == o.SrcGateway &&
		m.Receiver == o.Receiver &&
		m.Nonce == o.Nonce &&
		bytes.Equal(m.Payload, o.Payload)
}

// Encode returns the record bytes exactly as the gateway contract builds them,
// without a payload length prefix.
func Encode(m *Message) []byte {
	out := make([]byte, HeaderLength, HeaderLength+len(m.Payload))
	putHeader(out, m)
	return append(out, m.Payload...)
}

// EncodeLengthPrefixed is the inverse of Decode with WireLengthPrefixed.
func EncodeLengthPrefixed(m *Message) []byte {
	out := make([]byte, HeaderLength+4, HeaderLength+4+len(m.Payload))
	putHeader(out, m)
	binary.BigEndian.PutUint32(out[HeaderLength:], uint32(len(m.Payload)))
	return append(out, m.Payload...)
}

func putHeader(out []byte, m *Message) {
	binary.BigEndian.PutUint32(out[0:4], m.SrcChainID)
	binary.BigEndian.PutUint32(out[4:8], m.DstChainID)
	copy(out[8:40], m.SrcGateway[:])
	copy(out[40:72], m.Receiver[:])
	binary.BigEndian.PutUint64(out[72:80], m.Nonce)
}

// Decode parses a wire record.
func Decode(b []byte, mode WireMode) (*Message, error) {
	if len(b) < HeaderLength {
		return nil, errors.Wrapf(ErrMalformedWireRecord, "record is %d bytes, header needs %d", len(b), HeaderLength)
	}
	m := &Message{
		SrcChainID: binary.BigEndian.Uint32(b[0:4]),
		DstChainID: binary.BigEndian.Uint32(b[4:8]),
		Nonce:      binary.BigEndian.Uint64(b[72:80]),
	}
	copy(m.SrcGateway[:], b[8:40])
	copy(m.Receiver[:], b[40:72])

	tail := b[HeaderLength:]
	switch mode {
	case WireRaw:
		m.Payload = clone(tail)
	case WireLegacy:
		m.Payload = clone(sniffPayload(tail))
	case WireLengthPrefixed:
		if len(tail) < 4 {
			return nil, errors.Wrap(ErrMalformedWireRecord, "missing payload length prefix")
		}
		n := binary.BigEndian.Uint32(tail[:4])
		if uint64(n) > uint64(len(tail)-4) {
			return nil, errors.Wrapf(ErrMalformedWireRecord, "payload length %d exceeds remaining %d bytes", n, len(tail)-4)
		}
		m.Payload = clone(tail[4 : 4+n])
	default:
		return nil, fmt.Errorf("unknown wire mode: %v", mode)
	}
	return m, nil
}

func sniffPayload(tail []byte) []byte {
	if len(tail) < 4 {
		return tail
	}
	n := binary.BigEndian.Uint32(tail[:4])
	if uint64(n) < uint64(len(tail)) && n < MaxSniffedPayloadLength {
		end := 4 + int(n)
		if end > len(tail) {
			end = len(tail)
		}
		return tail[4:end]
	}
	return tail
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// PadAddress left-pads b with zeros to 32 bytes. Longer inputs keep their
// trailing 32 bytes.
func PadAddress(b []byte) [AddressLength]byte {
	var out [AddressLength]byte
	if len(b) >= AddressLength {
		copy(out[:], b[len(b)-AddressLength:])
	} else {
		copy(out[AddressLength-len(b):], b)
	}
	return out
}
