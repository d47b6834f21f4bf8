package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/knotx-labs/knotx-relayer/codec"
)

// CanonicalMessage is the chain-agnostic form of a message observed on a source chain.
// It is never persisted directly; see PersistedMessage.
type CanonicalMessage struct {
	MessageID          string    `json:"message_id"`
	Nonce              uint64    `json:"nonce"`
	SourceChain        string    `json:"source_chain"`
	DestinationChain   string    `json:"destination_chain"`
	SourceGateway      string    `json:"source_gateway"`
	DestinationGateway string    `json:"destination_gateway"`
	Sender             []byte    `json:"sender"`
	Receiver           []byte    `json:"receiver"`
	Payload            []byte    `json:"payload"`
	PayloadHash        string    `json:"payload_hash"`
	ObservedAt         time.Time `json:"observed_at"`

	SourceTxHash string `json:"source_tx_hash,omitempty"`
	SourceBlock  uint64 `json:"source_block,omitempty"`
}

// MessageIDFor derives the identity of a message from its source chain and nonce.
// The result is stable across restarts and re-observations of the same on-chain record.
func MessageIDFor(sourceChain string, nonce uint64) string {
	h := sha256.New()
	h.Write([]byte(sourceChain))
	h.Write([]byte{0})
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h.Write(n[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// PayloadHash returns the hex-encoded sha256 of payload.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// FormatGateway normalizes a raw on-chain address into the gateway string form of kind.
func FormatGateway(kind ChainKind, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	switch kind {
	case ChainKindEVM:
		return common.BytesToAddress(raw).Hex()
	default:
		padded := codec.PadAddress(raw)
		return "0x" + hex.EncodeToString(padded[:])
	}
}

// NewCanonicalMessage builds a message observed on src and destined for dst, deriving
// its identity, payload hash and source gateway string. The destination gateway is
// the one registered for dst; the router fills it in when the registry has none.
func NewCanonicalMessage(src, dst ChainInfo, nonce uint64, sender, receiver, payload []byte, observedAt time.Time) *CanonicalMessage {
	return &CanonicalMessage{
		MessageID:          MessageIDFor(src.Name, nonce),
		Nonce:              nonce,
		SourceChain:        src.Name,
		DestinationChain:   dst.Name,
		SourceGateway:      FormatGateway(src.Kind, sender),
		DestinationGateway: dst.Gateway,
		Sender:             sender,
		Receiver:           receiver,
		Payload:            payload,
		PayloadHash:        PayloadHash(payload),
		ObservedAt:         observedAt.UTC(),
	}
}

// WireMessage rebuilds the fixed binary record of m for the given numeric chain ids.
func (m *CanonicalMessage) WireMessage(srcID, dstID uint32) *codec.Message {
	return &codec.Message{
		SrcChainID: srcID,
		DstChainID: dstID,
		SrcGateway: codec.PadAddress(m.Sender),
		Receiver:   codec.PadAddress(m.Receiver),
		Nonce:      m.Nonce,
		Payload:    m.Payload,
	}
}
