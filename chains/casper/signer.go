package casper

import (
	"crypto/sha256"

	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/knotx-labs/knotx-relayer/core"
)

// compactRecoveryBase is the header byte of a compact signature over a compressed key with recovery id 0.
const compactRecoveryBase = 27 + 4

// RelayerSigner authenticates messages to the gateway contract with a secp256k1
// key that is independent of the account key paying for deploys.
type RelayerSigner struct {
	key      *secp256k1.PrivateKey
	expected *secp256k1.PublicKey
}

// NewRelayerSigner returns a signer whose signatures must recover to expected.
// A nil expected key means the public key of key.
func NewRelayerSigner(key *secp256k1.PrivateKey, expected *secp256k1.PublicKey) *RelayerSigner {
	if expected == nil {
		expected = key.PubKey()
	}
	return &RelayerSigner{key: key, expected: expected}
}

func ParseRelayerSigner(hexKey, hexPublicKey string) (*RelayerSigner, error) {
	raw, err := decodeHex(hexKey)
	if err != nil || len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, errors.New("relayer key must be a 32-byte hex secp256k1 key")
	}
	var expected *secp256k1.PublicKey
	if hexPublicKey != "" {
		pubRaw, err := decodeHex(hexPublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "invalid relayer public key")
		}
		if expected, err = secp256k1.ParsePubKey(pubRaw); err != nil {
			return nil, errors.Wrap(err, "invalid relayer public key")
		}
	}
	return NewRelayerSigner(secp256k1.PrivKeyFromBytes(raw), expected), nil
}

func (s *RelayerSigner) PublicKey() *secp256k1.PublicKey {
	return s.expected
}

// Sign signs the SHA-256 digest of message and returns r‖s‖v, where v is the
// recovery id that recovers the expected relayer key.
func (s *RelayerSigner) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	compact := ecdsa.SignCompact(s.key, digest[:], true)
	rs := compact[1:]

	candidate := make([]byte, 65)
	copy(candidate[1:], rs)
	for v := byte(0); v < 2; v++ {
		candidate[0] = compactRecoveryBase + v
		pub, _, err := ecdsa.RecoverCompact(candidate, digest[:])
		if err != nil || !pub.IsEqual(s.expected) {
			continue
		}
		out := make([]byte, 0, 65)
		out = append(out, rs...)
		return append(out, v), nil
	}
	return nil, core.Mark(
		errors.New("no recovery id recovers the relayer public key"),
		core.ErrSignatureSelfCheck,
	)
}
