package casper

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

const (
	AlgorithmEd25519   = "ed25519"
	AlgorithmSecp256k1 = "secp256k1"

	tagEd25519   byte = 0x01
	tagSecp256k1 byte = 0x02
)

// PublicKey is a Casper public key: an algorithm tag followed by the raw key.
type PublicKey []byte

func (k PublicKey) Hex() string {
	return hex.EncodeToString(k)
}

// AccountHash returns the account-hash derived from the key.
func (k PublicKey) AccountHash() string {
	if len(k) == 0 {
		return ""
	}
	var algo string
	switch k[0] {
	case tagEd25519:
		algo = AlgorithmEd25519
	case tagSecp256k1:
		algo = AlgorithmSecp256k1
	}
	preimage := append([]byte(algo), 0)
	preimage = append(preimage, k[1:]...)
	sum := blake2b.Sum256(preimage)
	return "account-hash-" + hex.EncodeToString(sum[:])
}

// AccountKey signs deploys on behalf of a Casper account.
type AccountKey interface {
	PublicKey() PublicKey
	// Sign returns the tagged signature of a deploy hash.
	Sign(deployHash []byte) ([]byte, error)
}

type ed25519Key struct {
	priv ed25519.PrivateKey
}

func (k ed25519Key) PublicKey() PublicKey {
	return append(PublicKey{tagEd25519}, k.priv.Public().(ed25519.PublicKey)...)
}

func (k ed25519Key) Sign(deployHash []byte) ([]byte, error) {
	return append([]byte{tagEd25519}, ed25519.Sign(k.priv, deployHash)...), nil
}

type secp256k1Key struct {
	priv *secp256k1.PrivateKey
}

func (k secp256k1Key) PublicKey() PublicKey {
	return append(PublicKey{tagSecp256k1}, k.priv.PubKey().SerializeCompressed()...)
}

// Sign produces the r‖s form over the SHA-256 digest of deployHash.
func (k secp256k1Key) Sign(deployHash []byte) ([]byte, error) {
	digest := sha256.Sum256(deployHash)
	compact := ecdsa.SignCompact(k.priv, digest[:], true)
	return append([]byte{tagSecp256k1}, compact[1:]...), nil
}

// ParseAccountKey decodes a hex private key of the given algorithm. Ed25519 keys
// may be given as the 32-byte seed or the 64-byte expanded key.
func ParseAccountKey(algorithm, hexKey string) (AccountKey, error) {
	raw, err := decodeHex(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid account key")
	}
	switch strings.ToLower(algorithm) {
	case AlgorithmEd25519, "":
		switch len(raw) {
		case ed25519.SeedSize:
			return ed25519Key{priv: ed25519.NewKeyFromSeed(raw)}, nil
		case ed25519.PrivateKeySize:
			return ed25519Key{priv: ed25519.PrivateKey(raw)}, nil
		default:
			return nil, errors.Newf("ed25519 key is %d bytes", len(raw))
		}
	case AlgorithmSecp256k1:
		if len(raw) != secp256k1.PrivKeyBytesLen {
			return nil, errors.Newf("secp256k1 key is %d bytes", len(raw))
		}
		return secp256k1Key{priv: secp256k1.PrivKeyFromBytes(raw)}, nil
	default:
		return nil, errors.Newf("unknown key algorithm: %q", algorithm)
	}
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}
