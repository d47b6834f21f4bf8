package evm

import (
	"crypto/ecdsa"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/knotx-labs/knotx-relayer/core"
)

var messageHashArgs = abi.Arguments{
	{Type: mustType("uint32")},
	{Type: mustType("uint32")},
	{Type: mustType("bytes")},
	{Type: mustType("bytes32")},
	{Type: mustType("uint64")},
	{Type: mustType("bytes32")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// MessageHash computes the identifier the gateway contract authenticates:
// keccak256(abi.encode(src, dst, sender, keccak256(receiver), nonce, keccak256(payload))).
func MessageHash(srcChainID, dstChainID uint32, sender, receiver []byte, nonce uint64, payload []byte) (common.Hash, error) {
	if sender == nil {
		sender = []byte{}
	}
	enc, err := messageHashArgs.Pack(
		srcChainID,
		dstChainID,
		sender,
		[32]byte(crypto.Keccak256Hash(receiver)),
		nonce,
		[32]byte(crypto.Keccak256Hash(payload)),
	)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to encode message hash arguments")
	}
	return crypto.Keccak256Hash(enc), nil
}

// Signer produces personal-message signatures that the gateway contract accepts.
type Signer struct {
	key     *ecdsa.PrivateKey
	relayer common.Address
}

// NewSigner returns a Signer whose signatures must recover to relayer.
// A zero relayer address means the address of key.
func NewSigner(key *ecdsa.PrivateKey, relayer common.Address) *Signer {
	if relayer == (common.Address{}) {
		relayer = crypto.PubkeyToAddress(key.PublicKey)
	}
	return &Signer{key: key, relayer: relayer}
}

func (s *Signer) Address() common.Address {
	return s.relayer
}

// Sign returns r‖s‖v over the personal-message digest of hash with v in {27, 28}.
// The signature is checked against the relayer address before it is returned.
func (s *Signer) Sign(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash[:]), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message hash")
	}
	sig[crypto.RecoveryIDOffset] += 27

	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return nil, core.Mark(err, core.ErrSignatureSelfCheck)
	}
	if signer != s.relayer {
		return nil, core.Mark(
			errors.Newf("signature recovers to %s, relayer is %s", signer.Hex(), s.relayer.Hex()),
			core.ErrSignatureSelfCheck,
		)
	}
	return sig, nil
}

// RecoverSigner returns the address that produced a personal-message signature of hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Newf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash[:]), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
