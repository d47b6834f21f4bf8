package casper

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
)

// ExecutableDeployItem is the payment or session part of a deploy.
type ExecutableDeployItem interface {
	Serialize() []byte
	json.Marshaler
}

// ModuleBytes runs wasm; empty module bytes with an "amount" argument is the standard payment.
type ModuleBytes struct {
	Module []byte
	Args   RuntimeArgs
}

func StandardPayment(amount *big.Int) ModuleBytes {
	return ModuleBytes{Args: RuntimeArgs{{Name: "amount", Value: U512Value(amount)}}}
}

func (m ModuleBytes) Serialize() []byte {
	return slices.Concat([]byte{0}, list(m.Module), m.Args.Serialize())
}

func (m ModuleBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"ModuleBytes": map[string]any{
			"module_bytes": hex.EncodeToString(m.Module),
			"args":         m.Args,
		},
	})
}

// StoredContractByHash calls an entry point of an installed contract.
type StoredContractByHash struct {
	Hash       [32]byte
	EntryPoint string
	Args       RuntimeArgs
}

func (s StoredContractByHash) Serialize() []byte {
	return slices.Concat([]byte{1}, s.Hash[:], str(s.EntryPoint), s.Args.Serialize())
}

func (s StoredContractByHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"StoredContractByHash": map[string]any{
			"hash":        hex.EncodeToString(s.Hash[:]),
			"entry_point": s.EntryPoint,
			"args":        s.Args,
		},
	})
}

type DeployHeader struct {
	Account      PublicKey
	Timestamp    time.Time
	TTL          time.Duration
	GasPrice     uint64
	BodyHash     [32]byte
	Dependencies [][32]byte
	ChainName    string
}

func (h DeployHeader) Serialize() []byte {
	out := slices.Concat(
		[]byte(h.Account),
		u64(uint64(h.Timestamp.UnixMilli())),
		u64(uint64(h.TTL.Milliseconds())),
		u64(h.GasPrice),
		h.BodyHash[:],
		u32(uint32(len(h.Dependencies))),
	)
	for _, d := range h.Dependencies {
		out = append(out, d[:]...)
	}
	return append(out, str(h.ChainName)...)
}

func (h DeployHeader) MarshalJSON() ([]byte, error) {
	deps := make([]string, len(h.Dependencies))
	for i, d := range h.Dependencies {
		deps[i] = hex.EncodeToString(d[:])
	}
	return json.Marshal(map[string]any{
		"account":      h.Account.Hex(),
		"timestamp":    h.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		"ttl":          formatTTL(h.TTL),
		"gas_price":    h.GasPrice,
		"body_hash":    hex.EncodeToString(h.BodyHash[:]),
		"dependencies": deps,
		"chain_name":   h.ChainName,
	})
}

type Approval struct {
	Signer    PublicKey
	Signature []byte
}

func (a Approval) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"signer":    a.Signer.Hex(),
		"signature": hex.EncodeToString(a.Signature),
	})
}

// Deploy is a signed Casper transaction.
type Deploy struct {
	Hash      [32]byte
	Header    DeployHeader
	Payment   ExecutableDeployItem
	Session   ExecutableDeployItem
	Approvals []Approval
}

// NewDeploy builds an unsigned deploy and computes its body and deploy hashes.
func NewDeploy(account PublicKey, chainName string, timestamp time.Time, ttl time.Duration, gasPrice uint64, payment, session ExecutableDeployItem) *Deploy {
	d := &Deploy{
		Header: DeployHeader{
			Account:   account,
			Timestamp: timestamp.UTC().Truncate(time.Millisecond),
			TTL:       ttl,
			GasPrice:  gasPrice,
			ChainName: chainName,
		},
		Payment: payment,
		Session: session,
	}
	d.Header.BodyHash = blake2b.Sum256(slices.Concat(payment.Serialize(), session.Serialize()))
	d.Hash = blake2b.Sum256(d.Header.Serialize())
	return d
}

func (d *Deploy) HashHex() string {
	return hex.EncodeToString(d.Hash[:])
}

// Sign adds the approval of key.
func (d *Deploy) Sign(key AccountKey) error {
	sig, err := key.Sign(d.Hash[:])
	if err != nil {
		return errors.Wrap(err, "failed to sign deploy")
	}
	d.Approvals = append(d.Approvals, Approval{Signer: key.PublicKey(), Signature: sig})
	return nil
}

func (d *Deploy) MarshalJSON() ([]byte, error) {
	approvals := d.Approvals
	if approvals == nil {
		approvals = []Approval{}
	}
	return json.Marshal(map[string]any{
		"hash":      d.HashHex(),
		"header":    d.Header,
		"payment":   d.Payment,
		"session":   d.Session,
		"approvals": approvals,
	})
}

// formatTTL renders d the way Casper nodes parse durations.
func formatTTL(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}
