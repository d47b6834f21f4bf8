package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// ChainKey represents the registry name of a chain.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "casper-testnet", "sepolia"
	ChainKey = attribute.Key("chain")

	// MessageIDKey represents the deterministic identity of a relayed message.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x5f1c...e2"
	MessageIDKey = attribute.Key("message_id")

	// NonceKey represents the per-source-chain sequence number of a message.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0", "42"
	NonceKey = attribute.Key("nonce")

	// StatusKey represents the delivery status of a message.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "DELIVERED", "FAILED"
	StatusKey = attribute.Key("status")

	// TxHashKey represents the transaction or deploy hash on the destination chain.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x8f3b...", "9a1c..."
	TxHashKey = attribute.Key("tx_hash")

	// PackageKey represents the Go package that implements a traced component.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "github.com/knotx-labs/knotx-relayer/chains/evm"
	PackageKey = attribute.Key("package")
)

// AttributeGroup prefixes the given key to all attributes.
//
// For example, if the key is "foo" and the key of an attribute is "bar", the new key will be "foo.bar".
func AttributeGroup(key string, attributes ...attribute.KeyValue) []attribute.KeyValue {
	newAttrs := make([]attribute.KeyValue, 0, len(attributes))
	for _, attr := range attributes {
		newAttrs = append(newAttrs, attribute.KeyValue{
			Key:   attribute.Key(key + "." + string(attr.Key)),
			Value: attr.Value,
		})
	}
	return newAttrs
}
