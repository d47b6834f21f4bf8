package core

import (
	"context"
)

// Executor submits messages to one destination chain.
type Executor interface {
	// ChainName returns the registry name of the destination chain
	ChainName() string

	// Execute computes the chain-specific authentication hash, signs, submits and waits for
	// the execution result of msg. A returned error means no successful execution was observed.
	Execute(ctx context.Context, msg *CanonicalMessage) (*ExecutionResult, error)
}

// ExecutionResult describes a confirmed execution on the destination chain.
type ExecutionResult struct {
	TransactionHash string
	BlockNumber     uint64
}

// DeliveryChecker is implemented by executors that can tell whether a message has
// already been executed on their chain.
type DeliveryChecker interface {
	IsDelivered(ctx context.Context, msg *CanonicalMessage) (bool, error)
}
