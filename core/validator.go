package core

import (
	"github.com/cockroachdb/errors"
)

// ValidationResult is the outcome of Validator.Validate
type ValidationResult struct {
	Valid bool
	Error string
}

// Err returns the validation failure as an error marked with ErrValidation.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return Mark(errors.New(r.Error), ErrValidation)
}

// Validator performs the structural checks a message must pass before it is persisted.
type Validator struct {
	registry *Registry
}

func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Valid: false, Error: reason}
}

// Validate has no side effects.
func (v *Validator) Validate(msg *CanonicalMessage) ValidationResult {
	switch {
	case msg == nil:
		return invalid("Message must not be empty")
	case msg.MessageID == "":
		return invalid("Message id is required")
	case msg.SourceChain == "":
		return invalid("Source chain is required")
	case msg.DestinationChain == "":
		return invalid("Destination chain is required")
	case msg.SourceChain == msg.DestinationChain:
		return invalid("Source and destination chains must be different")
	case v.registry != nil && !v.registry.Known(msg.SourceChain):
		return invalid("Unknown source chain: " + msg.SourceChain)
	case v.registry != nil && !v.registry.Known(msg.DestinationChain):
		return invalid("Unknown destination chain: " + msg.DestinationChain)
	case msg.SourceGateway == "":
		return invalid("Source gateway is required")
	case msg.DestinationGateway == "":
		return invalid("Destination gateway is required")
	case len(msg.Payload) == 0:
		return invalid("Payload is required")
	case msg.PayloadHash == "":
		return invalid("Payload hash is required")
	case msg.PayloadHash != PayloadHash(msg.Payload):
		return invalid("Payload hash does not match payload")
	}
	return ValidationResult{Valid: true}
}
