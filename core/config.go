package core

import (
	"github.com/cockroachdb/errors"
)

// ChainConfig defines the typed settings of one chain and its builder.
// Implementations are provided by chain modules.
type ChainConfig interface {
	Kind() ChainKind
	Validate() error
	// Build returns the components serving the chain. Listener or Executor
	// may be nil when the chain is only a destination or only a source.
	Build(deps ChainDeps) (*ChainComponents, error)
}

// ChainDeps is what the relayer hands to a chain module when building it.
type ChainDeps struct {
	Info        ChainInfo
	Registry    *Registry
	Cursors     CursorStore
	DeadLetters DeadLetterStore
	Retry       RetryPolicy
}

type ChainComponents struct {
	Listener Listener
	Executor Executor
	// DefaultGateway is used for messages that do not name a destination gateway.
	DefaultGateway string
}

func (d ChainDeps) Validate() error {
	var errs []error
	if d.Info.Name == "" {
		errs = append(errs, errors.New("chain name is empty"))
	}
	if d.Registry == nil {
		errs = append(errs, errors.New("registry is nil"))
	}
	if d.Cursors == nil {
		errs = append(errs, errors.New("cursor store is nil"))
	}
	if d.DeadLetters == nil {
		errs = append(errs, errors.New("dead-letter store is nil"))
	}
	return errors.Join(errs...)
}
