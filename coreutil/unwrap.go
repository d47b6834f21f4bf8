package coreutil

import (
	"fmt"

	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/knotx-labs/knotx-relayer/otelcore"
)

// UnwrapExecutor finds the first executor in a chain of decorators that matches the specified
// type argument.
//
// In the following example, UnwrapExecutor returns the *casper.Executor registered for a chain:
//
//	executor, err := coreutil.UnwrapExecutor[*casper.Executor](e)
func UnwrapExecutor[E core.Executor](e core.Executor) (E, error) {
	executor := e
	for {
		switch unwrapped := executor.(type) {
		case *otelcore.Executor:
			executor = unwrapped.Executor
		case *otelcore.CheckingExecutor:
			executor = unwrapped.Executor.Executor
		case E:
			return unwrapped, nil
		default:
			var zero E
			return zero, fmt.Errorf("failed to unwrap executor: expected=%T, actual=%T", zero, unwrapped)
		}
	}
}
