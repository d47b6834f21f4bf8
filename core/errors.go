package core

import (
	"context"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/codec"
)

var (
	// ErrValidation marks messages rejected before persistence.
	ErrValidation = errors.New("invalid message")
	// ErrDuplicate is returned by stores when the message already exists.
	ErrDuplicate = errors.New("duplicate message")
	// ErrNotFound is returned by stores for unknown keys.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyTerminal is returned when completing a message that is no longer PENDING.
	ErrAlreadyTerminal = errors.New("message already in a terminal state")
	// ErrTransientRPC marks errors that are worth retrying.
	ErrTransientRPC = errors.New("transient rpc error")
	// ErrSignatureSelfCheck is returned when a produced signature does not recover to the relayer.
	ErrSignatureSelfCheck = errors.New("signature self-check failed")
	// ErrExecutionReverted is returned when the destination contract rejected the call.
	ErrExecutionReverted = errors.New("execution reverted")
	// ErrFinalityTimeout is returned when an execution result did not show up in time.
	ErrFinalityTimeout = errors.New("finality timeout")
	// ErrUnknownDestination is returned when no executor serves the destination chain.
	ErrUnknownDestination = errors.New("unknown destination chain")
	// ErrMalformedWireRecord marks source records that could not be decoded.
	ErrMalformedWireRecord = codec.ErrMalformedWireRecord
)

// Mark tags err with the sentinel mark. The tag is visible to errors.Is of both
// this package's errors library and the standard library, and the message of
// err is kept unchanged.
func Mark(err, mark error) error {
	if err == nil {
		return nil
	}
	return &markedError{cause: errors.Mark(err, mark), mark: mark}
}

type markedError struct {
	cause error
	mark  error
}

func (e *markedError) Error() string { return e.cause.Error() }

func (e *markedError) Unwrap() error { return e.cause }

func (e *markedError) Is(target error) bool { return target == e.mark }

// MarkTransient marks err as retryable by the send path.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrTransientRPC)
}

// IsTransient reports whether err is worth retrying: either explicitly marked
// or a recognizable network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransientRPC) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"too many requests",
	"429",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway timeout",
	"i/o timeout",
	"timeout exceeded",
}
