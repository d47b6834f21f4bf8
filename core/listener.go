package core

import (
	"context"
)

// Listener observes one source chain and emits the messages it finds, in nonce order.
type Listener interface {
	// ChainName returns the registry name of the source chain
	ChainName() string

	// Listen starts observing in the background. The returned channel is closed
	// once ctx is done and the listener has stopped.
	Listen(ctx context.Context) <-chan *Emission
}

// Emission hands a message to the consumer and waits for it to be admitted.
// The listener advances its cursor only after Ack returns nil.
type Emission struct {
	Message *CanonicalMessage
	done    chan error
}

func NewEmission(msg *CanonicalMessage) *Emission {
	return &Emission{Message: msg, done: make(chan error, 1)}
}

// Ack reports the admission result of the message. It must be called exactly once.
func (e *Emission) Ack(err error) {
	e.done <- err
}

// Wait blocks until the consumer acknowledged the emission.
func (e *Emission) Wait(ctx context.Context) error {
	select {
	case err := <-e.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit sends msg on out and waits for its acknowledgement.
func Emit(ctx context.Context, out chan<- *Emission, msg *CanonicalMessage) error {
	e := NewEmission(msg)
	select {
	case out <- e:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.Wait(ctx)
}
