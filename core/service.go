package core

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 8
	DefaultGracePeriod = 30 * time.Second
)

// RelayService connects listeners to the orchestrator. Messages of one source
// are admitted in emission order; deliveries run on a bounded worker pool.
type RelayService struct {
	orchestrator *Orchestrator
	listeners    []Listener
	workers      int
	gracePeriod  time.Duration
}

// NewRelayService returns a new service
func NewRelayService(orchestrator *Orchestrator, listeners []Listener, workers int, gracePeriod time.Duration) *RelayService {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &RelayService{
		orchestrator: orchestrator,
		listeners:    listeners,
		workers:      workers,
		gracePeriod:  gracePeriod,
	}
}

// Start runs every listener until ctx is done. Deliveries already handed to a
// worker keep running on a detached context for at most the grace period.
func (srv *RelayService) Start(ctx context.Context) error {
	deliverCtx, cancelDeliveries := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDeliveries()

	workers := new(errgroup.Group)
	workers.SetLimit(srv.workers)

	var wg sync.WaitGroup
	for _, l := range srv.listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			srv.consume(ctx, deliverCtx, l, workers)
		}(l)
	}
	wg.Wait()

	logger := GetChainLogger("*", "core.service")
	drained := make(chan struct{})
	go func() {
		_ = workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(srv.gracePeriod):
		logger.Warn("grace period elapsed, cancelling in-flight deliveries", "grace_period", srv.gracePeriod)
		cancelDeliveries()
		<-drained
	}
	logger.Info("relay service stopped")
	return nil
}

func (srv *RelayService) consume(ctx, deliverCtx context.Context, l Listener, workers *errgroup.Group) {
	logger := GetChainLogger(l.ChainName(), "core.service")
	logger.InfoContext(ctx, "listener started")

	for e := range l.Listen(ctx) {
		msg := e.Message
		adm, err := srv.admit(ctx, msg)
		if err != nil {
			GetMessageLogger(msg).ErrorContext(ctx, "failed to admit message", err)
			e.Ack(err)
			continue
		}
		e.Ack(nil)

		if !adm.Admitted() {
			if !adm.Outcome.Success {
				GetMessageLogger(msg).InfoContext(ctx, "message not delivered", "reason", adm.Outcome.Error)
			}
			continue
		}
		workers.Go(func() error {
			srv.orchestrator.Deliver(deliverCtx, msg)
			return nil
		})
	}
	logger.Info("listener stopped")
}

func (srv *RelayService) admit(ctx context.Context, msg *CanonicalMessage) (*Admission, error) {
	var adm *Admission
	err := retry.Do(func() error {
		var err error
		adm, err = srv.orchestrator.Admit(ctx, msg)
		return err
	}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
		GetMessageLogger(msg).InfoContext(ctx,
			"retrying to admit message",
			"try", n+1,
			"try_limit", rtyAttNum,
			"error", err.Error(),
		)
	}))
	return adm, err
}
