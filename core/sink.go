package core

import (
	"context"

	"github.com/knotx-labs/knotx-relayer/log"
)

// OutcomeSink receives every terminal outcome after it has been persisted.
type OutcomeSink interface {
	Publish(ctx context.Context, msg *CanonicalMessage, outcome *RelayOutcome) error
}

// LogSink writes outcomes to the relay logger.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, msg *CanonicalMessage, outcome *RelayOutcome) error {
	logger := GetMessageLogger(msg)
	if outcome.Success {
		logger.InfoContext(ctx, "message delivered", "tx_hash", outcome.TransactionHash)
	} else {
		logger.WarnContext(ctx, "message failed", "error", outcome.Error)
	}
	return nil
}

func GetMessageLogger(msg *CanonicalMessage) *log.RelayLogger {
	return log.GetLogger().
		WithRoute(msg.SourceChain, msg.DestinationChain).
		WithMessage(msg.MessageID, msg.Nonce).
		WithModule("core.orchestrator")
}

func GetChainLogger(chain string, module string) *log.RelayLogger {
	return log.GetLogger().
		WithChain(chain).
		WithModule(module)
}
