package core

import (
	"context"
	"time"
)

// CursorStore persists per-chain progress. Cursors never move backwards.
type CursorStore interface {
	// LoadCursor returns the cursor of chainID, creating it at position zero when absent.
	LoadCursor(ctx context.Context, chainID string) (*ChainCursor, error)
	// AdvanceCursor moves the cursor to position if it is greater than the stored one.
	AdvanceCursor(ctx context.Context, chainID string, position uint64) error
	ListCursors(ctx context.Context) ([]*ChainCursor, error)
}

// MessageFilter narrows ListMessages. Zero values match everything.
type MessageFilter struct {
	Status           MessageStatus
	SourceChain      string
	DestinationChain string
	UpdatedBefore    time.Time
	Limit            int
	Offset           int
}

// MessageStore persists PersistedMessage records keyed by message id.
type MessageStore interface {
	GetMessage(ctx context.Context, messageID string) (*PersistedMessage, error)
	// InsertPending atomically inserts m unless a record with the same id exists.
	// When it exists, the stored record is returned with inserted == false.
	InsertPending(ctx context.Context, m *PersistedMessage) (existing *PersistedMessage, inserted bool, err error)
	// CompleteMessage moves a PENDING record to the terminal state described by outcome.
	// It returns ErrAlreadyTerminal when the record is not PENDING.
	CompleteMessage(ctx context.Context, outcome *RelayOutcome) error
	// ClaimPending bumps attempts and updated_at of a PENDING record last updated
	// before staleBefore. It reports false when another worker claimed it first.
	ClaimPending(ctx context.Context, messageID string, staleBefore, now time.Time) (bool, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]*PersistedMessage, error)
	CountByStatus(ctx context.Context) (map[MessageStatus]int64, error)
}

type DeadLetterFilter struct {
	Chain  string
	Status DeadLetterStatus
	Limit  int
}

// DeadLetterStore persists records that a listener could not turn into messages.
type DeadLetterStore interface {
	// PutDeadLetter inserts dl or, when (chain, nonce) is already recorded,
	// updates its raw bytes and error and increments attempts.
	PutDeadLetter(ctx context.Context, dl *DeadLetter) error
	ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetter, error)
	ResolveDeadLetter(ctx context.Context, chain string, nonce uint64) error
}

// Store bundles every persistence concern of the relayer.
type Store interface {
	CursorStore
	MessageStore
	DeadLetterStore
	Close() error
}
