// Package memory implements core.Store in process memory. It is used by tests
// and by the "memory" database driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/knotx-labs/knotx-relayer/core"
)

type Store struct {
	mu          sync.Mutex
	cursors     map[string]*core.ChainCursor
	messages    map[string]*core.PersistedMessage
	deadLetters map[deadLetterKey]*core.DeadLetter
	now         func() time.Time
}

type deadLetterKey struct {
	chain string
	nonce uint64
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		cursors:     make(map[string]*core.ChainCursor),
		messages:    make(map[string]*core.PersistedMessage),
		deadLetters: make(map[deadLetterKey]*core.DeadLetter),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) LoadCursor(_ context.Context, chainID string) (*core.ChainCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[chainID]
	if !ok {
		c = &core.ChainCursor{ChainID: chainID, UpdatedAt: s.now()}
		s.cursors[chainID] = c
	}
	cp := *c
	return &cp, nil
}

func (s *Store) AdvanceCursor(_ context.Context, chainID string, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[chainID]
	if !ok {
		s.cursors[chainID] = &core.ChainCursor{ChainID: chainID, Position: position, UpdatedAt: s.now()}
		return nil
	}
	if position > c.Position {
		c.Position = position
		c.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) ListCursors(_ context.Context) ([]*core.ChainCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.ChainCursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out, nil
}

func (s *Store) GetMessage(_ context.Context, messageID string) (*core.PersistedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "message %s", messageID)
	}
	return copyMessage(m), nil
}

func (s *Store) InsertPending(_ context.Context, m *core.PersistedMessage) (*core.PersistedMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.messages[m.MessageID]; ok {
		return copyMessage(existing), false, nil
	}
	stored := copyMessage(m)
	stored.Status = core.StatusPending
	s.messages[m.MessageID] = stored
	return copyMessage(stored), true, nil
}

func (s *Store) CompleteMessage(_ context.Context, outcome *core.RelayOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[outcome.MessageID]
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "message %s", outcome.MessageID)
	}
	if m.Status != core.StatusPending {
		return errors.Wrapf(core.ErrAlreadyTerminal, "message %s is %s", m.MessageID, m.Status)
	}
	m.UpdatedAt = outcome.CompletedAt
	if outcome.Success {
		m.Status = core.StatusDelivered
		m.TransactionHash = outcome.TransactionHash
		at := outcome.CompletedAt
		m.DeliveredAt = &at
	} else {
		m.Status = core.StatusFailed
		m.Error = outcome.Error
	}
	return nil
}

func (s *Store) ClaimPending(_ context.Context, messageID string, staleBefore, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.Status != core.StatusPending || !m.UpdatedAt.Before(staleBefore) {
		return false, nil
	}
	m.Attempts++
	m.UpdatedAt = now
	return true, nil
}

func (s *Store) ListMessages(_ context.Context, filter core.MessageFilter) ([]*core.PersistedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.PersistedMessage
	for _, m := range s.messages {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.SourceChain != "" && m.SourceChain != filter.SourceChain {
			continue
		}
		if filter.DestinationChain != "" && m.DestinationChain != filter.DestinationChain {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !m.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, copyMessage(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CountByStatus(_ context.Context) (map[core.MessageStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[core.MessageStatus]int64)
	for _, m := range s.messages {
		out[m.Status]++
	}
	return out, nil
}

func (s *Store) PutDeadLetter(_ context.Context, dl *core.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deadLetterKey{dl.Chain, dl.Nonce}
	now := s.now()
	if existing, ok := s.deadLetters[key]; ok {
		existing.Raw = append([]byte(nil), dl.Raw...)
		existing.Error = dl.Error
		existing.Attempts++
		existing.Status = core.DeadLetterOpen
		existing.UpdatedAt = now
		return nil
	}
	stored := *dl
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Raw = append([]byte(nil), dl.Raw...)
	stored.Attempts = 1
	stored.Status = core.DeadLetterOpen
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.deadLetters[key] = &stored
	return nil
}

func (s *Store) ListDeadLetters(_ context.Context, filter core.DeadLetterFilter) ([]*core.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.DeadLetter
	for _, dl := range s.deadLetters {
		if filter.Chain != "" && dl.Chain != filter.Chain {
			continue
		}
		if filter.Status != "" && dl.Status != filter.Status {
			continue
		}
		cp := *dl
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Nonce < out[j].Nonce
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ResolveDeadLetter(_ context.Context, chain string, nonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl, ok := s.deadLetters[deadLetterKey{chain, nonce}]
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "dead letter %s/%d", chain, nonce)
	}
	dl.Status = core.DeadLetterResolved
	dl.UpdatedAt = s.now()
	return nil
}

func copyMessage(m *core.PersistedMessage) *core.PersistedMessage {
	cp := *m
	if m.DeliveredAt != nil {
		at := *m.DeliveredAt
		cp.DeliveredAt = &at
	}
	return &cp
}
