// Package postgres implements core.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/lib/pq"
)

const messageColumns = `message_id, nonce, source_chain, destination_chain, source_gateway, destination_gateway,
	sender, receiver, payload, payload_hash, status, transaction_hash, error, attempts,
	observed_at, created_at, updated_at, delivered_at`

const deadLetterColumns = `id, chain, nonce, raw, error, attempts, status, created_at, updated_at`

// messageParams binds a message with its nonce as decimal text.
type messageParams struct {
	core.PersistedMessage
	Nonce string `db:"nonce"`
}

// numeric renders v for the NUMERIC(20, 0) columns. database/sql cannot bind
// a uint64 with the high bit set.
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ core.Store = (*Store)(nil)

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, classify(errors.Wrap(err, "failed to connect to postgres"))
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadCursor(ctx context.Context, chainID string) (*core.ChainCursor, error) {
	var c core.ChainCursor
	err := s.db.GetContext(ctx, &c, `
		INSERT INTO chain_cursors (chain_id, position, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (chain_id) DO UPDATE SET chain_id = EXCLUDED.chain_id
		RETURNING chain_id, position, updated_at`,
		chainID, s.now())
	if err != nil {
		return nil, classify(errors.Wrapf(err, "failed to load cursor of %s", chainID))
	}
	return &c, nil
}

func (s *Store) AdvanceCursor(ctx context.Context, chainID string, position uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_cursors (chain_id, position, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at
		WHERE chain_cursors.position < EXCLUDED.position`,
		chainID, numeric(position), s.now())
	if err != nil {
		return classify(errors.Wrapf(err, "failed to advance cursor of %s to %d", chainID, position))
	}
	return nil
}

func (s *Store) ListCursors(ctx context.Context) ([]*core.ChainCursor, error) {
	var out []*core.ChainCursor
	if err := s.db.SelectContext(ctx, &out, `SELECT chain_id, position, updated_at FROM chain_cursors ORDER BY chain_id`); err != nil {
		return nil, classify(errors.Wrap(err, "failed to list cursors"))
	}
	return out, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*core.PersistedMessage, error) {
	var m core.PersistedMessage
	err := s.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages WHERE message_id = $1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(core.ErrNotFound, "message %s", messageID)
	} else if err != nil {
		return nil, classify(errors.Wrapf(err, "failed to get message %s", messageID))
	}
	return &m, nil
}

func (s *Store) InsertPending(ctx context.Context, m *core.PersistedMessage) (*core.PersistedMessage, bool, error) {
	row := *m
	row.Status = core.StatusPending
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (:message_id, :nonce, :source_chain, :destination_chain, :source_gateway, :destination_gateway,
			:sender, :receiver, :payload, :payload_hash, :status, :transaction_hash, :error, :attempts,
			:observed_at, :created_at, :updated_at, :delivered_at)
		ON CONFLICT (message_id) DO NOTHING`, messageParams{PersistedMessage: row, Nonce: numeric(row.Nonce)})
	if err != nil {
		return nil, false, classify(errors.Wrapf(err, "failed to insert message %s", m.MessageID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, classify(errors.Wrap(err, "failed to read affected rows"))
	}
	if n == 1 {
		return &row, true, nil
	}
	existing, err := s.GetMessage(ctx, m.MessageID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) CompleteMessage(ctx context.Context, outcome *core.RelayOutcome) error {
	status := core.StatusFailed
	var deliveredAt *time.Time
	if outcome.Success {
		status = core.StatusDelivered
		at := outcome.CompletedAt
		deliveredAt = &at
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2, transaction_hash = $3, error = $4, updated_at = $5, delivered_at = $6
		WHERE message_id = $1 AND status = 'PENDING'`,
		outcome.MessageID, string(status), outcome.TransactionHash, outcome.Error, outcome.CompletedAt, deliveredAt)
	if err != nil {
		return classify(errors.Wrapf(err, "failed to complete message %s", outcome.MessageID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(errors.Wrap(err, "failed to read affected rows"))
	}
	if n == 1 {
		return nil
	}
	existing, err := s.GetMessage(ctx, outcome.MessageID)
	if err != nil {
		return err
	}
	return errors.Wrapf(core.ErrAlreadyTerminal, "message %s is %s", existing.MessageID, existing.Status)
}

func (s *Store) ClaimPending(ctx context.Context, messageID string, staleBefore, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET attempts = attempts + 1, updated_at = $3
		WHERE message_id = $1 AND status = 'PENDING' AND updated_at < $2`,
		messageID, staleBefore, now)
	if err != nil {
		return false, classify(errors.Wrapf(err, "failed to claim message %s", messageID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(errors.Wrap(err, "failed to read affected rows"))
	}
	return n == 1, nil
}

func (s *Store) ListMessages(ctx context.Context, filter core.MessageFilter) ([]*core.PersistedMessage, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SourceChain != "" {
		conds = append(conds, "source_chain = ?")
		args = append(args, filter.SourceChain)
	}
	if filter.DestinationChain != "" {
		conds = append(conds, "destination_chain = ?")
		args = append(args, filter.DestinationChain)
	}
	if !filter.UpdatedBefore.IsZero() {
		conds = append(conds, "updated_at < ?")
		args = append(args, filter.UpdatedBefore)
	}

	query := `SELECT ` + messageColumns + ` FROM messages` + where(conds) + ` ORDER BY created_at, message_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	var out []*core.PersistedMessage
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, classify(errors.Wrap(err, "failed to list messages"))
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[core.MessageStatus]int64, error) {
	var rows []struct {
		Status core.MessageStatus `db:"status"`
		Count  int64              `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM messages GROUP BY status`); err != nil {
		return nil, classify(errors.Wrap(err, "failed to count messages"))
	}
	out := make(map[core.MessageStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *Store) PutDeadLetter(ctx context.Context, dl *core.DeadLetter) error {
	id := dl.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (`+deadLetterColumns+`)
		VALUES ($1, $2, $3, $4, $5, 1, 'OPEN', $6, $6)
		ON CONFLICT (chain, nonce) DO UPDATE SET
			raw = EXCLUDED.raw,
			error = EXCLUDED.error,
			attempts = dead_letters.attempts + 1,
			status = 'OPEN',
			updated_at = EXCLUDED.updated_at`,
		id, dl.Chain, numeric(dl.Nonce), dl.Raw, dl.Error, s.now())
	if err != nil {
		return classify(errors.Wrapf(err, "failed to put dead letter %s/%d", dl.Chain, dl.Nonce))
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) ([]*core.DeadLetter, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Chain != "" {
		conds = append(conds, "chain = ?")
		args = append(args, filter.Chain)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters` + where(conds) + ` ORDER BY chain, nonce`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var out []*core.DeadLetter
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, classify(errors.Wrap(err, "failed to list dead letters"))
	}
	return out, nil
}

func (s *Store) ResolveDeadLetter(ctx context.Context, chain string, nonce uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letters SET status = 'RESOLVED', updated_at = $3 WHERE chain = $1 AND nonce = $2`,
		chain, numeric(nonce), s.now())
	if err != nil {
		return classify(errors.Wrapf(err, "failed to resolve dead letter %s/%d", chain, nonce))
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify(errors.Wrap(err, "failed to read affected rows"))
	} else if n == 0 {
		return errors.Wrapf(core.ErrNotFound, "dead letter %s/%d", chain, nonce)
	}
	return nil
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// classify marks connection-level failures as transient so callers retry them.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08", // connection exception
			pqErr.Code.Class() == "53", // insufficient resources
			pqErr.Code == "57P01",      // admin shutdown
			pqErr.Code == "40001":      // serialization failure
			return core.MarkTransient(err)
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return core.MarkTransient(err)
	}
	return err
}
