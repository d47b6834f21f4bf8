package core

import (
	"time"
)

// MessageStatus is the delivery state of a PersistedMessage
type MessageStatus string

const (
	StatusPending   MessageStatus = "PENDING"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusFailed    MessageStatus = "FAILED"
)

func (s MessageStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

func (s MessageStatus) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// PersistedMessage is the durable delivery record of a message. It is created
// PENDING and moves to exactly one terminal state.
type PersistedMessage struct {
	MessageID          string        `json:"message_id" db:"message_id"`
	Nonce              uint64        `json:"nonce" db:"nonce"`
	SourceChain        string        `json:"source_chain" db:"source_chain"`
	DestinationChain   string        `json:"destination_chain" db:"destination_chain"`
	SourceGateway      string        `json:"source_gateway" db:"source_gateway"`
	DestinationGateway string        `json:"destination_gateway" db:"destination_gateway"`
	Sender             []byte        `json:"sender" db:"sender"`
	Receiver           []byte        `json:"receiver" db:"receiver"`
	Payload            []byte        `json:"payload" db:"payload"`
	PayloadHash        string        `json:"payload_hash" db:"payload_hash"`
	Status             MessageStatus `json:"status" db:"status"`
	TransactionHash    string        `json:"transaction_hash,omitempty" db:"transaction_hash"`
	Error              string        `json:"error,omitempty" db:"error"`
	Attempts           int           `json:"attempts" db:"attempts"`
	ObservedAt         time.Time     `json:"observed_at" db:"observed_at"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
	DeliveredAt        *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
}

// NewPendingMessage returns the PENDING record of msg.
func NewPendingMessage(msg *CanonicalMessage, now time.Time) *PersistedMessage {
	return &PersistedMessage{
		MessageID:          msg.MessageID,
		Nonce:              msg.Nonce,
		SourceChain:        msg.SourceChain,
		DestinationChain:   msg.DestinationChain,
		SourceGateway:      msg.SourceGateway,
		DestinationGateway: msg.DestinationGateway,
		Sender:             msg.Sender,
		Receiver:           msg.Receiver,
		Payload:            msg.Payload,
		PayloadHash:        msg.PayloadHash,
		Status:             StatusPending,
		ObservedAt:         msg.ObservedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Canonical rebuilds the message that produced m.
func (m *PersistedMessage) Canonical() *CanonicalMessage {
	return &CanonicalMessage{
		MessageID:          m.MessageID,
		Nonce:              m.Nonce,
		SourceChain:        m.SourceChain,
		DestinationChain:   m.DestinationChain,
		SourceGateway:      m.SourceGateway,
		DestinationGateway: m.DestinationGateway,
		Sender:             m.Sender,
		Receiver:           m.Receiver,
		Payload:            m.Payload,
		PayloadHash:        m.PayloadHash,
		ObservedAt:         m.ObservedAt,
	}
}

// Outcome returns the RelayOutcome mirrored by a terminal record, or nil while it is PENDING.
func (m *PersistedMessage) Outcome() *RelayOutcome {
	if !m.Status.Terminal() {
		return nil
	}
	o := &RelayOutcome{
		Success:         m.Status == StatusDelivered,
		MessageID:       m.MessageID,
		TransactionHash: m.TransactionHash,
		Error:           m.Error,
		CompletedAt:     m.UpdatedAt,
	}
	if m.DeliveredAt != nil {
		o.CompletedAt = *m.DeliveredAt
	}
	return o
}

// RelayOutcome is the result of orchestrating one message.
type RelayOutcome struct {
	Success         bool      `json:"success"`
	MessageID       string    `json:"message_id"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Error           string    `json:"error,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
}

func SuccessOutcome(messageID, txHash string, at time.Time) *RelayOutcome {
	return &RelayOutcome{
		Success:         true,
		MessageID:       messageID,
		TransactionHash: txHash,
		CompletedAt:     at,
	}
}

func FailureOutcome(messageID string, err error, at time.Time) *RelayOutcome {
	o := &RelayOutcome{
		MessageID:   messageID,
		CompletedAt: at,
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// ChainCursor is the persisted progress marker of one source chain.
//
// For poll-based chains Position is the number of nonces processed, which is
// also the next nonce to read. For push-based chains it is the highest block
// whose logs have all been handed to the orchestrator.
type ChainCursor struct {
	ChainID   string    `json:"chain_id" db:"chain_id"`
	Position  uint64    `json:"position" db:"position"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type DeadLetterStatus string

const (
	DeadLetterOpen     DeadLetterStatus = "OPEN"
	DeadLetterResolved DeadLetterStatus = "RESOLVED"
)

// DeadLetter records a source record that could not be fetched or decoded.
type DeadLetter struct {
	ID        string           `json:"id" db:"id"`
	Chain     string           `json:"chain" db:"chain"`
	Nonce     uint64           `json:"nonce" db:"nonce"`
	Raw       []byte           `json:"raw,omitempty" db:"raw"`
	Error     string           `json:"error" db:"error"`
	Attempts  int              `json:"attempts" db:"attempts"`
	Status    DeadLetterStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}
