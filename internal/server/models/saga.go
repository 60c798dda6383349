package models

import "time"

// SagaState is the journaled progress of a registration saga.
type SagaState string

const (
	// SagaCreated: pending user and payment rows exist, no asset uploaded.
	SagaCreated SagaState = "created"
	// SagaUploaded: the payment proof is on the asset host but not linked.
	SagaUploaded SagaState = "uploaded"
)

// SagaRecord is a journal row for a registration that has not reached its
// terminal state. Linked or fully compensated sagas have no row.
type SagaRecord struct {
	ID        string
	UserID    string
	PaymentID string
	AssetID   string
	State     SagaState
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
