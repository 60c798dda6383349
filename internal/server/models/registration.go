// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the verification state of a payment proof.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentVerified, PaymentRejected:
		return true
	}
	return false
}

// User is one registrant for one event. Email is stored lowercased and is
// unique per event.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Roll         string    `json:"roll"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	Year         string    `json:"year"`
	Questions    string    `json:"questions"`
	EventSlug    string    `json:"eventSlug"`
	EventTitle   string    `json:"eventTitle"`
	PaymentID    string    `json:"paymentId,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Payment is the proof of payment attached to a registration attempt.
// ScreenshotURL and ScreenshotStorageID stay empty until the proof upload
// has been linked.
type Payment struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"userId"`
	TransactionID       string          `json:"transactionId"`
	ScreenshotURL       string          `json:"paymentScreenshotUrl"`
	ScreenshotStorageID string          `json:"paymentScreenshotStorageId"`
	EventSlug           string          `json:"eventSlug"`
	EventTitle          string          `json:"eventTitle"`
	Amount              decimal.Decimal `json:"amount"`
	Status              PaymentStatus   `json:"status"`
	CreatedAt           time.Time       `json:"createdAt"`
	VerifiedAt          *time.Time      `json:"verifiedAt,omitempty"`
	VerifiedBy          string          `json:"verifiedBy,omitempty"`
}

// Registration is a User joined with its Payment.
type Registration struct {
	User
	Payment *Payment `json:"payment"`
}

// PaymentWithUser is a Payment joined with the User that owns it.
type PaymentWithUser struct {
	Payment
	User *User `json:"user"`
}
