package model

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCompleted ReservationStatus = "completed"
	ReservationFailed    ReservationStatus = "failed"
	ReservationExpired   ReservationStatus = "expired"
)

// MaxReservationFailReason bounds the stored failure reason.
const MaxReservationFailReason = 500

// Reservation guards job creation for a single (payment_id, authorization_nonce) pair.
type Reservation struct {
	ReservationID      string            `json:"reservation_id"`
	PaymentID          string            `json:"payment_id"`
	AuthorizationNonce string            `json:"authorization_nonce"`
	ChainID            int64             `json:"chain_id"`
	Token              string            `json:"token"`
	Wallet             string            `json:"wallet"`
	MerchantID         string            `json:"merchant_id,omitempty"`
	ValidAfter         int64             `json:"valid_after"`
	ValidBefore        int64             `json:"valid_before"`
	BundleDeadline     int64             `json:"bundle_deadline"`
	Status             ReservationStatus `json:"status"`
	JobID              string            `json:"job_id,omitempty"`
	FailReason         string            `json:"fail_reason,omitempty"`
	ExpiresAt          time.Time         `json:"expires_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewReservation builds a pending reservation for a validated submission.
func NewReservation(job *NormalizedJob) *Reservation {
	return &Reservation{
		ReservationID:      GenerateUUIDWithSuffix("rsv"),
		PaymentID:          job.PaymentID,
		AuthorizationNonce: job.Authorization.Nonce,
		ChainID:            job.ChainID,
		Token:              job.Token,
		Wallet:             job.Authorization.From,
		MerchantID:         job.MerchantID,
		ValidAfter:         job.ValidAfter,
		ValidBefore:        job.ValidBefore,
		BundleDeadline:     job.BundleDeadline,
		Status:             ReservationPending,
		ExpiresAt:          job.ExpiresAt(),
	}
}
