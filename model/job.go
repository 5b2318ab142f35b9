package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusExecuted   JobStatus = "executed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusExpired    JobStatus = "expired"
)

// jobTransitions lists every status a job may move to from a given status.
// Statuses that are absent are terminal.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusExecuted, JobStatusFailed, JobStatusCancelled},
	JobStatusProcessing: {JobStatusExecuted, JobStatusFailed},
}

var allJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusExecuted,
	JobStatusFailed,
	JobStatusCancelled,
	JobStatusExpired,
}

// ParseJobStatus returns the status named by s, or false if s is not a known status.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, status := range allJobStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

func (s JobStatus) IsTerminal() bool {
	_, ok := jobTransitions[s]
	return !ok
}

// CanTransitionTo reports whether next is reachable from s in a single step.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AuthorizationRecord is the EIP-3009 transferWithAuthorization payload as
// signed by the payer. The signature may be stored packed, split, or both.
type AuthorizationRecord struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       Numeric `json:"value"`
	ValidAfter  Numeric `json:"validAfter"`
	ValidBefore Numeric `json:"validBefore"`
	Nonce       string  `json:"nonce"`
	Signature   string  `json:"signature,omitempty"`
	V           Numeric `json:"v,omitempty"`
	R           string  `json:"r,omitempty"`
	S           string  `json:"s,omitempty"`
}

// BundleRecord is the EIP-712 Bundle message committing to the fund split.
type BundleRecord struct {
	Payer      string  `json:"payer"`
	Token      string  `json:"token"`
	Recipient  string  `json:"recipient"`
	MainAmount Numeric `json:"mainAmount"`
	FeeAmount  Numeric `json:"feeAmount"`
	PaymentID  string  `json:"paymentId"`
	Deadline   Numeric `json:"deadline"`
	Signature  string  `json:"signature,omitempty"`
}

type Job struct {
	JobID                string               `json:"job_id"`
	ChainID              int64                `json:"chain_id"`
	Token                string               `json:"token"`
	TokenSymbol          string               `json:"token_symbol,omitempty"`
	Recipient            string               `json:"recipient"`
	Status               JobStatus            `json:"status"`
	AuthorizationPayload *AuthorizationRecord `json:"authorization_payload,omitempty"`
	Main                 *AuthorizationRecord `json:"main,omitempty"`
	Bundle               *BundleRecord        `json:"bundle,omitempty"`
	BundleSignature      string               `json:"bundle_signature,omitempty"`
	BundleDeadline       *int64               `json:"bundle_deadline,omitempty"`
	PaymentID            string               `json:"payment_id,omitempty"`
	X402PaymentID        string               `json:"x402_payment_id,omitempty"`
	MerchantID           string               `json:"merchant_id,omitempty"`
	MainAmount           string               `json:"main_amount,omitempty"`
	FeeAmount            string               `json:"fee_amount,omitempty"`
	ValidAfter           int64                `json:"valid_after"`
	ValidBefore          int64                `json:"valid_before"`
	ExpiresAt            time.Time            `json:"expires_at"`
	TakenBy              string               `json:"taken_by,omitempty"`
	TakenAt              *time.Time           `json:"taken_at,omitempty"`
	ExecutedTxHash       string               `json:"executed_tx_hash,omitempty"`
	ExecutedAt           *time.Time           `json:"executed_at,omitempty"`
	FailReason           string               `json:"fail_reason,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// JobStatusUpdate carries every lifecycle column written by a transition.
// Empty strings and nil times are persisted as NULL.
type JobStatusUpdate struct {
	Status         JobStatus
	TakenBy        string
	TakenAt        *time.Time
	ExecutedTxHash string
	ExecutedAt     *time.Time
	FailReason     string
}

// JobTransitionRequest is what a facilitator reports about a job.
type JobTransitionRequest struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expectedStatus,omitempty"`
	Facilitator    string `json:"facilitator,omitempty"`
	ExecutedTxHash string `json:"executedTxHash,omitempty"`
	FailReason     string `json:"failReason,omitempty"`
}

// CreateJobRequest is the untrusted body of a job submission.
type CreateJobRequest struct {
	ChainID         *json.Number         `json:"chainId"`
	Token           string               `json:"token"`
	Recipient       string               `json:"recipient"`
	Authorization   *AuthorizationRecord `json:"authorization"`
	Bundle          *BundleRecord        `json:"bundle"`
	BundleSignature string               `json:"bundleSignature"`
	BundleDeadline  Numeric              `json:"bundleDeadline,omitempty"`
	MainAmount      Numeric              `json:"mainAmount"`
	FeeAmount       Numeric              `json:"feeAmount"`
	PaymentID       string               `json:"paymentId,omitempty"`
	X402PaymentID   string               `json:"x402PaymentId,omitempty"`
	MerchantID      string               `json:"merchantId,omitempty"`
}

// JobStatusView is the combined job and recent audit trail returned by status lookups.
type JobStatusView struct {
	Job    *Job       `json:"job"`
	Events []JobEvent `json:"events"`
}
