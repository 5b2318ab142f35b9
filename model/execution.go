package model

import (
	"math/big"
	"time"
)

// NormalizedJob is a fully checked job submission. Addresses are checksummed,
// hex fields are lower-case and every integer is in canonical decimal form.
type NormalizedJob struct {
	ChainID         int64
	Token           string
	TokenSymbol     string
	Recipient       string
	Authorization   AuthorizationRecord
	Bundle          BundleRecord
	BundleSignature string
	PaymentID       string
	X402PaymentID   string
	MerchantID      string
	MainAmount      *big.Int
	FeeAmount       *big.Int
	Value           *big.Int
	ValidAfter      int64
	ValidBefore     int64
	BundleDeadline  int64
}

// ExpiresAt is the earlier of the authorization and bundle deadlines.
func (n *NormalizedJob) ExpiresAt() time.Time {
	end := n.ValidBefore
	if n.BundleDeadline < end {
		end = n.BundleDeadline
	}
	return time.Unix(end, 0).UTC()
}

// ExecutionAuthorization is the auth tuple passed to executeAuthorizedTransfer.
type ExecutionAuthorization struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       Numeric `json:"value"`
	ValidAfter  Numeric `json:"validAfter"`
	ValidBefore Numeric `json:"validBefore"`
	Nonce       string  `json:"nonce"`
	V           uint8   `json:"v"`
	R           string  `json:"r"`
	S           string  `json:"s"`
}

// ExecutionArgs are the exact arguments of an executeAuthorizedTransfer call.
type ExecutionArgs struct {
	PaymentID       string                 `json:"paymentId"`
	Token           string                 `json:"token"`
	Recipient       string                 `json:"recipient"`
	Authorization   ExecutionAuthorization `json:"auth"`
	MainAmount      Numeric                `json:"mainAmount"`
	FeeAmount       Numeric                `json:"feeAmount"`
	Deadline        Numeric                `json:"deadline"`
	BundleSignature string                 `json:"bundleSig"`
}

// ExecutionPlan is what a facilitator needs to submit a job on-chain.
type ExecutionPlan struct {
	JobID    string        `json:"job_id"`
	ChainID  int64         `json:"chain_id"`
	Executor string        `json:"executor"`
	Args     ExecutionArgs `json:"args"`
	Calldata string        `json:"calldata"`
}
