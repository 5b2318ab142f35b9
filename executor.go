/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package paylancer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/internal/executor"
	"github.com/paylancer/paylancer/model"
)

// authorizationShape tags which stored layout a job's authorization came from.
type authorizationShape int

const (
	// shapeUnified is the authorization_payload column written by current code.
	shapeUnified authorizationShape = iota
	// shapeLegacy is the older main column.
	shapeLegacy
)

func (s authorizationShape) String() string {
	if s == shapeLegacy {
		return "legacy"
	}
	return "unified"
}

type storedAuthorization struct {
	shape  authorizationShape
	record *model.AuthorizationRecord
}

// resolveAuthorization picks the authorization a job was stored with. The
// unified payload wins when both are present.
func resolveAuthorization(job *model.Job) (storedAuthorization, error) {
	switch {
	case job.AuthorizationPayload != nil:
		return storedAuthorization{shape: shapeUnified, record: job.AuthorizationPayload}, nil
	case job.Main != nil:
		return storedAuthorization{shape: shapeLegacy, record: job.Main}, nil
	default:
		return storedAuthorization{}, invalidInput("job has no authorization payload")
	}
}

// NormalizedExecution is a job resolved into the exact values the executor
// contract is called with.
type NormalizedExecution struct {
	JobID           string
	ChainID         int64
	PaymentID       string
	Token           string
	Recipient       string
	From            string
	To              string
	Value           *big.Int
	ValidAfter      *big.Int
	ValidBefore     *big.Int
	Nonce           string
	V               uint8
	R               string
	S               string
	MainAmount      *big.Int
	FeeAmount       *big.Int
	Deadline        *big.Int
	BundleSignature string
}

// Args renders the execution in its wire form.
func (n *NormalizedExecution) Args() model.ExecutionArgs {
	return model.ExecutionArgs{
		PaymentID: n.PaymentID,
		Token:     n.Token,
		Recipient: n.Recipient,
		Authorization: model.ExecutionAuthorization{
			From:        n.From,
			To:          n.To,
			Value:       model.NumericFromBig(n.Value),
			ValidAfter:  model.NumericFromBig(n.ValidAfter),
			ValidBefore: model.NumericFromBig(n.ValidBefore),
			Nonce:       n.Nonce,
			V:           n.V,
			R:           n.R,
			S:           n.S,
		},
		MainAmount:      model.NumericFromBig(n.MainAmount),
		FeeAmount:       model.NumericFromBig(n.FeeAmount),
		Deadline:        model.NumericFromBig(n.Deadline),
		BundleSignature: n.BundleSignature,
	}
}

// NormalizeJobExecution rebuilds executor arguments from a stored job and
// re-checks that the authorized value covers exactly main plus fee.
func NormalizeJobExecution(job *model.Job) (*NormalizedExecution, error) {
	if job == nil {
		return nil, invalidInput("job is required")
	}
	stored, err := resolveAuthorization(job)
	if err != nil {
		return nil, err
	}
	auth := stored.record
	bundle := job.Bundle
	if bundle == nil {
		bundle = &model.BundleRecord{}
	}

	n := &NormalizedExecution{
		JobID:   job.JobID,
		ChainID: job.ChainID,
		Nonce:   strings.ToLower(strings.TrimSpace(auth.Nonce)),
	}

	rawPaymentID := firstNonEmpty(job.PaymentID, job.X402PaymentID, bundle.PaymentID)
	if n.PaymentID, err = eip3009.NormalizePaymentID(rawPaymentID); err != nil {
		return nil, invalidInput("paymentId must be at most 32 bytes")
	}

	token := firstNonEmpty(job.Token, bundle.Token)
	if !eip3009.IsAddress(token) {
		return nil, invalidInput("token must be a valid address")
	}
	n.Token = eip3009.ChecksumAddress(token)

	recipient := firstNonEmpty(job.Recipient, bundle.Recipient, auth.To)
	if !eip3009.IsAddress(recipient) {
		return nil, invalidInput("recipient must be a valid address")
	}
	n.Recipient = eip3009.ChecksumAddress(recipient)

	if !eip3009.IsAddress(auth.From) || !eip3009.IsAddress(auth.To) {
		return nil, invalidInput("authorization addresses are invalid")
	}
	n.From = eip3009.ChecksumAddress(auth.From)
	n.To = eip3009.ChecksumAddress(auth.To)

	if !eip3009.IsHexBytes(n.Nonce, 32) {
		return nil, invalidInput("authorization nonce must be 32 bytes")
	}

	var ok bool
	if n.Value, ok = nonNegative(auth.Value); !ok {
		return nil, invalidInput("authorization value is invalid")
	}
	if n.ValidAfter, ok = nonNegative(auth.ValidAfter); !ok {
		return nil, invalidInput("authorization validAfter is invalid")
	}
	if n.ValidBefore, ok = nonNegative(auth.ValidBefore); !ok {
		return nil, invalidInput("authorization validBefore is invalid")
	}

	if n.MainAmount, ok = nonNegative(firstNumeric(model.Numeric(job.MainAmount), bundle.MainAmount)); !ok {
		return nil, invalidInput("main amount is invalid")
	}
	if n.FeeAmount, ok = nonNegative(firstNumeric(model.Numeric(job.FeeAmount), bundle.FeeAmount)); !ok {
		return nil, invalidInput("fee amount is invalid")
	}

	if job.BundleDeadline != nil {
		n.Deadline = big.NewInt(*job.BundleDeadline)
	} else if n.Deadline, ok = nonNegative(bundle.Deadline); !ok {
		return nil, invalidInput("bundle deadline is missing")
	}

	n.BundleSignature = strings.ToLower(firstNonEmpty(job.BundleSignature, bundle.Signature))
	if !eip3009.IsHexBytes(n.BundleSignature, eip3009.SignatureLength) {
		return nil, invalidInput("bundle signature must be 65 bytes")
	}

	sig, err := authorizationSignature(auth)
	if err != nil {
		return nil, err
	}
	n.V, n.R, n.S = sig.V, strings.ToLower(sig.R), strings.ToLower(sig.S)

	if new(big.Int).Add(n.MainAmount, n.FeeAmount).Cmp(n.Value) != 0 {
		return nil, invalidInput("authorization value does not equal main+fee amounts")
	}
	return n, nil
}

// authorizationSignature prefers separately stored v, r and s and otherwise
// splits the packed signature.
func authorizationSignature(auth *model.AuthorizationRecord) (eip3009.Signature, error) {
	if auth.V.IsSet() && auth.R != "" && auth.S != "" {
		v, ok := auth.V.Int64()
		if !ok || v < 0 || v > 255 {
			return eip3009.Signature{}, invalidInput("authorization v is invalid")
		}
		packed, err := eip3009.JoinSignature(eip3009.Signature{V: uint8(v), R: auth.R, S: auth.S})
		if err != nil {
			return eip3009.Signature{}, invalidInput("authorization signature is invalid: %v", err)
		}
		return eip3009.SplitSignature(packed)
	}
	if strings.TrimSpace(auth.Signature) == "" {
		return eip3009.Signature{}, invalidInput("authorization signature is missing")
	}
	sig, err := eip3009.SplitSignature(auth.Signature)
	if err != nil {
		return eip3009.Signature{}, invalidInput("authorization signature is invalid: %v", err)
	}
	return sig, nil
}

// ValidateBeforeExecution re-checks the time windows and amounts at the moment
// of execution. A job can sit pending long after it was accepted.
func ValidateBeforeExecution(n *NormalizedExecution, now int64) error {
	at := big.NewInt(now)
	if at.Cmp(n.ValidBefore) >= 0 {
		return invalidInput("authorization has expired")
	}
	if at.Cmp(n.Deadline) >= 0 {
		return invalidInput("bundle deadline has passed")
	}
	if n.ValidAfter.Cmp(at) > 0 {
		return invalidInput("authorization is not yet valid")
	}
	if n.MainAmount.Sign() <= 0 {
		return invalidInput("main amount must be greater than zero")
	}
	if n.FeeAmount.Sign() <= 0 {
		return invalidInput("fee amount must be greater than zero")
	}
	return nil
}

// PrepareExecution returns everything a facilitator needs to submit a job:
// the typed arguments, the encoded calldata and the executor address.
func (p *Paylancer) PrepareExecution(ctx context.Context, jobID string) (*model.ExecutionPlan, error) {
	ctx, span := tracer.Start(ctx, "PrepareExecution")
	defer span.End()

	job, err := p.datasource.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Job is already %s", job.Status), nil)
	}

	normalized, err := NormalizeJobExecution(job)
	if err != nil {
		return nil, err
	}
	if err := ValidateBeforeExecution(normalized, p.nowUnix()); err != nil {
		return nil, err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	args := normalized.Args()
	calldata, err := executor.PackExecuteAuthorizedTransfer(args)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode execution calldata", err)
	}

	return &model.ExecutionPlan{
		JobID:    job.JobID,
		ChainID:  job.ChainID,
		Executor: eip3009.ChecksumAddress(cfg.Executor.ContractAddress),
		Args:     args,
		Calldata: hexutil.Encode(calldata),
	}, nil
}

func nonNegative(n model.Numeric) (*big.Int, bool) {
	v, ok := n.BigInt()
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNumeric(values ...model.Numeric) model.Numeric {
	for _, v := range values {
		if v.IsSet() {
			return v
		}
	}
	return ""
}
