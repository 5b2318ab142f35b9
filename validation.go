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
	"fmt"
	"math/big"
	"strings"

	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/internal/eip3009"
	"github.com/paylancer/paylancer/internal/tokens"
	"github.com/paylancer/paylancer/model"
)

func invalidInput(format string, args ...interface{}) error {
	return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf(format, args...), nil)
}

// ValidateJobCreatePayload turns an untrusted submission into a fully checked
// job. It is pure: liveness against the clock is checked separately by
// CheckCreationWindow.
func ValidateJobCreatePayload(req *model.CreateJobRequest) (*model.NormalizedJob, error) {
	if req == nil {
		return nil, invalidInput("Invalid JSON payload")
	}

	if req.ChainID == nil {
		return nil, invalidInput("chainId must be a number")
	}
	chainID, err := req.ChainID.Int64()
	if err != nil {
		return nil, invalidInput("chainId must be a number")
	}

	if strings.TrimSpace(req.Token) == "" {
		return nil, invalidInput("token is required")
	}
	if !eip3009.IsAddress(req.Token) {
		return nil, invalidInput("token must be a valid address")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, invalidInput("recipient is required")
	}
	if req.Authorization == nil {
		return nil, invalidInput("authorization is required")
	}
	if !eip3009.IsAddress(req.Recipient) {
		return nil, invalidInput("recipient must be a valid address")
	}

	tokenConfig, ok := tokens.FindTokenConfig(chainID, req.Token)
	if !ok {
		return nil, invalidInput("token is not supported on this chain")
	}

	auth, err := normalizeAuthorization(req.Authorization)
	if err != nil {
		return nil, err
	}
	bundle, err := normalizeBundle(req.Bundle)
	if err != nil {
		return nil, err
	}

	validBefore, ok := auth.ValidBefore.Int64()
	if !ok {
		return nil, invalidInput("authorization.validBefore must be a numeric timestamp")
	}
	validAfter, ok := auth.ValidAfter.Int64()
	if !ok {
		return nil, invalidInput("authorization.validAfter must be a numeric timestamp")
	}
	if validAfter < 0 {
		return nil, invalidInput("authorization.validAfter must be greater than or equal to zero")
	}
	if validAfter >= validBefore {
		return nil, invalidInput("authorization.validAfter must be less than validBefore")
	}

	deadline, ok := bundle.Deadline.Int64()
	if !ok {
		return nil, invalidInput("bundle.deadline must be a numeric timestamp")
	}
	if req.BundleDeadline.IsSet() {
		override, ok := req.BundleDeadline.Int64()
		if !ok {
			return nil, invalidInput("bundle.deadline must be a numeric timestamp")
		}
		if override != deadline {
			return nil, invalidInput("bundleDeadline must match bundle.deadline")
		}
	}

	if !eip3009.IsHexBytes(req.BundleSignature, eip3009.SignatureLength) {
		return nil, invalidInput("bundleSignature must be a 65-byte hex string")
	}
	bundle.Signature = eip3009.NormalizeHex(req.BundleSignature)

	if !eip3009.SameAddress(bundle.Payer, auth.From) {
		return nil, invalidInput("bundle payer must match authorization signer")
	}
	if !eip3009.SameAddress(bundle.Token, req.Token) {
		return nil, invalidInput("bundle token must match job token")
	}
	if !eip3009.SameAddress(bundle.Recipient, req.Recipient) {
		return nil, invalidInput("bundle recipient must match recipient field")
	}
	if strings.TrimSpace(req.PaymentID) != "" {
		override, err := eip3009.NormalizePaymentID(req.PaymentID)
		if err != nil {
			return nil, invalidInput("paymentId must be at most 32 bytes")
		}
		if override != bundle.PaymentID {
			return nil, invalidInput("paymentId must match bundle.paymentId")
		}
	}

	mainAmount, mainOK := req.MainAmount.BigInt()
	feeAmount, feeOK := req.FeeAmount.BigInt()
	if !mainOK || !feeOK {
		return nil, invalidInput("mainAmount and feeAmount must be numeric strings")
	}
	if mainAmount.Sign() < 0 || feeAmount.Sign() < 0 {
		return nil, invalidInput("mainAmount and feeAmount must not be negative")
	}
	if mainAmount.Sign() == 0 || feeAmount.Sign() == 0 {
		return nil, invalidInput("mainAmount and feeAmount must be greater than zero")
	}
	if !numericEquals(bundle.MainAmount, mainAmount) {
		return nil, invalidInput("bundle mainAmount must match provided mainAmount")
	}
	if !numericEquals(bundle.FeeAmount, feeAmount) {
		return nil, invalidInput("bundle feeAmount must match provided feeAmount")
	}
	value, _ := auth.Value.BigInt()
	total := new(big.Int).Add(mainAmount, feeAmount)
	if value == nil || value.Cmp(total) != 0 {
		return nil, invalidInput("authorization value must equal mainAmount + feeAmount")
	}

	limits, err := tokens.LimitsFor(tokenConfig)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Token limits are misconfigured", err)
	}
	if !limits.Main.Contains(mainAmount) {
		return nil, invalidInput("mainAmount must be between %s and %s %s", limits.Main.MinDisplay, limits.Main.MaxDisplay, tokenConfig.Symbol)
	}
	if !limits.Fee.Contains(feeAmount) {
		return nil, invalidInput("feeAmount must be between %s and %s %s", limits.Fee.MinDisplay, limits.Fee.MaxDisplay, tokenConfig.Symbol)
	}

	return &model.NormalizedJob{
		ChainID:         chainID,
		Token:           eip3009.ChecksumAddress(req.Token),
		TokenSymbol:     tokenConfig.Symbol,
		Recipient:       eip3009.ChecksumAddress(req.Recipient),
		Authorization:   *auth,
		Bundle:          *bundle,
		BundleSignature: bundle.Signature,
		PaymentID:       bundle.PaymentID,
		X402PaymentID:   strings.TrimSpace(req.X402PaymentID),
		MerchantID:      strings.TrimSpace(req.MerchantID),
		MainAmount:      mainAmount,
		FeeAmount:       feeAmount,
		Value:           value,
		ValidAfter:      validAfter,
		ValidBefore:     validBefore,
		BundleDeadline:  deadline,
	}, nil
}

// normalizeAuthorization checks the structure of the authorization and
// returns it in canonical form. A missing packed signature is rebuilt from
// v, r and s; the split parts are always derived from the packed form.
func normalizeAuthorization(auth *model.AuthorizationRecord) (*model.AuthorizationRecord, error) {
	hasParts := auth.V.IsSet() && auth.R != "" && auth.S != ""
	if auth.From == "" || auth.To == "" || !auth.Value.IsSet() || !auth.ValidAfter.IsSet() ||
		!auth.ValidBefore.IsSet() || auth.Nonce == "" || (auth.Signature == "" && !hasParts) {
		return nil, invalidInput("Authorization payload is missing required fields")
	}
	if !eip3009.IsAddress(auth.From) {
		return nil, invalidInput("authorization.from must be a valid address")
	}
	if !eip3009.IsAddress(auth.To) {
		return nil, invalidInput("authorization.to must be a valid address")
	}
	if !eip3009.IsHexBytes(auth.Nonce, 32) {
		return nil, invalidInput("authorization.nonce must be a 32-byte hex string")
	}

	signature := auth.Signature
	if signature == "" {
		v, ok := auth.V.Int64()
		if !ok || v < 0 || v > 255 {
			return nil, invalidInput("authorization.v must be 27 or 28")
		}
		joined, err := eip3009.JoinSignature(eip3009.Signature{V: uint8(v), R: auth.R, S: auth.S})
		if err != nil {
			return nil, invalidInput("authorization.signature must be a 65-byte hex string")
		}
		signature = joined
	}
	if !eip3009.IsHexBytes(signature, eip3009.SignatureLength) {
		return nil, invalidInput("authorization.signature must be a 65-byte hex string")
	}
	parts, err := eip3009.SplitSignature(signature)
	if err != nil {
		return nil, invalidInput("authorization.signature has an invalid recovery id")
	}

	return &model.AuthorizationRecord{
		From:        eip3009.ChecksumAddress(auth.From),
		To:          eip3009.ChecksumAddress(auth.To),
		Value:       canonicalNumeric(auth.Value),
		ValidAfter:  canonicalNumeric(auth.ValidAfter),
		ValidBefore: canonicalNumeric(auth.ValidBefore),
		Nonce:       eip3009.NormalizeHex(auth.Nonce),
		Signature:   eip3009.NormalizeHex(signature),
		V:           model.Numeric(fmt.Sprint(parts.V)),
		R:           parts.R,
		S:           parts.S,
	}, nil
}

func normalizeBundle(bundle *model.BundleRecord) (*model.BundleRecord, error) {
	if bundle == nil {
		return nil, invalidInput("bundle payload is required")
	}
	if bundle.Payer == "" || bundle.Token == "" || bundle.Recipient == "" ||
		!bundle.MainAmount.IsSet() || !bundle.FeeAmount.IsSet() || !bundle.Deadline.IsSet() {
		return nil, invalidInput("bundle payload is missing required fields")
	}
	if !eip3009.IsAddress(bundle.Payer) {
		return nil, invalidInput("bundle.payer must be a valid address")
	}
	if !eip3009.IsAddress(bundle.Token) {
		return nil, invalidInput("bundle.token must be a valid address")
	}
	if !eip3009.IsAddress(bundle.Recipient) {
		return nil, invalidInput("bundle.recipient must be a valid address")
	}
	paymentID, err := eip3009.NormalizePaymentID(bundle.PaymentID)
	if err != nil {
		return nil, invalidInput("bundle.paymentId must be at most 32 bytes")
	}

	return &model.BundleRecord{
		Payer:      eip3009.ChecksumAddress(bundle.Payer),
		Token:      eip3009.ChecksumAddress(bundle.Token),
		Recipient:  eip3009.ChecksumAddress(bundle.Recipient),
		MainAmount: canonicalNumeric(bundle.MainAmount),
		FeeAmount:  canonicalNumeric(bundle.FeeAmount),
		PaymentID:  paymentID,
		Deadline:   canonicalNumeric(bundle.Deadline),
	}, nil
}

// CheckCreationWindow re-checks the time windows against now, in unix seconds.
func CheckCreationWindow(job *model.NormalizedJob, now int64) error {
	if job.ValidBefore <= now {
		return invalidInput("Authorization has already expired")
	}
	if job.ValidAfter > now {
		return invalidInput("authorization is not yet valid")
	}
	if job.BundleDeadline <= now {
		return invalidInput("bundle deadline has passed")
	}
	return nil
}

// attemptedPaymentID is the best guess at a submission's payment id, used to
// tag audit events before the payload has been validated.
func attemptedPaymentID(req *model.CreateJobRequest) string {
	if req == nil {
		return ""
	}
	candidates := []string{req.PaymentID}
	if req.Bundle != nil {
		candidates = append([]string{req.Bundle.PaymentID}, candidates...)
	}
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		if id, err := eip3009.NormalizePaymentID(candidate); err == nil {
			return id
		}
	}
	return ""
}

// canonicalNumeric rewrites an integer in base 10. Unparseable input is kept
// as-is so that the caller's own check reports it.
func canonicalNumeric(n model.Numeric) model.Numeric {
	v, ok := n.BigInt()
	if !ok {
		return n
	}
	return model.NumericFromBig(v)
}

func numericEquals(n model.Numeric, want *big.Int) bool {
	v, ok := n.BigInt()
	return ok && v.Cmp(want) == 0
}
