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

package eip3009

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	BundleDomainName    = "ERC3009Executor"
	BundleDomainVersion = "1"

	transferPrimaryType = "TransferWithAuthorization"
	bundlePrimaryType   = "Bundle"
)

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var transferFields = []apitypes.Type{
	{Name: "from", Type: "address"},
	{Name: "to", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "validAfter", Type: "uint256"},
	{Name: "validBefore", Type: "uint256"},
	{Name: "nonce", Type: "bytes32"},
}

var bundleFields = []apitypes.Type{
	{Name: "payer", Type: "address"},
	{Name: "token", Type: "address"},
	{Name: "recipient", Type: "address"},
	{Name: "mainAmount", Type: "uint256"},
	{Name: "feeAmount", Type: "uint256"},
	{Name: "paymentId", Type: "bytes32"},
	{Name: "deadline", Type: "uint256"},
}

// TokenDomain identifies the token contract an authorization is signed for.
type TokenDomain struct {
	Name    string
	Version string
	Address string
}

type TransferAuthorization struct {
	From        string
	To          string
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       string
}

type BundleMessage struct {
	Payer      string
	Token      string
	Recipient  string
	MainAmount *big.Int
	FeeAmount  *big.Int
	PaymentID  string
	Deadline   *big.Int
}

// BuildAuthorizationTypedData returns the TransferWithAuthorization message
// exactly as the payer's wallet signs it.
func BuildAuthorizationTypedData(token TokenDomain, chainID int64, msg TransferAuthorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":      domainFields,
			transferPrimaryType: transferFields,
		},
		PrimaryType: transferPrimaryType,
		Domain:      domain(token.Name, token.Version, chainID, token.Address),
		Message: apitypes.TypedDataMessage{
			"from":        ChecksumAddress(msg.From),
			"to":          ChecksumAddress(msg.To),
			"value":       decimalString(msg.Value),
			"validAfter":  decimalString(msg.ValidAfter),
			"validBefore": decimalString(msg.ValidBefore),
			"nonce":       NormalizeHex(msg.Nonce),
		},
	}
}

// BuildBundleTypedData returns the Bundle message verified by the executor contract.
func BuildBundleTypedData(executor string, chainID int64, msg BundleMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":    domainFields,
			bundlePrimaryType: bundleFields,
		},
		PrimaryType: bundlePrimaryType,
		Domain:      domain(BundleDomainName, BundleDomainVersion, chainID, executor),
		Message: apitypes.TypedDataMessage{
			"payer":      ChecksumAddress(msg.Payer),
			"token":      ChecksumAddress(msg.Token),
			"recipient":  ChecksumAddress(msg.Recipient),
			"mainAmount": decimalString(msg.MainAmount),
			"feeAmount":  decimalString(msg.FeeAmount),
			"paymentId":  NormalizeHex(msg.PaymentID),
			"deadline":   decimalString(msg.Deadline),
		},
	}
}

// HashTypedData computes the EIP-712 digest that is signed.
func HashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	return hash, err
}

func domain(name, version string, chainID int64, verifyingContract string) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: ChecksumAddress(verifyingContract),
	}
}

func decimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
