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
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Verifier checks payer signatures. A false result means the signature does
// not belong to the claimed signer; an error means verification itself failed.
type Verifier interface {
	VerifyTypedData(ctx context.Context, signer string, typedData apitypes.TypedData, signature string) (bool, error)
	VerifyPersonalMessage(ctx context.Context, address, message, signature string) (bool, error)
}

// ECDSAVerifier recovers the signer locally with secp256k1.
type ECDSAVerifier struct{}

func NewVerifier() *ECDSAVerifier {
	return &ECDSAVerifier{}
}

func (v *ECDSAVerifier) VerifyTypedData(ctx context.Context, signer string, typedData apitypes.TypedData, signature string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	hash, err := HashTypedData(typedData)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", typedData.PrimaryType, err)
	}
	return recoversTo(signer, hash, signature), nil
}

func (v *ECDSAVerifier) VerifyPersonalMessage(ctx context.Context, address, message, signature string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return recoversTo(address, accounts.TextHash([]byte(message)), signature), nil
}

func recoversTo(signer string, hash []byte, signature string) bool {
	if !IsAddress(signer) {
		return false
	}
	raw, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(raw) != SignatureLength {
		return false
	}
	sig := make([]byte, SignatureLength)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return false
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(signer)
}

// SignTypedData produces a wallet style signature (v of 27 or 28) over typedData.
func SignTypedData(key *ecdsa.PrivateKey, typedData apitypes.TypedData) (string, error) {
	hash, err := HashTypedData(typedData)
	if err != nil {
		return "", err
	}
	return signHash(key, hash)
}

// SignPersonalMessage signs message the way personal_sign does.
func SignPersonalMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	return signHash(key, accounts.TextHash([]byte(message)))
}

func signHash(key *ecdsa.PrivateKey, hash []byte) (string, error) {
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}
