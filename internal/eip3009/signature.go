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
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const SignatureLength = 65

var (
	ErrInvalidSignatureLength = errors.New("signature must be 65 bytes")
	ErrInvalidRecoveryID      = errors.New("signature has an invalid recovery id")
)

// Signature is a secp256k1 signature split into its parts. R and S are
// 0x-prefixed 32 byte hex strings, V is 27 or 28.
type Signature struct {
	V uint8
	R string
	S string
}

// SplitSignature breaks a packed r || s || v signature apart.
func SplitSignature(signature string) (Signature, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(raw) != SignatureLength {
		return Signature{}, ErrInvalidSignatureLength
	}
	v, err := normalizeV(raw[64])
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		V: v,
		R: hexutil.Encode(raw[:32]),
		S: hexutil.Encode(raw[32:64]),
	}, nil
}

// JoinSignature packs a split signature back into 65 bytes.
func JoinSignature(sig Signature) (string, error) {
	if !IsHexBytes(sig.R, 32) {
		return "", fmt.Errorf("r must be 32 bytes")
	}
	if !IsHexBytes(sig.S, 32) {
		return "", fmt.Errorf("s must be 32 bytes")
	}
	v, err := normalizeV(sig.V)
	if err != nil {
		return "", err
	}
	r, _ := hexutil.Decode(sig.R)
	s, _ := hexutil.Decode(sig.S)

	packed := make([]byte, 0, SignatureLength)
	packed = append(packed, r...)
	packed = append(packed, s...)
	packed = append(packed, v)
	return hexutil.Encode(packed), nil
}

func normalizeV(v uint8) (uint8, error) {
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return 0, ErrInvalidRecoveryID
	}
	return v, nil
}
