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
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ZeroPaymentID is used when a bundle carries no payment id.
var ZeroPaymentID = "0x" + strings.Repeat("0", 64)

var ErrPaymentIDTooLong = errors.New("paymentId must be at most 32 bytes")

// NormalizePaymentID maps arbitrary payment references onto bytes32.
// Blank input is the zero id, a 0x value of 32 bytes is kept as is and
// anything else is taken as UTF-8 text and right padded with zero bytes.
func NormalizePaymentID(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ZeroPaymentID, nil
	}
	if IsHexBytes(trimmed, 32) {
		return NormalizeHex(trimmed), nil
	}

	raw := []byte(trimmed)
	if len(raw) > 32 {
		return "", ErrPaymentIDTooLong
	}
	padded := make([]byte, 32)
	copy(padded, raw)
	return hexutil.Encode(padded), nil
}
