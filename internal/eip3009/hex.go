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

// Package eip3009 builds and checks the two typed-data messages a payer signs:
// the EIP-3009 TransferWithAuthorization and the executor's EIP-712 Bundle.
package eip3009

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IsAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsAddress(s string) bool {
	s = strings.TrimSpace(s)
	return has0xPrefix(s) && common.IsHexAddress(s)
}

// ChecksumAddress returns the EIP-55 form of s.
func ChecksumAddress(s string) string {
	return common.HexToAddress(strings.TrimSpace(s)).Hex()
}

// SameAddress compares two addresses ignoring case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsHexBytes reports whether s is 0x followed by exactly n bytes of hex.
func IsHexBytes(s string, n int) bool {
	s = strings.TrimSpace(s)
	if !has0xPrefix(s) || len(s) != 2+2*n {
		return false
	}
	_, err := hexutil.Decode(s)
	return err == nil
}

// NormalizeHex lower-cases a 0x hex string so equal values compare equal.
func NormalizeHex(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
