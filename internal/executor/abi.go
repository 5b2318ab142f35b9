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

// Package executor encodes calls into the on-chain ERC3009Executor contract.
package executor

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/paylancer/paylancer/model"
)

const MethodExecuteAuthorizedTransfer = "executeAuthorizedTransfer"

const executorABI = `[{
	"type": "function",
	"name": "executeAuthorizedTransfer",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "paymentId", "type": "bytes32"},
		{"name": "token", "type": "address"},
		{"name": "recipient", "type": "address"},
		{"name": "auth", "type": "tuple", "components": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		]},
		{"name": "mainAmount", "type": "uint256"},
		{"name": "feeAmount", "type": "uint256"},
		{"name": "deadline", "type": "uint256"},
		{"name": "bundleSig", "type": "bytes"}
	],
	"outputs": []
}]`

var parsedABI abi.ABI

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(executorABI))
	if err != nil {
		panic(fmt.Sprintf("executor abi: %v", err))
	}
}

// authTuple mirrors the contract's auth struct; field names map onto the
// ABI component names.
type authTuple struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
	V           uint8
	R           [32]byte
	S           [32]byte
}

// ABI exposes the parsed contract interface.
func ABI() abi.ABI {
	return parsedABI
}

// PackExecuteAuthorizedTransfer ABI-encodes a call with the given arguments.
func PackExecuteAuthorizedTransfer(args model.ExecutionArgs) ([]byte, error) {
	paymentID, err := bytes32("paymentId", args.PaymentID)
	if err != nil {
		return nil, err
	}
	nonce, err := bytes32("auth.nonce", args.Authorization.Nonce)
	if err != nil {
		return nil, err
	}
	r, err := bytes32("auth.r", args.Authorization.R)
	if err != nil {
		return nil, err
	}
	s, err := bytes32("auth.s", args.Authorization.S)
	if err != nil {
		return nil, err
	}
	bundleSig, err := hexutil.Decode(args.BundleSignature)
	if err != nil {
		return nil, fmt.Errorf("bundleSig: %w", err)
	}

	ints := map[string]model.Numeric{
		"auth.value":       args.Authorization.Value,
		"auth.validAfter":  args.Authorization.ValidAfter,
		"auth.validBefore": args.Authorization.ValidBefore,
		"mainAmount":       args.MainAmount,
		"feeAmount":        args.FeeAmount,
		"deadline":         args.Deadline,
	}
	parsed := make(map[string]*big.Int, len(ints))
	for name, raw := range ints {
		v, ok := raw.BigInt()
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", name)
		}
		parsed[name] = v
	}

	auth := authTuple{
		From:        common.HexToAddress(args.Authorization.From),
		To:          common.HexToAddress(args.Authorization.To),
		Value:       parsed["auth.value"],
		ValidAfter:  parsed["auth.validAfter"],
		ValidBefore: parsed["auth.validBefore"],
		Nonce:       nonce,
		V:           args.Authorization.V,
		R:           r,
		S:           s,
	}

	return parsedABI.Pack(
		MethodExecuteAuthorizedTransfer,
		paymentID,
		common.HexToAddress(args.Token),
		common.HexToAddress(args.Recipient),
		auth,
		parsed["mainAmount"],
		parsed["feeAmount"],
		parsed["deadline"],
		bundleSig,
	)
}

func bytes32(name, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("%s must be 32 bytes", name)
	}
	copy(out[:], raw)
	return out, nil
}
