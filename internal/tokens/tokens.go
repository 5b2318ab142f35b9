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

// Package tokens holds the per-chain allow-list of EIP-3009 tokens that jobs
// may move, and the amount bounds each token is held to.
package tokens

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ChainEthereum int64 = 1
	ChainPolygon  int64 = 137
	ChainArbitrum int64 = 42161
)

// Domain is the EIP-712 domain name and version the token contract signs under.
type Domain struct {
	Name    string
	Version string
}

// Bounds are human readable, e.g. "0.01".
type Bounds struct {
	Min string
	Max string
}

type TokenConfig struct {
	Symbol           string
	Address          string
	Decimals         int32
	Domain           Domain
	DefaultFeeAmount string
	Main             Bounds
	Fee              Bounds
}

// Limit is a bound in raw token units along with how to display it.
type Limit struct {
	Min        *big.Int
	Max        *big.Int
	MinDisplay string
	MaxDisplay string
}

type Limits struct {
	Main Limit
	Fee  Limit
}

var (
	usdBounds  = Bounds{Min: "0.01", Max: "10000"}
	usdFee     = Bounds{Min: "0.001", Max: "100"}
	jpycBounds = Bounds{Min: "1", Max: "1500000"}
	jpycFee    = Bounds{Min: "0.1", Max: "15000"}
)

var supportedTokens = map[int64][]TokenConfig{
	ChainEthereum: {
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Domain: Domain{"USD Coin", "2"}, DefaultFeeAmount: "0.005", Main: usdBounds, Fee: usdFee},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6, Domain: Domain{"Tether USD", "1"}, DefaultFeeAmount: "0.005", Main: usdBounds, Fee: usdFee},
		{Symbol: "JPYC", Address: "0xE7C3D8C9a439feDe00D2600032D5dB0Be71C3c29", Decimals: 18, Domain: Domain{"JPY Coin", "1"}, DefaultFeeAmount: "0.5", Main: jpycBounds, Fee: jpycFee},
	},
	ChainPolygon: {
		{Symbol: "USDC", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6, Domain: Domain{"USD Coin (PoS)", "1"}, DefaultFeeAmount: "0.005", Main: usdBounds, Fee: usdFee},
		{Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6, Domain: Domain{"Tether USD (PoS)", "1"}, DefaultFeeAmount: "0.005", Main: usdBounds, Fee: usdFee},
		{Symbol: "JPYC", Address: "0xE7C3D8C9a439feDe00D2600032D5dB0Be71C3c29", Decimals: 18, Domain: Domain{"JPY Coin (PoS)", "1"}, DefaultFeeAmount: "0.5", Main: jpycBounds, Fee: jpycFee},
	},
	ChainArbitrum: {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6, Domain: Domain{"USD Coin (Arb)", "1"}, DefaultFeeAmount: "0.005", Main: usdBounds, Fee: usdFee},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6, Domain: Domain{"Tether USD (Arb)", "1"}, DefaultFeeAmount: "0.005", Main: usdBounds, Fee: usdFee},
	},
}

// FindTokenConfig looks a token up by chain and address. Addresses compare
// case-insensitively.
func FindTokenConfig(chainID int64, address string) (TokenConfig, bool) {
	for _, token := range supportedTokens[chainID] {
		if strings.EqualFold(token.Address, strings.TrimSpace(address)) {
			return token, true
		}
	}
	return TokenConfig{}, false
}

// TokensForChain returns a copy of the allow-list for a chain.
func TokensForChain(chainID int64) []TokenConfig {
	return append([]TokenConfig(nil), supportedTokens[chainID]...)
}

// SupportedChains lists the chain IDs with at least one token, ascending.
func SupportedChains() []int64 {
	chains := make([]int64, 0, len(supportedTokens))
	for id := range supportedTokens {
		chains = append(chains, id)
	}
	slices.Sort(chains)
	return chains
}

// LimitsFor scales a token's human readable bounds into raw units.
func LimitsFor(token TokenConfig) (Limits, error) {
	main, err := token.Main.toLimit(token.Decimals)
	if err != nil {
		return Limits{}, fmt.Errorf("%s main bounds: %w", token.Symbol, err)
	}
	fee, err := token.Fee.toLimit(token.Decimals)
	if err != nil {
		return Limits{}, fmt.Errorf("%s fee bounds: %w", token.Symbol, err)
	}
	return Limits{Main: main, Fee: fee}, nil
}

func (b Bounds) toLimit(decimals int32) (Limit, error) {
	lo, err := ParseTokenAmount(b.Min, decimals)
	if err != nil {
		return Limit{}, err
	}
	hi, err := ParseTokenAmount(b.Max, decimals)
	if err != nil {
		return Limit{}, err
	}
	return Limit{Min: lo, Max: hi, MinDisplay: b.Min, MaxDisplay: b.Max}, nil
}

// Contains reports whether amount lies within [Min, Max].
func (l Limit) Contains(amount *big.Int) bool {
	return amount.Cmp(l.Min) >= 0 && amount.Cmp(l.Max) <= 0
}

// ParseTokenAmount converts a human readable amount such as "1.25" into raw
// units. More fractional digits than the token supports is an error.
func ParseTokenAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatTokenAmount renders raw units in human readable form.
func FormatTokenAmount(raw *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(raw, -decimals).String()
}
