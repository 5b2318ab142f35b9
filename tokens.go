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
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/internal/tokens"
	"github.com/paylancer/paylancer/model"
)

// ListSupportedTokens returns the token allow-list for one chain, or for every
// chain when chainID is blank. An unknown chain has no tokens.
func (p *Paylancer) ListSupportedTokens(ctx context.Context, chainID string) ([]model.SupportedToken, error) {
	_, span := tracer.Start(ctx, "ListSupportedTokens")
	defer span.End()

	chains := tokens.SupportedChains()
	if raw := strings.TrimSpace(chainID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, invalidInput("chainId must be a number")
		}
		chains = []int64{id}
	}

	supported := []model.SupportedToken{}
	for _, chain := range chains {
		for _, token := range tokens.TokensForChain(chain) {
			view, err := supportedToken(chain, token)
			if err != nil {
				logrus.WithError(err).WithField("symbol", token.Symbol).Error("token bounds are misconfigured")
				continue
			}
			supported = append(supported, view)
		}
	}
	return supported, nil
}

func supportedToken(chainID int64, token tokens.TokenConfig) (model.SupportedToken, error) {
	limits, err := tokens.LimitsFor(token)
	if err != nil {
		return model.SupportedToken{}, err
	}
	fee, err := tokens.ParseTokenAmount(token.DefaultFeeAmount, token.Decimals)
	if err != nil {
		return model.SupportedToken{}, err
	}
	return model.SupportedToken{
		ChainID:             chainID,
		Symbol:              token.Symbol,
		Address:             token.Address,
		Decimals:            token.Decimals,
		DomainName:          token.Domain.Name,
		DomainVersion:       token.Domain.Version,
		DefaultFeeAmount:    tokens.FormatTokenAmount(fee, token.Decimals),
		DefaultFeeAmountRaw: fee.String(),
		MainAmount:          amountRange(limits.Main, token.Decimals),
		FeeAmount:           amountRange(limits.Fee, token.Decimals),
	}, nil
}

func amountRange(limit tokens.Limit, decimals int32) model.AmountRange {
	return model.AmountRange{
		Min:    tokens.FormatTokenAmount(limit.Min, decimals),
		Max:    tokens.FormatTokenAmount(limit.Max, decimals),
		MinRaw: limit.Min.String(),
		MaxRaw: limit.Max.String(),
	}
}
