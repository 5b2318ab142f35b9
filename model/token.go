package model

// AmountRange is an accepted amount window in both display and raw units.
type AmountRange struct {
	Min    string `json:"min"`
	Max    string `json:"max"`
	MinRaw string `json:"minRaw"`
	MaxRaw string `json:"maxRaw"`
}

// SupportedToken describes a token jobs may move on a chain, with what a
// payer needs to build the signatures.
type SupportedToken struct {
	ChainID             int64       `json:"chainId"`
	Symbol              string      `json:"symbol"`
	Address             string      `json:"address"`
	Decimals            int32       `json:"decimals"`
	DomainName          string      `json:"domainName"`
	DomainVersion       string      `json:"domainVersion"`
	DefaultFeeAmount    string      `json:"defaultFeeAmount"`
	DefaultFeeAmountRaw string      `json:"defaultFeeAmountRaw"`
	MainAmount          AmountRange `json:"mainAmount"`
	FeeAmount           AmountRange `json:"feeAmount"`
}
