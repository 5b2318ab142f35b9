package model

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric is an integer that may arrive as a JSON string or a JSON number.
// The textual form is preserved so that no precision is lost before it is
// parsed into a big.Int.
type Numeric string

func (n *Numeric) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*n = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = Numeric(strings.TrimSpace(s))
		return nil
	}
	d, err := decimal.NewFromString(string(trimmed))
	if err != nil {
		// keep whatever was sent so validation can report on it
		*n = Numeric(trimmed)
		return nil
	}
	if !d.IsInteger() {
		// fractional values are kept verbatim so BigInt rejects them
		*n = Numeric(trimmed)
		return nil
	}
	*n = Numeric(d.String())
	return nil
}

// IsSet reports whether a value was supplied.
func (n Numeric) IsSet() bool {
	return strings.TrimSpace(string(n)) != ""
}

// BigInt parses the value as a base-10 integer, or base-16 when 0x-prefixed.
func (n Numeric) BigInt() (*big.Int, bool) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

// Int64 parses the value and requires it to fit in an int64.
func (n Numeric) Int64() (int64, bool) {
	v, ok := n.BigInt()
	if !ok || !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

// NumericFromBig renders v in canonical decimal form.
func NumericFromBig(v *big.Int) Numeric {
	if v == nil {
		return ""
	}
	return Numeric(v.String())
}
