package lido

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	errAmountRequired = errors.New("amount is required")
	errAmountInvalid  = errors.New("amount must be a positive number")
	errAmountPrecise  = errors.New("amount has more than 18 decimals")
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Amount is an ether amount given as a JSON number or numeric string.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = ""
		return nil
	}
	s = strings.Trim(s, `"`)
	*a = Amount(strings.TrimSpace(s))
	return nil
}

// Wei converts the amount to wei exactly.
func (a Amount) Wei() (*big.Int, error) {
	if a == "" {
		return nil, errAmountRequired
	}
	r, ok := new(big.Rat).SetString(string(a))
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", errAmountInvalid, string(a))
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, errAmountPrecise
	}
	return new(big.Int).Set(r.Num()), nil
}

// formatEther renders wei as a decimal ether string without trailing zeros.
func formatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
