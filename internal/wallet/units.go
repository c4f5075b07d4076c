package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/OKaluzny/evm-account/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	weiDecimals     = 18
	balanceDecimals = 6
)

// ParseEthToWei converts a decimal ETH amount such as "1.5" to wei.
func ParseEthToWei(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", models.ErrValidation, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", models.ErrValidation, amount)
	}

	wei := d.Shift(weiDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimal places", models.ErrValidation, amount, weiDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEthBalance renders wei as ETH with six decimals. Extra precision is
// truncated so a balance is never shown larger than it is.
func FormatEthBalance(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).Truncate(balanceDecimals).StringFixed(balanceDecimals)
}
