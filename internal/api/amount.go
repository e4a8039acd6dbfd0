package api

import (
	"fmt"
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/auctionhouse/internal/ledger"
)

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// toBaseUnits converts a UI amount such as "1.5" into base units of a mint
// with the given decimals. Fractions finer than one base unit are rejected.
func toBaseUnits(d decimal.Decimal, decimals uint8) (uint64, error) {
	v := d.Shift(int32(decimals))
	if v.IsNegative() {
		return 0, errBadRequest(fmt.Sprintf("negative amount %s", d))
	}
	if !v.Equal(v.Truncate(0)) {
		return 0, errBadRequest(fmt.Sprintf("amount %s has more than %d decimals", d, decimals))
	}
	if v.GreaterThan(maxUint64) {
		return 0, errBadRequest(fmt.Sprintf("amount %s out of range", d))
	}
	return v.BigInt().Uint64(), nil
}

// fromBaseUnits renders base units as a UI amount.
func fromBaseUnits(v uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -int32(decimals)).String()
}

func mintDecimals(tx ledger.Tx, mint solana.PublicKey) (uint8, error) {
	m, err := ledger.GetMint(tx, mint)
	if err != nil {
		return 0, err
	}
	return m.Decimals, nil
}
