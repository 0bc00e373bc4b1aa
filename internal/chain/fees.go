package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Fee schedule of the escrow program. The deposit a publisher escrows is
// value + value*5% + 0.01. All arithmetic is decimal; binary floats would
// drift from the amount the program actually debits.
var (
	platformFeeRate     = decimal.NewFromInt(5).Div(decimal.NewFromInt(100))
	fixedTransactionFee = decimal.RequireFromString("0.01")

	// MinPostValue is the smallest helper payout the layer accepts.
	MinPostValue = decimal.RequireFromString("0.1")

	// depositEpsilon bounds the tolerated difference between the client
	// computed deposit and the program-debited amount at verification time.
	depositEpsilon = decimal.New(1, -9) // one base unit
)

// ErrInvalidValue is returned when a requested value fails local validation.
var ErrInvalidValue = errors.New("invalid post value")

// ErrDepositMismatch is returned when the program-debited amount disagrees
// with the locally computed deposit beyond the fixed epsilon.
var ErrDepositMismatch = errors.New("deposit mismatch between ledger and index")

// DepositQuote is the fee breakdown for a requested value.
type DepositQuote struct {
	Value        decimal.Decimal
	PlatformFee  decimal.Decimal
	TotalDeposit decimal.Decimal
}

// QuoteDeposit computes the platform fee and total required deposit for a
// requested helper payout.
func QuoteDeposit(value decimal.Decimal) (DepositQuote, error) {
	if value.LessThan(MinPostValue) {
		return DepositQuote{}, fmt.Errorf("%w: %s is below minimum %s", ErrInvalidValue, value, MinPostValue)
	}
	fee := value.Mul(platformFeeRate)
	return DepositQuote{
		Value:        value,
		PlatformFee:  fee,
		TotalDeposit: value.Add(fee).Add(fixedTransactionFee),
	}, nil
}

// VerifyDebit checks a program-reported debit against the quote. A mismatch
// beyond the fixed epsilon is an error, never silently tolerated.
func (q DepositQuote) VerifyDebit(debited decimal.Decimal) error {
	diff := q.TotalDeposit.Sub(debited).Abs()
	if diff.GreaterThan(depositEpsilon) {
		return fmt.Errorf("%w: expected %s, ledger debited %s", ErrDepositMismatch, q.TotalDeposit, debited)
	}
	return nil
}

// BaseUnitsPerToken is the fixed-point scale of on-chain amounts.
const BaseUnitsPerToken = 1_000_000_000

// ToBaseUnits converts a decimal token amount to integer base units for the
// wire. Amounts with sub-unit precision are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal) (uint64, error) {
	scaled := amount.Shift(9)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s has sub-unit precision", ErrInvalidValue, amount)
	}
	bi := scaled.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidValue, amount)
	}
	return bi.Uint64(), nil
}

// FromBaseUnits converts integer base units back to a decimal token amount.
func FromBaseUnits(units uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -9)
}
