package domain

import "github.com/shopspring/decimal"

// Charge splits what a client pays into service price and transaction fee.
type Charge struct {
	Price          int64
	TransactionFee int64
	Total          int64
}

// NewCharge applies feeRate to price, rounding the fee up to a whole unit.
func NewCharge(price int64, feeRate decimal.Decimal) Charge {
	fee := decimal.NewFromInt(price).Mul(feeRate).Ceil().IntPart()
	return Charge{Price: price, TransactionFee: fee, Total: price + fee}
}
