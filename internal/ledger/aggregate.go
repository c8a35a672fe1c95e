package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	oneHundred        = decimal.NewFromInt(100)
	interestThreshold = decimal.NewFromInt(1)
)

// Balance is the exact sum of all movements. It is always recomputed
// from the log; nothing stores it authoritatively.
func (a *Account) Balance() decimal.Decimal {
	sum := decimal.Zero
	for _, m := range a.movements {
		sum = sum.Add(m.Amount)
	}
	return sum
}

// TotalIncome is the sum of all positive movements.
func (a *Account) TotalIncome() decimal.Decimal {
	sum := decimal.Zero
	for _, m := range a.movements {
		if m.Amount.IsPositive() {
			sum = sum.Add(m.Amount)
		}
	}
	return sum
}

// TotalOutgo is the sum of all negative movements, returned as a
// negative number. Callers display its negation.
func (a *Account) TotalOutgo() decimal.Decimal {
	sum := decimal.Zero
	for _, m := range a.movements {
		if m.Amount.IsNegative() {
			sum = sum.Add(m.Amount)
		}
	}
	return sum
}

// QualifyingInterest computes per-deposit interest at the account rate
// and sums only the amounts of at least one whole unit of currency.
// Interest below the payout floor is never credited. This is a read-only
// projection; it is not appended to the log.
func (a *Account) QualifyingInterest() decimal.Decimal {
	sum := decimal.Zero
	for _, m := range a.movements {
		if !m.Amount.IsPositive() {
			continue
		}
		interest := m.Amount.Mul(a.interestRate).Div(oneHundred)
		if interest.GreaterThanOrEqual(interestThreshold) {
			sum = sum.Add(interest)
		}
	}
	return sum
}

func sortMovementsByAmount(movs []Movement) {
	sort.SliceStable(movs, func(i, j int) bool {
		return movs[i].Amount.LessThan(movs[j].Amount)
	})
}
