package ledger

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"moneta.org/internal/ids"
)

// Movement is a single signed ledger entry: a deposit when positive,
// a withdrawal when negative. Entries are append-only and keep their
// append order; the amount and its timestamp travel together so the
// log can never fall out of alignment.
type Movement struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// IsDeposit reports whether the movement credits the account.
func (m Movement) IsDeposit() bool { return m.Amount.IsPositive() }

// Account holds an owner's identity, credentials and transaction log.
// All mutation goes through the Engine; callers only get read access.
type Account struct {
	ownerName    string
	shortID      string
	pin          int
	interestRate decimal.Decimal // percent, e.g. 1.2 means 1.2%
	currency     string
	locale       string
	movements    []Movement
}

// NewAccount builds an account and derives its short identifier from the
// owner name: the lowercase initial of every whitespace-separated token,
// concatenated ("Jessica Davis" -> "jd"). Seed movements keep their
// given timestamps; they are the only entries not produced by the Engine.
func NewAccount(ownerName string, pin int, interestRate decimal.Decimal, currency, locale string, seed []Movement) (*Account, error) {
	ownerName = strings.TrimSpace(ownerName)
	if ownerName == "" {
		return nil, errors.New("owner name is required")
	}
	if pin < 0 {
		return nil, errors.New("pin must be non-negative")
	}
	if interestRate.IsNegative() {
		return nil, errors.New("interest rate must be non-negative")
	}

	acc := &Account{
		ownerName:    ownerName,
		shortID:      deriveShortID(ownerName),
		pin:          pin,
		interestRate: interestRate,
		currency:     currency,
		locale:       locale,
	}
	for _, m := range seed {
		if m.ID == "" {
			m.ID = ids.New()
		}
		acc.movements = append(acc.movements, m)
	}
	return acc, nil
}

func deriveShortID(ownerName string) string {
	var b strings.Builder
	for _, token := range strings.Fields(ownerName) {
		for _, r := range token {
			b.WriteRune(unicode.ToLower(r))
			break
		}
	}
	return b.String()
}

// OwnerName returns the full display name.
func (a *Account) OwnerName() string { return a.ownerName }

// FirstName returns the first token of the owner name, used for greetings.
func (a *Account) FirstName() string {
	fields := strings.Fields(a.ownerName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ShortID returns the derived account identifier.
func (a *Account) ShortID() string { return a.shortID }

// InterestRate returns the account's interest rate in percent.
func (a *Account) InterestRate() decimal.Decimal { return a.interestRate }

// Currency returns the display currency code. Opaque to the ledger.
func (a *Account) Currency() string { return a.currency }

// Locale returns the display locale tag. Opaque to the ledger.
func (a *Account) Locale() string { return a.locale }

// Movements returns a copy of the transaction log in append order.
func (a *Account) Movements() []Movement {
	out := make([]Movement, len(a.movements))
	copy(out, a.movements)
	return out
}

// MovementsSorted returns a copy of the log ordered by ascending amount.
// Storage order is never touched; sorting is a view concern.
func (a *Account) MovementsSorted() []Movement {
	out := a.Movements()
	sortMovementsByAmount(out)
	return out
}

// Amounts returns just the movement amounts, index-aligned with Dates.
func (a *Account) Amounts() []decimal.Decimal {
	out := make([]decimal.Decimal, len(a.movements))
	for i, m := range a.movements {
		out[i] = m.Amount
	}
	return out
}

// Dates returns just the movement timestamps, index-aligned with Amounts.
func (a *Account) Dates() []time.Time {
	out := make([]time.Time, len(a.movements))
	for i, m := range a.movements {
		out[i] = m.OccurredAt
	}
	return out
}

func (a *Account) matchesPIN(pin int) bool { return a.pin == pin }

func (a *Account) append(m Movement) {
	a.movements = append(a.movements, m)
}
