package ledger

import "errors"

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrBadPIN            = errors.New("pin does not match")
	ErrInvalidAmount     = errors.New("invalid amount (must be > 0)")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrLoanNotEligible   = errors.New("loan not eligible")
	ErrCloseMismatch     = errors.New("credentials do not match the active account")
	ErrNoActiveSession   = errors.New("no active session")
	ErrDuplicateShortID  = errors.New("short id already registered")
)
