package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneta.org/internal/ids"
)

const (
	// DefaultLoanDelay is the fixed processing window before a granted
	// loan is credited to the account.
	DefaultLoanDelay = 2500 * time.Millisecond
	// DefaultSessionTTL is the idle window after which the active
	// session is considered logged out.
	DefaultSessionTTL = 5 * time.Minute
)

// collateralRatio: a loan is granted only when some past movement covers
// at least this share of the requested amount.
var collateralRatio = decimal.RequireFromString("0.1")

// LoanNotifier receives the deferred loan credit once it lands on the
// account. Implementations must not call back into the Engine.
type LoanNotifier interface {
	LoanDisbursed(accountID string, m Movement)
}

// Summary is the read model handed to the presentation layer after any
// operation: every figure is derived from the movement log at call time.
type Summary struct {
	OwnerName          string          `json:"owner_name"`
	FirstName          string          `json:"first_name"`
	ShortID            string          `json:"short_id"`
	Currency           string          `json:"currency"`
	Locale             string          `json:"locale"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	Balance            decimal.Decimal `json:"balance"`
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalOutgo         decimal.Decimal `json:"total_outgo"`
	QualifyingInterest decimal.Decimal `json:"qualifying_interest"`
	Movements          []Movement      `json:"movements"`
	AsOf               time.Time       `json:"as_of"`
}

// Engine applies the mutating ledger operations against a Directory.
// All mutation and the single active session are serialized behind one
// mutex; each operation either applies fully or leaves the ledger
// untouched. Configure the exported fields before first use.
type Engine struct {
	LoanDelay  time.Duration
	SessionTTL time.Duration
	Now        func() time.Time
	Loans      LoanNotifier

	mu      sync.Mutex
	dir     *Directory
	session *Session
	pending map[string][]*loanTask
}

type loanTask struct {
	id      string
	session string
	amount  decimal.Decimal
	timer   *time.Timer
}

// NewEngine creates an engine over the given directory with default
// loan delay and session TTL.
func NewEngine(dir *Directory) *Engine {
	return &Engine{
		LoanDelay:  DefaultLoanDelay,
		SessionTTL: DefaultSessionTTL,
		Now:        time.Now,
		dir:        dir,
		pending:    make(map[string][]*loanTask),
	}
}

// Directory exposes the underlying account collection.
func (e *Engine) Directory() *Directory { return e.dir }

func (e *Engine) now() time.Time { return e.Now().UTC() }

// Authenticate resolves the account by short ID and verifies the PIN by
// plain numeric equality. On success it replaces any previous session;
// loan tasks still pending for the previous session are discarded.
func (e *Engine) Authenticate(ctx context.Context, shortID string, pin int) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acc, ok := e.dir.FindByID(shortID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !acc.matchesPIN(pin) {
		return nil, ErrBadPIN
	}
	if e.session != nil {
		e.cancelPendingLocked(e.session.AccountID)
	}
	e.session = &Session{
		ID:        uuid.NewString(),
		AccountID: shortID,
		ExpiresAt: e.now().Add(e.SessionTTL),
	}
	return e.session.clone(), nil
}

// ActiveSession returns a copy of the live session, if any. An expired
// session counts as absent.
func (e *Engine) ActiveSession() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.now().After(e.session.ExpiresAt) {
		return Session{}, false
	}
	return *e.session, true
}

// ClearSession ends the session with the given ID, discarding its
// pending loan tasks. Clearing an already-ended session is a no-op.
func (e *Engine) ClearSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.session.ID != sessionID {
		return
	}
	e.cancelPendingLocked(e.session.AccountID)
	e.session = nil
}

// Transfer moves amount from the session's account to the recipient:
// one debit and one credit appended with the same timestamp, atomically.
// Preconditions are checked in order: positive amount, sufficient
// balance, recipient present and distinct from the sender.
func (e *Engine) Transfer(ctx context.Context, sessionID, recipientID string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, sender, err := e.resolveSessionLocked(sessionID)
	if err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if sender.Balance().LessThan(amount) {
		return ErrInsufficientFunds
	}
	recipient, ok := e.dir.FindByID(recipientID)
	if !ok || recipient == sender {
		return ErrRecipientNotFound
	}

	now := e.now()
	recipient.append(Movement{ID: ids.New(), Amount: amount, OccurredAt: now})
	sender.append(Movement{ID: ids.New(), Amount: amount.Neg(), OccurredAt: now})
	return nil
}

// RequestLoan grants a loan when some past movement covers at least 10%
// of the requested amount. The amount is truncated to whole units. The
// credit itself lands after LoanDelay via a scheduled task; closing the
// account or ending the session first discards it.
func (e *Engine) RequestLoan(ctx context.Context, sessionID string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, acc, err := e.resolveSessionLocked(sessionID)
	if err != nil {
		return err
	}
	amount = amount.Truncate(0)
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	collateral := amount.Mul(collateralRatio)
	eligible := false
	for _, m := range acc.movements {
		if m.Amount.GreaterThanOrEqual(collateral) {
			eligible = true
			break
		}
	}
	if !eligible {
		return ErrLoanNotEligible
	}

	task := &loanTask{id: ids.New(), session: sess.ID, amount: amount}
	accountID := acc.shortID
	task.timer = time.AfterFunc(e.LoanDelay, func() {
		e.completeLoan(accountID, task.id)
	})
	e.pending[accountID] = append(e.pending[accountID], task)
	return nil
}

// completeLoan applies a deferred loan credit. The credit is dropped
// when the task was cancelled, the session that requested it has ended
// (including by passive expiry), or the account has gone away.
func (e *Engine) completeLoan(accountID, taskID string) {
	e.mu.Lock()
	if e.session != nil && e.now().After(e.session.ExpiresAt) {
		e.cancelPendingLocked(e.session.AccountID)
		e.session = nil
	}
	task := e.takePendingLocked(accountID, taskID)
	if task == nil || e.session == nil || e.session.ID != task.session {
		e.mu.Unlock()
		return
	}
	acc, ok := e.dir.FindByID(accountID)
	if !ok {
		e.mu.Unlock()
		return
	}
	m := Movement{ID: ids.New(), Amount: task.amount, OccurredAt: e.now()}
	acc.append(m)
	notifier := e.Loans
	e.mu.Unlock()

	if notifier != nil {
		notifier.LoanDisbursed(accountID, m)
	}
}

// CloseAccount removes the session's account from the directory. The
// supplied short ID and PIN must both match the active account exactly.
// Pending loan tasks die with the account and the session is cleared.
func (e *Engine) CloseAccount(ctx context.Context, sessionID, shortID string, pin int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, acc, err := e.resolveSessionLocked(sessionID)
	if err != nil {
		return err
	}
	if shortID != acc.shortID || !acc.matchesPIN(pin) {
		return ErrCloseMismatch
	}
	if err := e.dir.Remove(shortID); err != nil {
		return err
	}
	e.cancelPendingLocked(shortID)
	e.session = nil
	return nil
}

// Snapshot derives the summary read model for the session's account.
// When sortByAmount is set, the movement rows are ordered ascending by
// amount; the stored log keeps append order either way.
func (e *Engine) Snapshot(ctx context.Context, sessionID string, sortByAmount bool) (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, acc, err := e.resolveSessionLocked(sessionID)
	if err != nil {
		return Summary{}, err
	}
	sess.SortAscending = sortByAmount

	movs := acc.Movements()
	if sortByAmount {
		sortMovementsByAmount(movs)
	}
	return Summary{
		OwnerName:          acc.ownerName,
		FirstName:          acc.FirstName(),
		ShortID:            acc.shortID,
		Currency:           acc.currency,
		Locale:             acc.locale,
		InterestRate:       acc.interestRate,
		Balance:            acc.Balance(),
		TotalIncome:        acc.TotalIncome(),
		TotalOutgo:         acc.TotalOutgo(),
		QualifyingInterest: acc.QualifyingInterest(),
		Movements:          movs,
		AsOf:               e.now(),
	}, nil
}

// resolveSessionLocked validates the session and returns it with its
// account. Expiry or a vanished account clears the session first, so
// every path out of an ended session reports ErrNoActiveSession. The
// deadline is fixed at authentication time, matching the token expiry.
func (e *Engine) resolveSessionLocked(sessionID string) (*Session, *Account, error) {
	if e.session == nil || e.session.ID != sessionID {
		return nil, nil, ErrNoActiveSession
	}
	if e.now().After(e.session.ExpiresAt) {
		e.cancelPendingLocked(e.session.AccountID)
		e.session = nil
		return nil, nil, ErrNoActiveSession
	}
	acc, ok := e.dir.FindByID(e.session.AccountID)
	if !ok {
		e.session = nil
		return nil, nil, ErrNoActiveSession
	}
	return e.session, acc, nil
}

func (e *Engine) cancelPendingLocked(accountID string) {
	for _, task := range e.pending[accountID] {
		task.timer.Stop()
	}
	delete(e.pending, accountID)
}

func (e *Engine) takePendingLocked(accountID, taskID string) *loanTask {
	tasks := e.pending[accountID]
	for i, task := range tasks {
		if task.id == taskID {
			e.pending[accountID] = append(tasks[:i], tasks[i+1:]...)
			if len(e.pending[accountID]) == 0 {
				delete(e.pending, accountID)
			}
			return task
		}
	}
	return nil
}
