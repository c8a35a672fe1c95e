package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loanRecorder struct {
	mu        sync.Mutex
	disbursed []Movement
}

func (r *loanRecorder) LoanDisbursed(accountID string, m Movement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disbursed = append(r.disbursed, m)
}

func (r *loanRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.disbursed)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := NewDirectory()

	jonas, err := NewAccount("Jonas Schmedtmann", 1111, dec(t, "1.2"), "EUR", "pt-PT",
		seedMovements(t, "200", "455.23", "-306.5", "25000", "-642.21", "-133.9", "79.97", "1300"))
	require.NoError(t, err)
	jessica, err := NewAccount("Jessica Davis", 2222, dec(t, "1.5"), "USD", "en-US",
		seedMovements(t, "5000", "3400", "-150", "-790", "-3210", "-1000", "8500", "-30"))
	require.NoError(t, err)

	require.NoError(t, dir.Register(jonas))
	require.NoError(t, dir.Register(jessica))

	e := NewEngine(dir)
	e.LoanDelay = 50 * time.Millisecond
	return e
}

func login(t *testing.T, e *Engine, shortID string, pin int) *Session {
	t.Helper()
	sess, err := e.Authenticate(context.Background(), shortID, pin)
	require.NoError(t, err)
	return sess
}

func logLen(t *testing.T, e *Engine, shortID string) int {
	t.Helper()
	acc, ok := e.Directory().FindByID(shortID)
	require.True(t, ok)
	movs := acc.Movements()
	require.Equal(t, len(acc.Amounts()), len(acc.Dates()))
	return len(movs)
}

func TestAuthenticate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Authenticate(ctx, "zz", 1111)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = e.Authenticate(ctx, "js", 9999)
	assert.ErrorIs(t, err, ErrBadPIN)

	sess, err := e.Authenticate(ctx, "js", 1111)
	require.NoError(t, err)
	assert.Equal(t, "js", sess.AccountID)
	assert.NotEmpty(t, sess.ID)

	active, ok := e.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, sess.ID, active.ID)
}

func TestOperationsRequireSession(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	err := e.Transfer(ctx, "nope", "jd", dec(t, "10"))
	assert.ErrorIs(t, err, ErrNoActiveSession)

	err = e.RequestLoan(ctx, "nope", dec(t, "10"))
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = e.Snapshot(ctx, "nope", false)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSessionExpiry(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return now }

	sess := login(t, e, "js", 1111)

	now = now.Add(e.SessionTTL + time.Second)
	err := e.Transfer(context.Background(), sess.ID, "jd", dec(t, "10"))
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, ok := e.ActiveSession()
	assert.False(t, ok)
}

func TestReauthenticationReplacesSession(t *testing.T) {
	e := newTestEngine(t)
	first := login(t, e, "js", 1111)
	second := login(t, e, "jd", 2222)

	err := e.Transfer(context.Background(), first.ID, "jd", dec(t, "10"))
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = e.Snapshot(context.Background(), second.ID, false)
	assert.NoError(t, err)
}

func TestTransferPreconditionsInOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	before := logLen(t, e, "js")

	assert.ErrorIs(t, e.Transfer(ctx, sess.ID, "jd", dec(t, "0")), ErrInvalidAmount)
	assert.ErrorIs(t, e.Transfer(ctx, sess.ID, "jd", dec(t, "-5")), ErrInvalidAmount)
	assert.ErrorIs(t, e.Transfer(ctx, sess.ID, "jd", dec(t, "999999")), ErrInsufficientFunds)
	assert.ErrorIs(t, e.Transfer(ctx, sess.ID, "zz", dec(t, "10")), ErrRecipientNotFound)
	assert.ErrorIs(t, e.Transfer(ctx, sess.ID, "js", dec(t, "10")), ErrRecipientNotFound)

	// failed operations appended to neither log
	assert.Equal(t, before, logLen(t, e, "js"))
}

func TestTransferConservesTotal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	js, _ := e.Directory().FindByID("js")
	jd, _ := e.Directory().FindByID("jd")
	totalBefore := js.Balance().Add(jd.Balance())
	jsBefore := js.Balance()
	jdBefore := jd.Balance()

	amount := dec(t, "951.59")
	require.NoError(t, e.Transfer(ctx, sess.ID, "jd", amount))

	assert.True(t, js.Balance().Equal(jsBefore.Sub(amount)), "sender got %s", js.Balance())
	assert.True(t, jd.Balance().Equal(jdBefore.Add(amount)), "recipient got %s", jd.Balance())
	assert.True(t, js.Balance().Add(jd.Balance()).Equal(totalBefore))

	// one debit and one credit, same timestamp
	jsMovs := js.Movements()
	jdMovs := jd.Movements()
	assert.True(t, jsMovs[len(jsMovs)-1].Amount.Equal(amount.Neg()))
	assert.True(t, jdMovs[len(jdMovs)-1].Amount.Equal(amount))
	assert.Equal(t, jsMovs[len(jsMovs)-1].OccurredAt, jdMovs[len(jdMovs)-1].OccurredAt)
}

func TestLoanEligibility(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	assert.ErrorIs(t, e.RequestLoan(ctx, sess.ID, dec(t, "0")), ErrInvalidAmount)
	assert.ErrorIs(t, e.RequestLoan(ctx, sess.ID, dec(t, "-20")), ErrInvalidAmount)

	// largest movement is 25000, so 10% collateral caps loans at 250000
	assert.ErrorIs(t, e.RequestLoan(ctx, sess.ID, dec(t, "250001")), ErrLoanNotEligible)

	// 200 >= 100 * 0.1 qualifies
	assert.NoError(t, e.RequestLoan(ctx, sess.ID, dec(t, "100")))
}

func TestLoanCreditsAfterDelay(t *testing.T) {
	e := newTestEngine(t)
	rec := &loanRecorder{}
	e.Loans = rec
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	before := logLen(t, e, "js")
	require.NoError(t, e.RequestLoan(ctx, sess.ID, dec(t, "100.9")))
	assert.Equal(t, before, logLen(t, e, "js"), "credit must not land before the delay")

	require.Eventually(t, func() bool { return rec.count() == 1 },
		2*time.Second, time.Millisecond)

	js, _ := e.Directory().FindByID("js")
	movs := js.Movements()
	require.Len(t, movs, before+1)
	// requested 100.9, credited whole units only
	assert.True(t, movs[len(movs)-1].Amount.Equal(dec(t, "100")))
}

func TestCloseDiscardsPendingLoan(t *testing.T) {
	e := newTestEngine(t)
	rec := &loanRecorder{}
	e.Loans = rec
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	require.NoError(t, e.RequestLoan(ctx, sess.ID, dec(t, "100")))
	require.NoError(t, e.CloseAccount(ctx, sess.ID, "js", 1111))

	time.Sleep(10 * e.LoanDelay)
	assert.Zero(t, rec.count(), "deferred credit must not fire for a closed account")
}

func TestSessionExpiryDiscardsPendingLoan(t *testing.T) {
	e := newTestEngine(t)
	rec := &loanRecorder{}
	e.Loans = rec
	ctx := context.Background()

	var clockMu sync.Mutex
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e.Now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	sess := login(t, e, "js", 1111)
	before := logLen(t, e, "js")
	require.NoError(t, e.RequestLoan(ctx, sess.ID, dec(t, "100")))

	// the session deadline passes with no further engine call before
	// the loan timer fires
	clockMu.Lock()
	now = now.Add(e.SessionTTL + time.Second)
	clockMu.Unlock()

	time.Sleep(10 * e.LoanDelay)
	assert.Zero(t, rec.count(), "deferred credit must not fire for an expired session")
	assert.Equal(t, before, logLen(t, e, "js"))

	_, ok := e.ActiveSession()
	assert.False(t, ok)
}

func TestClearSessionDiscardsPendingLoan(t *testing.T) {
	e := newTestEngine(t)
	rec := &loanRecorder{}
	e.Loans = rec
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	before := logLen(t, e, "js")
	require.NoError(t, e.RequestLoan(ctx, sess.ID, dec(t, "100")))
	e.ClearSession(sess.ID)

	time.Sleep(10 * e.LoanDelay)
	assert.Zero(t, rec.count())
	assert.Equal(t, before, logLen(t, e, "js"))
}

func TestCloseAccount(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	assert.ErrorIs(t, e.CloseAccount(ctx, sess.ID, "jd", 1111), ErrCloseMismatch)
	assert.ErrorIs(t, e.CloseAccount(ctx, sess.ID, "js", 2222), ErrCloseMismatch)

	require.NoError(t, e.CloseAccount(ctx, sess.ID, "js", 1111))
	_, ok := e.Directory().FindByID("js")
	assert.False(t, ok)
	_, ok = e.ActiveSession()
	assert.False(t, ok)

	assert.ErrorIs(t, e.Transfer(ctx, sess.ID, "jd", dec(t, "1")), ErrNoActiveSession)
}

func TestSnapshotFigures(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	sum, err := e.Snapshot(ctx, sess.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Jonas Schmedtmann", sum.OwnerName)
	assert.Equal(t, "Jonas", sum.FirstName)
	assert.Equal(t, "EUR", sum.Currency)
	assert.True(t, sum.Balance.Equal(dec(t, "25951.59")))
	assert.True(t, sum.TotalIncome.Equal(dec(t, "27035.2")))
	assert.True(t, sum.TotalOutgo.Equal(dec(t, "-1082.61")))
	assert.True(t, sum.QualifyingInterest.Equal(dec(t, "323.46276")))
	assert.Len(t, sum.Movements, 8)

	sorted, err := e.Snapshot(ctx, sess.ID, true)
	require.NoError(t, err)
	for i := 1; i < len(sorted.Movements); i++ {
		assert.False(t, sorted.Movements[i].Amount.LessThan(sorted.Movements[i-1].Amount))
	}
	// the stored log keeps append order
	js, _ := e.Directory().FindByID("js")
	assert.True(t, js.Amounts()[0].Equal(dec(t, "200")))
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sess := login(t, e, "js", 1111)

	js, _ := e.Directory().FindByID("js")
	jd, _ := e.Directory().FindByID("jd")
	totalBefore := js.Balance().Add(jd.Balance())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Transfer(ctx, sess.ID, "jd", dec(t, "100"))
		}()
	}
	wg.Wait()

	assert.True(t, js.Balance().Add(jd.Balance()).Equal(totalBefore),
		"conservation violated: %s", js.Balance().Add(jd.Balance()))
	assert.Equal(t, len(js.Amounts()), len(js.Dates()))
}
