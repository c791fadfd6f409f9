package matrix

import (
	"context"
	"fmt"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/types"
)

// RequestWithdrawal queues a disbursement of the user's unpaid earnings to
// their payout address. Dispatch is asynchronous; the ledger is settled only
// by MarkWithdrawalPaid once the gateway confirms.
func (e *Engine) RequestWithdrawal(ctx context.Context, userID string, amount types.Money) (*account.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidInput)
	}

	acct, err := e.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.UnpaidEarnings.LessThan(amount) {
		return nil, ErrInsufficientUnpaid
	}

	m, err := e.store.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m.PayoutAddress == "" {
		return nil, fmt.Errorf("%w: member %s has no payout address", ErrInvalidInput, userID)
	}

	w := account.NewWithdrawal(userID, amount, m.PayoutAddress)
	if err := e.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	if !e.enqueueDispatch(w.ID) {
		e.logger.Warn("withdrawal dispatch queue full, request stays pending",
			"withdrawal", w.ID.String(),
			"user", userID,
		)
	}
	return w, nil
}

// MarkWithdrawalPaid is the dispatcher completion callback: it settles the
// ledger (unpaid -= amount, paid += amount) and closes the matching
// dispatched request.
func (e *Engine) MarkWithdrawalPaid(ctx context.Context, userID string, amount types.Money) error {
	if err := e.store.SettlePayout(ctx, userID, amount); err != nil {
		return err
	}

	// Best-effort bookkeeping on the request record; the ledger settlement
	// above is the authoritative state change.
	dispatched, err := e.store.ListWithdrawals(ctx, userID, account.WithdrawalDispatched)
	if err != nil {
		return nil //nolint:nilerr // settlement succeeded
	}
	for _, w := range dispatched {
		if !w.Amount.Equal(amount) {
			continue
		}
		now := e.now()
		w.Status = account.WithdrawalPaid
		w.PaidAt = &now
		w.Touch()
		if err := e.store.UpdateWithdrawal(ctx, w); err != nil {
			e.logger.Warn("failed to close withdrawal request",
				"withdrawal", w.ID.String(),
				"error", err,
			)
		}
		break
	}
	return nil
}

// maybeDisburse queues an automatic disbursement after a bonus credit when
// system config enables it. Never blocks and never fails the payout walk.
func (e *Engine) maybeDisburse(ctx context.Context, st store.Store, cfg *plan.SystemConfig, userID string) {
	if !cfg.AutoDisburse {
		return
	}

	acct, err := st.GetAccount(ctx, userID)
	if err != nil {
		return
	}
	if !acct.UnpaidEarnings.IsPositive() {
		return
	}
	if cfg.DisburseMinimum.Amount > 0 && acct.UnpaidEarnings.Amount < cfg.DisburseMinimum.Amount {
		return
	}

	m, err := st.GetMember(ctx, userID)
	if err != nil || m.PayoutAddress == "" {
		return
	}

	// One in-flight request per user.
	for _, status := range []account.WithdrawalStatus{account.WithdrawalPending, account.WithdrawalDispatched} {
		open, err := st.ListWithdrawals(ctx, userID, status)
		if err != nil || len(open) > 0 {
			return
		}
	}

	w := account.NewWithdrawal(userID, acct.UnpaidEarnings, m.PayoutAddress)
	if err := st.CreateWithdrawal(ctx, w); err != nil {
		e.logger.Warn("failed to create auto-disburse request", "user", userID, "error", err)
		return
	}

	if !e.enqueueDispatch(w.ID) {
		e.logger.Warn("withdrawal dispatch queue full, request stays pending",
			"withdrawal", w.ID.String(),
			"user", userID,
		)
	}
}

// enqueueDispatch hands a withdrawal id to the dispatch worker without
// blocking. Returns false when the buffer is full; the request stays PENDING
// and an operator (or a later auto-disburse pass) can re-queue it.
func (e *Engine) enqueueDispatch(wID id.WithdrawalID) bool {
	select {
	case e.dispatchQueue <- wID:
		return true
	default:
		return false
	}
}

// dispatchWorker drains the withdrawal queue, calling the external
// dispatcher for each request. Dispatcher failures are terminal for the
// request and never touch the ledger.
func (e *Engine) dispatchWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopChan:
			// Drain whatever is already buffered before shutting down.
			for {
				select {
				case wID := <-e.dispatchQueue:
					e.dispatchOne(ctx, wID)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		case wID := <-e.dispatchQueue:
			e.dispatchOne(ctx, wID)
		}
	}
}

func (e *Engine) dispatchOne(ctx context.Context, wID id.WithdrawalID) {
	// Re-read from the store: a rolled-back batch may have queued an id
	// whose row no longer exists.
	w, err := e.store.GetWithdrawal(ctx, wID)
	if err != nil {
		return
	}
	if w.Status != account.WithdrawalPending {
		return
	}

	dispatcher := e.dispatcher
	if dispatcher == nil {
		for _, p := range e.plugins.Dispatchers() {
			if d, ok := p.Dispatcher().(WithdrawalDispatcher); ok {
				dispatcher = d
				break
			}
		}
	}
	if dispatcher == nil {
		e.logger.Warn("no withdrawal dispatcher configured, request stays pending",
			"withdrawal", w.ID.String(),
		)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	externalTxID, err := dispatcher.Disburse(callCtx, w.UserID, w.Amount, w.Destination, w.Reference)
	if err != nil {
		w.Status = account.WithdrawalFailed
		w.FailReason = err.Error()
		w.Touch()
		if uerr := e.store.UpdateWithdrawal(ctx, w); uerr != nil {
			e.logger.Error("failed to record withdrawal failure", "withdrawal", w.ID.String(), "error", uerr)
		}
		e.logger.Error("withdrawal dispatch failed",
			"withdrawal", w.ID.String(),
			"user", w.UserID,
			"error", err,
		)
		e.plugins.EmitWithdrawalDispatched(ctx, w, fmt.Errorf("%w: %v", ErrDispatcherFailed, err))
		return
	}

	w.Status = account.WithdrawalDispatched
	w.FailReason = ""
	w.Touch()
	if err := e.store.UpdateWithdrawal(ctx, w); err != nil {
		e.logger.Error("failed to record withdrawal dispatch", "withdrawal", w.ID.String(), "error", err)
		return
	}

	e.logger.Info("withdrawal dispatched",
		"withdrawal", w.ID.String(),
		"user", w.UserID,
		"amount", w.Amount.String(),
		"external_tx", externalTxID,
	)
	e.plugins.EmitWithdrawalDispatched(ctx, w, nil)
}
