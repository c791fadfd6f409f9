package matrix

import (
	"context"
	"fmt"

	"github.com/xraph/matrix/account"
	"github.com/xraph/matrix/id"
	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/store"
	"github.com/xraph/matrix/types"
)

// propagate walks the ancestor chain of a freshly placed position, recording
// the new descendant at each relative depth and paying whichever bonus table
// the plan's payout mode selects. The walk is an explicit loop bounded by
// the plan depth; it never recurses.
func (e *Engine) propagate(ctx context.Context, st store.Store, cfg *plan.SystemConfig, pl *plan.PlanLevel, pos *position.Position) error {
	// Referral bonus to the direct sponsor precedes the tree walk: it keys
	// off commission lineage, not tree shape.
	if pl.ReferralBonus.IsPositive() && pos.SponsorID != "" {
		err := e.applyBonus(ctx, st, cfg, pos.SponsorID, pos.ID, pl.Level, pl.ReferralBonus, account.PurposeReferral)
		if err != nil {
			return err
		}
	}

	parentID := pos.ParentID
	for d := 1; d <= pl.Depth && !parentID.IsNil(); d++ {
		ancestor, err := st.GetPosition(ctx, parentID)
		if err != nil {
			return err
		}

		ancestor.Record(d)
		if ancestor.ChildCount(d) > pl.Capacity(d) {
			return fmt.Errorf("%w: position %s childCount[%d]=%d exceeds capacity %d",
				ErrLedgerInconsistency, ancestor.ID.String(), d, ancestor.ChildCount(d), pl.Capacity(d))
		}
		filled := ancestor.ChildCount(d) == pl.Capacity(d)

		var bonus, match types.Money
		var purpose account.Purpose
		switch pl.PayoutMode {
		case plan.PayoutPerLevel:
			bonus = pl.LevelBonus(d)
			match = pl.LevelMatchingBonus(d)
			purpose = account.PurposeLevel
		case plan.PayoutCycleOnFill:
			if filled {
				bonus = pl.FillBonus(d)
				match = pl.FillMatchingBonus(d)
				purpose = account.PurposeCycle
			}
		case plan.PayoutFullCycleOnly:
			if d == pl.Depth && filled {
				bonus = pl.MatrixBonus
				match = pl.MatrixMatchingBonus
				purpose = account.PurposeMatrix
			}
		}

		if bonus.IsPositive() {
			if err := e.applyBonus(ctx, st, cfg, ancestor.OwnerID, ancestor.ID, pl.Level, bonus, purpose); err != nil {
				return err
			}
			ancestor.TotalEarned = ancestor.TotalEarned.Add(bonus)

			if match.IsPositive() && ancestor.SponsorID != "" {
				eligible, err := e.matchEligible(ctx, st, cfg, ancestor.SponsorID, pl.Level)
				if err != nil {
					return err
				}
				if eligible {
					err := e.applyBonus(ctx, st, cfg, ancestor.SponsorID, ancestor.ID, pl.Level, match, account.PurposeMatching)
					if err != nil {
						return err
					}
				}
			}
		}

		if err := st.UpdatePosition(ctx, ancestor); err != nil {
			return err
		}

		// A full cycle completes the ancestor regardless of payout mode.
		if d == pl.Depth && filled {
			if err := e.onCycleComplete(ctx, st, pl, ancestor); err != nil {
				return err
			}
		}

		parentID = ancestor.ParentID
	}

	return nil
}

// matchEligible gates the matching bonus: the receiving sponsor must hold an
// ACTIVE position at this level unless the system-wide NonMatrixMatch
// override is enabled.
func (e *Engine) matchEligible(ctx context.Context, st store.Store, cfg *plan.SystemConfig, sponsorID string, level int) (bool, error) {
	if cfg.NonMatrixMatch {
		return true, nil
	}
	_, err := st.ActivePositionByOwner(ctx, sponsorID, level)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// applyBonus credits amount to the user's ledger, withholding the
// configured reserve percentage, and appends the audit transaction. The
// conservation check runs before any mutation; a violation is fatal to the
// whole run.
func (e *Engine) applyBonus(ctx context.Context, st store.Store, cfg *plan.SystemConfig, userID string, posID id.PositionID, level int, amount types.Money, purpose account.Purpose) error {
	withheld, payable := amount.Split(cfg.ReservePercent)
	if !payable.Add(withheld).Equal(amount) {
		return fmt.Errorf("%w: split of %s into %s + %s", ErrLedgerInconsistency,
			amount.String(), payable.String(), withheld.String())
	}

	if err := st.ApplyEarning(ctx, userID, amount, payable, withheld); err != nil {
		return err
	}

	txn := &account.Transaction{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		UserID:     userID,
		PositionID: posID,
		Level:      level,
		Amount:     amount,
		Purpose:    purpose,
	}
	txn.CreatedAt = e.now()
	txn.UpdatedAt = txn.CreatedAt
	if err := st.AppendTransaction(ctx, txn); err != nil {
		return err
	}

	e.plugins.EmitBonusApplied(ctx, txn)
	e.logger.Debug("bonus applied",
		"user", userID,
		"amount", amount.String(),
		"purpose", purpose,
		"level", level,
	)

	// Automatic disbursement is fire-and-forget: a dispatch problem never
	// reverses the ledger credit.
	e.maybeDisburse(ctx, st, cfg, userID)

	return nil
}
