package matrix

import (
	"context"
	"fmt"

	"github.com/xraph/matrix/plan"
	"github.com/xraph/matrix/position"
	"github.com/xraph/matrix/queue"
	"github.com/xraph/matrix/store"
)

// place creates a position for the event's owner and attaches it to the
// level's tree: directly under the sponsor when a slot is open, by spillover
// search otherwise, and by global fallback when the sponsor subtree is full.
// The parent's slot counter is incremented by the bonus walk, not here; the
// walk's depth-1 step is the attachment increment.
func (e *Engine) place(ctx context.Context, st store.Store, cfg *plan.SystemConfig, pl *plan.PlanLevel, ev *queue.Event) (*position.Position, error) {
	sponsorID, err := e.resolveSponsor(ctx, st, ev)
	if err != nil {
		return nil, err
	}

	parent, err := e.findAttachment(ctx, st, cfg, pl, sponsorID)
	if err != nil {
		return nil, &PlacementError{OwnerID: ev.OwnerID, Level: ev.Level, Err: err}
	}

	pos := position.New(ev.OwnerID, ev.Level, pl.Depth, sponsorID, pl.Currency)
	pos.Entity.CreatedAt = e.now()
	pos.Entity.UpdatedAt = pos.Entity.CreatedAt
	if parent != nil {
		pos.ParentID = parent.ID
	}
	if err := st.CreatePosition(ctx, pos); err != nil {
		return nil, err
	}

	if pl.EntryCredits > 0 {
		if err := st.GrantCredits(ctx, ev.OwnerID, pl.EntryCredits); err != nil {
			return nil, err
		}
	}

	e.plugins.EmitPositionPlaced(ctx, pos, parent)
	e.logger.Info("position placed",
		"position", pos.ID.String(),
		"owner", ev.OwnerID,
		"level", ev.Level,
		"parent", parentLogID(parent),
		"kind", ev.Kind,
	)
	return pos, nil
}

// resolveSponsor maps the event's sponsor username to a user id. Re-entries
// and cross-entries carry no username; they inherit the owner's original
// referrer.
func (e *Engine) resolveSponsor(ctx context.Context, st store.Store, ev *queue.Event) (string, error) {
	if ev.SponsorUsername != "" {
		m, err := st.GetMemberByUsername(ctx, ev.SponsorUsername)
		if err != nil {
			if IsNotFound(err) {
				return "", fmt.Errorf("%w: sponsor username %q", ErrSponsorNotFound, ev.SponsorUsername)
			}
			return "", err
		}
		return m.ID, nil
	}

	m, err := st.GetMember(ctx, ev.OwnerID)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return m.ReferrerID, nil
}

// findAttachment returns the parent position, or nil when the level's tree
// is empty and the new position becomes a root.
func (e *Engine) findAttachment(ctx context.Context, st store.Store, cfg *plan.SystemConfig, pl *plan.PlanLevel, sponsorID string) (*position.Position, error) {
	sponsorPos, err := e.sponsorPosition(ctx, st, cfg, pl.Level, sponsorID)
	if err != nil {
		return nil, err
	}

	if sponsorPos != nil {
		if sponsorPos.HasOpenSlot(pl.Width) {
			return sponsorPos, nil
		}
		if p, err := e.spillover(ctx, st, pl, sponsorPos); err != nil {
			return nil, err
		} else if p != nil {
			return p, nil
		}
	}

	// Global fallback: earliest-created ACTIVE position with a free slot.
	p, err := st.OldestOpenPosition(ctx, pl.Level, pl.Width)
	if err == nil {
		return p, nil
	}
	if !IsEventFatal(err) && !IsNotFound(err) {
		return nil, err
	}

	// An empty level has no open positions either; the first enrollee
	// becomes the tree root rather than failing.
	existing, lerr := st.ListPositions(ctx, position.ListOpts{Level: pl.Level, Limit: 1})
	if lerr != nil {
		return nil, lerr
	}
	if len(existing) == 0 {
		return nil, nil
	}
	return nil, ErrNoAvailableSlot
}

// sponsorPosition finds the sponsor's ACTIVE position at level. When the
// direct sponsor has none and AllowSponsorLookup is set, the referral chain
// is walked upward a bounded number of hops.
func (e *Engine) sponsorPosition(ctx context.Context, st store.Store, cfg *plan.SystemConfig, level int, sponsorID string) (*position.Position, error) {
	if sponsorID == "" {
		return nil, nil
	}

	pos, err := st.ActivePositionByOwner(ctx, sponsorID, level)
	if err == nil {
		return pos, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	if !cfg.AllowSponsorLookup {
		return nil, nil
	}

	current := sponsorID
	for hop := 0; hop < cfg.SponsorLookupHops; hop++ {
		m, err := st.GetMember(ctx, current)
		if err != nil || m.ReferrerID == "" {
			return nil, nil
		}
		current = m.ReferrerID

		pos, err := st.ActivePositionByOwner(ctx, current, level)
		if err == nil {
			return pos, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

// spillover breadth-first-searches the sponsor's descendants for the first
// position (in creation order) with a free direct slot, descending at most
// depth-1 levels beyond the sponsor.
func (e *Engine) spillover(ctx context.Context, st store.Store, pl *plan.PlanLevel, root *position.Position) (*position.Position, error) {
	frontier := []*position.Position{root}

	for hop := 1; hop < pl.Depth; hop++ {
		var next []*position.Position
		for _, p := range frontier {
			children, err := st.ChildrenOf(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if child.Status != position.StatusActive {
					continue
				}
				if child.HasOpenSlot(pl.Width) {
					return child, nil
				}
				next = append(next, child)
			}
		}
		if len(next) == 0 {
			return nil, nil
		}
		frontier = next
	}
	return nil, nil
}

func parentLogID(p *position.Position) string {
	if p == nil {
		return "root"
	}
	return p.ID.String()
}
