package escrow

import (
	"context"
	"fmt"
)

// Refund returns all still-locked funds to the payer after the refund
// timeout has passed. Milestones already released stay released; everything
// not yet paid out (PENDING or VERIFIED alike) is cancelled, so a verified
// but unreleased milestone is forfeited by the beneficiary's side once the
// deadline expires. Returns the amount refunded.
func (e *Engine) Refund(ctx context.Context, call Call, id AgreementID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.registry.Get(id)
	if !ok {
		return 0, fmt.Errorf("escrow: refund: agreement %d: %w", id, ErrNotFound)
	}
	if call.Caller != a.Payer {
		return 0, fmt.Errorf("escrow: refund: caller is not the payer: %w", ErrUnauthorized)
	}
	now := e.ticks.CurrentTick()
	if now < a.TimeoutAt {
		return 0, fmt.Errorf("escrow: refund: timeout at tick %d, current tick %d: %w",
			a.TimeoutAt, now, ErrTimeoutNotReached)
	}
	if a.State == AgreementCompleted || a.State == AgreementRefunded {
		return 0, fmt.Errorf("escrow: refund: agreement %d in state %s: %w", id, a.State, ErrInvalidState)
	}
	if a.LockedAmount == 0 {
		return 0, fmt.Errorf("escrow: refund: agreement %d holds no locked funds: %w", id, ErrInvalidState)
	}

	refunded := a.LockedAmount
	if err := e.transfers.Transfer(ctx, Payment{To: a.Payer, Amount: refunded}); err != nil {
		return 0, fmt.Errorf("escrow: refund: settle payout: %w", err)
	}

	a.LockedAmount = 0
	a.State = AgreementRefunded
	cancelled := 0
	for i := range a.Milestones {
		m := &a.Milestones[i]
		if m.State == MilestonePending || m.State == MilestoneVerified {
			m.State = MilestoneCancelled
			cancelled++
		}
	}
	e.totalValueLocked -= refunded

	e.emit(Event{
		Type:        EventAgreementRefunded,
		AgreementID: id,
		Seq:         a.nextEventSeq(),
		Tick:        now,
		Payload: map[string]any{
			"amount":               amountString(refunded),
			"cancelled_milestones": cancelled,
		},
	})
	return refunded, nil
}
