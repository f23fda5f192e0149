package escrow

import (
	"context"
	"fmt"
)

// VerifyMilestone marks a PENDING milestone as VERIFIED and records the
// oracle's evidence digest. Only the agreement's oracle may verify, and only
// while the agreement is FUNDED or ACTIVE. The first verification moves the
// agreement from FUNDED to ACTIVE.
func (e *Engine) VerifyMilestone(ctx context.Context, call Call, id AgreementID, ordinal int, evidence EvidenceDigest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("escrow: verify milestone: agreement %d: %w", id, ErrNotFound)
	}
	if call.Caller != a.Oracle {
		return fmt.Errorf("escrow: verify milestone: caller is not the oracle: %w", ErrUnauthorized)
	}
	if a.State != AgreementFunded && a.State != AgreementActive {
		return fmt.Errorf("escrow: verify milestone: agreement %d in state %s: %w", id, a.State, ErrInvalidState)
	}
	m, ok := a.milestone(ordinal)
	if !ok {
		return fmt.Errorf("escrow: verify milestone: ordinal %d outside 1..%d: %w",
			ordinal, len(a.Milestones), ErrNotFound)
	}
	if m.State != MilestonePending {
		return fmt.Errorf("escrow: verify milestone: milestone %d in state %s: %w", ordinal, m.State, ErrInvalidState)
	}

	now := e.ticks.CurrentTick()
	m.State = MilestoneVerified
	m.VerifiedAt = now
	m.Evidence = evidence
	if a.State == AgreementFunded {
		a.State = AgreementActive
	}

	var evidenceHex string
	if !evidence.IsZero() {
		evidenceHex = evidence.String()
	}
	e.emit(Event{
		Type:        EventMilestoneVerified,
		AgreementID: id,
		Seq:         a.nextEventSeq(),
		Tick:        now,
		Payload: map[string]any{
			"ordinal":  ordinal,
			"evidence": evidenceHex,
		},
	})
	return nil
}

// ReleaseResult reports how a released milestone's amount was split.
type ReleaseResult struct {
	Fee               uint64
	BeneficiaryAmount uint64
	Completed         bool
}

// ReleaseMilestone pays out a VERIFIED milestone: the protocol fee goes to
// the fee recipient and the remainder to the beneficiary, in one atomic
// settlement. Anyone may release; verification already encodes the oracle's
// approval, so holding payouts hostage on a particular caller would add
// nothing. Releasing the last milestone completes the agreement.
func (e *Engine) ReleaseMilestone(ctx context.Context, call Call, id AgreementID, ordinal int) (ReleaseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.registry.Get(id)
	if !ok {
		return ReleaseResult{}, fmt.Errorf("escrow: release milestone: agreement %d: %w", id, ErrNotFound)
	}
	m, ok := a.milestone(ordinal)
	if !ok {
		return ReleaseResult{}, fmt.Errorf("escrow: release milestone: ordinal %d outside 1..%d: %w",
			ordinal, len(a.Milestones), ErrNotFound)
	}
	if m.State != MilestoneVerified {
		return ReleaseResult{}, fmt.Errorf("escrow: release milestone: milestone %d in state %s: %w",
			ordinal, m.State, ErrInvalidState)
	}

	fee := m.Amount / FeeDivisor
	beneficiaryAmount := m.Amount - fee

	payments := make([]Payment, 0, 2)
	payments = append(payments, Payment{To: a.Beneficiary, Amount: beneficiaryAmount})
	if fee > 0 {
		payments = append(payments, Payment{To: e.feeRecipient, Amount: fee})
	}
	if err := e.transfers.Transfer(ctx, payments...); err != nil {
		return ReleaseResult{}, fmt.Errorf("escrow: release milestone: settle payout: %w", err)
	}

	now := e.ticks.CurrentTick()
	m.State = MilestoneReleased
	m.ReleasedAt = now
	a.LockedAmount -= m.Amount
	a.ReleasedAmount += beneficiaryAmount
	e.totalValueLocked -= m.Amount
	e.totalValueReleased += beneficiaryAmount
	e.protocolFeesAccrued += fee

	completed := a.allMilestonesReleased()
	if completed {
		a.State = AgreementCompleted
	}

	e.emit(Event{
		Type:        EventMilestoneReleased,
		AgreementID: id,
		Seq:         a.nextEventSeq(),
		Tick:        now,
		Payload: map[string]any{
			"ordinal":            ordinal,
			"amount":             amountString(m.Amount),
			"fee":                amountString(fee),
			"beneficiary_amount": amountString(beneficiaryAmount),
			"completed":          completed,
		},
	})

	return ReleaseResult{Fee: fee, BeneficiaryAmount: beneficiaryAmount, Completed: completed}, nil
}
