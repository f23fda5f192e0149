package escrow

import (
	"context"
	"fmt"
)

// CreateParams enumerates the creation inputs. The milestone list is fixed
// for the agreement's lifetime: amounts must be positive and sum exactly to
// TotalAmount. Descriptions are optional; when present the slice must be the
// same length as MilestoneAmounts.
type CreateParams struct {
	Beneficiary     Address
	Oracle          Address
	TotalAmount     uint64
	MilestoneAmounts []uint64
	Descriptions    []string
	Title           string
	Metadata        string
}

// CreateAgreement allocates a new agreement in state CREATED with the caller
// as payer and one PENDING milestone per input amount, ordinals 1..N. On any
// validation failure it returns identifier 0, which is never assigned.
func (e *Engine) CreateAgreement(ctx context.Context, call Call, p CreateParams) (AgreementID, error) {
	if !call.Caller.IsValid() {
		return 0, fmt.Errorf("escrow: create agreement: caller address invalid: %w", ErrInvalidInput)
	}
	if !p.Beneficiary.IsValid() {
		return 0, fmt.Errorf("escrow: create agreement: beneficiary address invalid: %w", ErrInvalidInput)
	}
	if !p.Oracle.IsValid() {
		return 0, fmt.Errorf("escrow: create agreement: oracle address invalid: %w", ErrInvalidInput)
	}
	count := len(p.MilestoneAmounts)
	if count == 0 || count > MaxMilestonesPerAgreement {
		return 0, fmt.Errorf("escrow: create agreement: milestone count %d outside 1..%d: %w",
			count, MaxMilestonesPerAgreement, ErrInvalidInput)
	}
	if len(p.Descriptions) != 0 && len(p.Descriptions) != count {
		return 0, fmt.Errorf("escrow: create agreement: %d descriptions for %d milestones: %w",
			len(p.Descriptions), count, ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.Len() >= e.registry.Capacity() {
		return 0, fmt.Errorf("escrow: create agreement: registry at capacity %d: %w",
			e.registry.Capacity(), ErrCapacityExceeded)
	}

	var sum uint64
	for i, amount := range p.MilestoneAmounts {
		if amount == 0 {
			return 0, fmt.Errorf("escrow: create agreement: milestone %d amount is zero: %w", i+1, ErrInvalidInput)
		}
		if sum+amount < sum {
			return 0, fmt.Errorf("escrow: create agreement: milestone amounts overflow: %w", ErrInvalidInput)
		}
		sum += amount
	}
	if sum != p.TotalAmount {
		return 0, fmt.Errorf("escrow: create agreement: milestone sum %d does not match total %d: %w",
			sum, p.TotalAmount, ErrInvalidInput)
	}

	now := e.ticks.CurrentTick()
	a := &Agreement{
		Payer:       call.Caller,
		Beneficiary: p.Beneficiary,
		Oracle:      p.Oracle,
		TotalAmount: p.TotalAmount,
		State:       AgreementCreated,
		CreatedAt:   now,
		Title:       clampString(p.Title, maxTitleLen),
		Metadata:    clampString(p.Metadata, maxMetadataLen),
		Milestones:  make([]Milestone, count),
	}
	for i := range a.Milestones {
		m := &a.Milestones[i]
		m.Ordinal = i + 1
		m.Amount = p.MilestoneAmounts[i]
		m.State = MilestonePending
		if len(p.Descriptions) != 0 {
			m.Description = clampString(p.Descriptions[i], maxDescriptionLen)
		}
	}

	id, err := e.registry.Insert(a)
	if err != nil {
		return 0, fmt.Errorf("escrow: create agreement: %w", err)
	}

	amounts := make([]string, count)
	descriptions := make([]string, count)
	for i := range a.Milestones {
		amounts[i] = amountString(a.Milestones[i].Amount)
		descriptions[i] = a.Milestones[i].Description
	}
	e.emit(Event{
		Type:        EventAgreementCreated,
		AgreementID: id,
		Seq:         a.nextEventSeq(),
		Tick:        now,
		Payload: map[string]any{
			"payer":             a.Payer.String(),
			"beneficiary":       a.Beneficiary.String(),
			"oracle":            a.Oracle.String(),
			"total_amount":      amountString(a.TotalAmount),
			"milestone_amounts": amounts,
			"descriptions":      descriptions,
			"title":             a.Title,
			"metadata":          a.Metadata,
		},
	})

	return id, nil
}
