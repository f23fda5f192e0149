package escrow

// MilestoneView is a point-in-time snapshot of one milestone.
type MilestoneView struct {
	Ordinal     int
	Amount      uint64
	State       MilestoneState
	VerifiedAt  uint64
	ReleasedAt  uint64
	Description string
	Evidence    EvidenceDigest
}

// AgreementView is a point-in-time snapshot of one agreement, detached from
// engine state: mutating a view has no effect on the vault.
type AgreementView struct {
	ID             AgreementID
	Payer          Address
	Beneficiary    Address
	Oracle         Address
	TotalAmount    uint64
	LockedAmount   uint64
	ReleasedAmount uint64
	State          AgreementState
	CreatedAt      uint64
	FundedAt       uint64
	TimeoutAt      uint64
	Title          string
	Metadata       string
	Milestones     []MilestoneView
}

// StatsView aggregates protocol-wide accounting.
type StatsView struct {
	TotalValueLocked    uint64
	TotalValueReleased  uint64
	ProtocolFeesAccrued uint64
	AgreementCount      int
}

// Agreement returns a snapshot of the agreement, or false if no agreement
// has that identifier.
func (e *Engine) Agreement(id AgreementID) (AgreementView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.registry.Get(id)
	if !ok {
		return AgreementView{}, false
	}
	return snapshotAgreement(a), true
}

// Milestone returns a snapshot of a single milestone, or false if the
// agreement does not exist or the ordinal is out of range.
func (e *Engine) Milestone(id AgreementID, ordinal int) (MilestoneView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.registry.Get(id)
	if !ok {
		return MilestoneView{}, false
	}
	m, ok := a.milestone(ordinal)
	if !ok {
		return MilestoneView{}, false
	}
	return snapshotMilestone(m), true
}

// Stats returns protocol-wide totals. AgreementCount is the number of
// agreements held in the registry regardless of state.
func (e *Engine) Stats() StatsView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return StatsView{
		TotalValueLocked:    e.totalValueLocked,
		TotalValueReleased:  e.totalValueReleased,
		ProtocolFeesAccrued: e.protocolFeesAccrued,
		AgreementCount:      e.registry.Len(),
	}
}

func snapshotAgreement(a *Agreement) AgreementView {
	v := AgreementView{
		ID:             a.ID,
		Payer:          a.Payer,
		Beneficiary:    a.Beneficiary,
		Oracle:         a.Oracle,
		TotalAmount:    a.TotalAmount,
		LockedAmount:   a.LockedAmount,
		ReleasedAmount: a.ReleasedAmount,
		State:          a.State,
		CreatedAt:      a.CreatedAt,
		FundedAt:       a.FundedAt,
		TimeoutAt:      a.TimeoutAt,
		Title:          a.Title,
		Metadata:       a.Metadata,
		Milestones:     make([]MilestoneView, len(a.Milestones)),
	}
	for i := range a.Milestones {
		v.Milestones[i] = snapshotMilestone(&a.Milestones[i])
	}
	return v
}

func snapshotMilestone(m *Milestone) MilestoneView {
	return MilestoneView{
		Ordinal:     m.Ordinal,
		Amount:      m.Amount,
		State:       m.State,
		VerifiedAt:  m.VerifiedAt,
		ReleasedAt:  m.ReleasedAt,
		Description: m.Description,
		Evidence:    m.Evidence,
	}
}
