package escrow

import (
	"fmt"
)

// Rebuild reconstructs an engine from its recorded event history. Events
// must arrive grouped per agreement in ascending Seq order; administrative
// events (agreement identifier 0) likewise. Replay applies state mutations
// only: no transfers are performed and nothing is re-emitted, so rebuilding
// from a journal is side-effect free no matter how often it runs.
func Rebuild(events []Event, p Params) (*Engine, error) {
	e, err := NewEngine(p)
	if err != nil {
		return nil, fmt.Errorf("escrow: rebuild: %w", err)
	}
	for _, ev := range events {
		if err := e.apply(ev); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) apply(ev Event) error {
	if ev.AgreementID == 0 {
		return e.applyAdmin(ev)
	}
	if ev.Type == EventAgreementCreated {
		return e.applyCreated(ev)
	}

	a, ok := e.registry.Get(ev.AgreementID)
	if !ok {
		return replayErr(ev, "agreement not in registry")
	}
	if ev.Seq != a.eventSeq+1 {
		return replayErr(ev, fmt.Sprintf("sequence gap after %d", a.eventSeq))
	}

	var err error
	switch ev.Type {
	case EventAgreementFunded:
		err = e.applyFunded(a, ev)
	case EventMilestoneVerified:
		err = e.applyVerified(a, ev)
	case EventMilestoneReleased:
		err = e.applyReleased(a, ev)
	case EventAgreementRefunded:
		err = e.applyRefunded(a, ev)
	default:
		return replayErr(ev, fmt.Sprintf("unknown event type %q", ev.Type))
	}
	if err != nil {
		return err
	}
	a.eventSeq = ev.Seq
	return nil
}

func (e *Engine) applyAdmin(ev Event) error {
	if ev.Type != EventFeeRecipientChanged {
		return replayErr(ev, fmt.Sprintf("unexpected administrative event type %q", ev.Type))
	}
	if ev.Seq != e.adminSeq+1 {
		return replayErr(ev, fmt.Sprintf("sequence gap after %d", e.adminSeq))
	}
	next, err := payloadString(ev, "next")
	if err != nil {
		return err
	}
	recipient, err := AddressFromString(next)
	if err != nil {
		return replayErr(ev, fmt.Sprintf("fee recipient: %v", err))
	}
	e.feeRecipient = recipient
	e.adminSeq = ev.Seq
	return nil
}

func (e *Engine) applyCreated(ev Event) error {
	if ev.Seq != 1 {
		return replayErr(ev, "creation event out of sequence")
	}
	payer, err := payloadAddress(ev, "payer")
	if err != nil {
		return err
	}
	beneficiary, err := payloadAddress(ev, "beneficiary")
	if err != nil {
		return err
	}
	oracle, err := payloadAddress(ev, "oracle")
	if err != nil {
		return err
	}
	total, err := payloadAmount(ev, "total_amount")
	if err != nil {
		return err
	}
	amounts, err := payloadStrings(ev, "milestone_amounts")
	if err != nil {
		return err
	}
	descriptions, err := payloadStrings(ev, "descriptions")
	if err != nil {
		return err
	}
	if len(amounts) == 0 || (len(descriptions) != 0 && len(descriptions) != len(amounts)) {
		return replayErr(ev, "milestone lists malformed")
	}
	title, _ := payloadString(ev, "title")
	metadata, _ := payloadString(ev, "metadata")

	a := &Agreement{
		ID:          ev.AgreementID,
		Payer:       payer,
		Beneficiary: beneficiary,
		Oracle:      oracle,
		TotalAmount: total,
		State:       AgreementCreated,
		CreatedAt:   ev.Tick,
		Title:       title,
		Metadata:    metadata,
		Milestones:  make([]Milestone, len(amounts)),
		eventSeq:    ev.Seq,
	}
	for i := range a.Milestones {
		amount, err := ParseAmount(amounts[i])
		if err != nil {
			return replayErr(ev, fmt.Sprintf("milestone %d amount: %v", i+1, err))
		}
		a.Milestones[i].Ordinal = i + 1
		a.Milestones[i].Amount = amount
		a.Milestones[i].State = MilestonePending
		if len(descriptions) != 0 {
			a.Milestones[i].Description = descriptions[i]
		}
	}
	if err := e.registry.restore(a); err != nil {
		return replayErr(ev, err.Error())
	}
	return nil
}

func (e *Engine) applyFunded(a *Agreement, ev Event) error {
	if a.State != AgreementCreated {
		return replayErr(ev, fmt.Sprintf("funding an agreement in state %s", a.State))
	}
	timeoutAt, err := payloadAmount(ev, "timeout_at")
	if err != nil {
		return err
	}
	a.LockedAmount = a.TotalAmount
	a.State = AgreementFunded
	a.FundedAt = ev.Tick
	a.TimeoutAt = timeoutAt
	e.totalValueLocked += a.TotalAmount
	return nil
}

func (e *Engine) applyVerified(a *Agreement, ev Event) error {
	ordinal, err := payloadInt(ev, "ordinal")
	if err != nil {
		return err
	}
	m, ok := a.milestone(ordinal)
	if !ok {
		return replayErr(ev, fmt.Sprintf("ordinal %d out of range", ordinal))
	}
	if m.State != MilestonePending {
		return replayErr(ev, fmt.Sprintf("verifying a milestone in state %s", m.State))
	}
	hex, _ := payloadString(ev, "evidence")
	if hex != "" {
		digest, err := EvidenceDigestFromHex(hex)
		if err != nil {
			return replayErr(ev, fmt.Sprintf("evidence: %v", err))
		}
		m.Evidence = digest
	}
	m.State = MilestoneVerified
	m.VerifiedAt = ev.Tick
	if a.State == AgreementFunded {
		a.State = AgreementActive
	}
	return nil
}

func (e *Engine) applyReleased(a *Agreement, ev Event) error {
	ordinal, err := payloadInt(ev, "ordinal")
	if err != nil {
		return err
	}
	m, ok := a.milestone(ordinal)
	if !ok {
		return replayErr(ev, fmt.Sprintf("ordinal %d out of range", ordinal))
	}
	if m.State != MilestoneVerified {
		return replayErr(ev, fmt.Sprintf("releasing a milestone in state %s", m.State))
	}
	fee, err := payloadAmount(ev, "fee")
	if err != nil {
		return err
	}
	beneficiaryAmount, err := payloadAmount(ev, "beneficiary_amount")
	if err != nil {
		return err
	}
	if fee+beneficiaryAmount != m.Amount {
		return replayErr(ev, "payout split does not match milestone amount")
	}
	m.State = MilestoneReleased
	m.ReleasedAt = ev.Tick
	a.LockedAmount -= m.Amount
	a.ReleasedAmount += beneficiaryAmount
	e.totalValueLocked -= m.Amount
	e.totalValueReleased += beneficiaryAmount
	e.protocolFeesAccrued += fee
	if a.allMilestonesReleased() {
		a.State = AgreementCompleted
	}
	return nil
}

func (e *Engine) applyRefunded(a *Agreement, ev Event) error {
	if a.State == AgreementCompleted || a.State == AgreementRefunded {
		return replayErr(ev, fmt.Sprintf("refunding an agreement in state %s", a.State))
	}
	amount, err := payloadAmount(ev, "amount")
	if err != nil {
		return err
	}
	if amount != a.LockedAmount {
		return replayErr(ev, "refund amount does not match locked funds")
	}
	a.LockedAmount = 0
	a.State = AgreementRefunded
	for i := range a.Milestones {
		m := &a.Milestones[i]
		if m.State == MilestonePending || m.State == MilestoneVerified {
			m.State = MilestoneCancelled
		}
	}
	e.totalValueLocked -= amount
	return nil
}

func replayErr(ev Event, detail string) error {
	return fmt.Errorf("escrow: rebuild: event %d/%d %s: %s", ev.AgreementID, ev.Seq, ev.Type, detail)
}

// Payload values round-trip through JSON when the journal persists them, so
// numbers may come back as float64 and slices as []any. The extractors below
// accept both the in-memory and the decoded shapes.

func payloadString(ev Event, key string) (string, error) {
	v, ok := ev.Payload[key]
	if !ok {
		return "", replayErr(ev, fmt.Sprintf("payload key %q missing", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", replayErr(ev, fmt.Sprintf("payload key %q is not a string", key))
	}
	return s, nil
}

func payloadAddress(ev Event, key string) (Address, error) {
	s, err := payloadString(ev, key)
	if err != nil {
		return Address{}, err
	}
	addr, err := AddressFromString(s)
	if err != nil {
		return Address{}, replayErr(ev, fmt.Sprintf("payload key %q: %v", key, err))
	}
	return addr, nil
}

func payloadAmount(ev Event, key string) (uint64, error) {
	s, err := payloadString(ev, key)
	if err != nil {
		return 0, err
	}
	amount, err := ParseAmount(s)
	if err != nil {
		return 0, replayErr(ev, fmt.Sprintf("payload key %q: %v", key, err))
	}
	return amount, nil
}

func payloadInt(ev Event, key string) (int, error) {
	v, ok := ev.Payload[key]
	if !ok {
		return 0, replayErr(ev, fmt.Sprintf("payload key %q missing", key))
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, replayErr(ev, fmt.Sprintf("payload key %q is not a number", key))
	}
}

func payloadStrings(ev Event, key string) ([]string, error) {
	v, ok := ev.Payload[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, replayErr(ev, fmt.Sprintf("payload key %q element %d is not a string", key, i))
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, replayErr(ev, fmt.Sprintf("payload key %q is not a list", key))
	}
}
