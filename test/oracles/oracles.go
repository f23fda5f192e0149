// Package oracles checks the vault's cross-cutting invariants over a
// consistent snapshot of engine state and the recorded event log. Every
// check is pure; the harness decides when snapshots are taken.
package oracles

import (
	"fmt"

	"vaultflow/escrow"
)

// Snapshot is one consistent observation of the world: protocol stats, the
// view of every known agreement and the full event log, all collected while
// mutations were quiesced.
type Snapshot struct {
	Stats      escrow.StatsView
	Agreements []escrow.AgreementView
	Events     []escrow.Event
}

type Oracle struct {
	Name  string
	Check func(Snapshot) string
}

func All() []Oracle {
	return []Oracle{
		{"O1_vault_conservation", checkVaultConservation},
		{"O2_locked_equation", checkLockedEquation},
		{"O3_split_conservation", checkSplitConservation},
		{"O4_state_machine", checkStateMachine},
		{"O5_event_seq_contiguous", checkEventSeqContiguous},
		{"O6_release_at_most_once", checkReleaseAtMostOnce},
		{"O7_fee_rule", checkFeeRule},
		{"O8_registry_count", checkRegistryCount},
		{"O9_refund_after_timeout", checkRefundAfterTimeout},
	}
}

// Run evaluates all oracles and returns the first failure as (name, detail),
// or two empty strings when every invariant holds.
func Run(snap Snapshot) (string, string) {
	for _, o := range All() {
		if detail := o.Check(snap); detail != "" {
			return o.Name, detail
		}
	}
	return "", ""
}

// The vault's aggregates must mirror the per-agreement books exactly.
func checkVaultConservation(snap Snapshot) string {
	var locked, released uint64
	for _, a := range snap.Agreements {
		locked += a.LockedAmount
		released += a.ReleasedAmount
	}
	if locked != snap.Stats.TotalValueLocked {
		return fmt.Sprintf("sum of locked amounts %d != tvl %d", locked, snap.Stats.TotalValueLocked)
	}
	if released != snap.Stats.TotalValueReleased {
		return fmt.Sprintf("sum of released amounts %d != total released %d", released, snap.Stats.TotalValueReleased)
	}
	return ""
}

// While an agreement holds funds, locked must equal total minus the full
// amount of every released milestone; in terminal and unfunded states it
// must be zero.
func checkLockedEquation(snap Snapshot) string {
	for _, a := range snap.Agreements {
		var released uint64
		for _, m := range a.Milestones {
			if m.State == escrow.MilestoneReleased {
				released += m.Amount
			}
		}
		switch a.State {
		case escrow.AgreementFunded, escrow.AgreementActive:
			if a.LockedAmount != a.TotalAmount-released {
				return fmt.Sprintf("agreement %d: locked %d, want %d-%d", a.ID, a.LockedAmount, a.TotalAmount, released)
			}
		default:
			if a.LockedAmount != 0 {
				return fmt.Sprintf("agreement %d: locked %d in state %s", a.ID, a.LockedAmount, a.State)
			}
		}
	}
	return ""
}

func checkSplitConservation(snap Snapshot) string {
	for _, a := range snap.Agreements {
		var sum uint64
		for _, m := range a.Milestones {
			sum += m.Amount
		}
		if sum != a.TotalAmount {
			return fmt.Sprintf("agreement %d: milestone sum %d != total %d", a.ID, sum, a.TotalAmount)
		}
	}
	return ""
}

func countMilestones(a escrow.AgreementView, state escrow.MilestoneState) int {
	n := 0
	for _, m := range a.Milestones {
		if m.State == state {
			n++
		}
	}
	return n
}

func checkStateMachine(snap Snapshot) string {
	for _, a := range snap.Agreements {
		pending := countMilestones(a, escrow.MilestonePending)
		released := countMilestones(a, escrow.MilestoneReleased)
		cancelled := countMilestones(a, escrow.MilestoneCancelled)
		total := len(a.Milestones)

		switch a.State {
		case escrow.AgreementCreated:
			if pending != total || a.FundedAt != 0 || a.ReleasedAmount != 0 {
				return fmt.Sprintf("agreement %d: CREATED with progress", a.ID)
			}
		case escrow.AgreementFunded:
			if pending != total {
				return fmt.Sprintf("agreement %d: FUNDED with %d touched milestones", a.ID, total-pending)
			}
			if a.TimeoutAt == 0 {
				return fmt.Sprintf("agreement %d: FUNDED without refund deadline", a.ID)
			}
		case escrow.AgreementActive:
			if pending == total {
				return fmt.Sprintf("agreement %d: ACTIVE with no milestone progress", a.ID)
			}
			if cancelled != 0 {
				return fmt.Sprintf("agreement %d: ACTIVE with cancelled milestones", a.ID)
			}
		case escrow.AgreementCompleted:
			if released != total {
				return fmt.Sprintf("agreement %d: COMPLETED with %d of %d released", a.ID, released, total)
			}
		case escrow.AgreementRefunded:
			if released+cancelled != total {
				return fmt.Sprintf("agreement %d: REFUNDED with live milestones", a.ID)
			}
		default:
			return fmt.Sprintf("agreement %d: unreachable state %s", a.ID, a.State)
		}

		for _, m := range a.Milestones {
			if (m.State == escrow.MilestoneVerified || m.State == escrow.MilestoneReleased) && m.VerifiedAt == 0 {
				return fmt.Sprintf("agreement %d milestone %d: %s without verification tick", a.ID, m.Ordinal, m.State)
			}
			if m.State == escrow.MilestoneReleased && m.ReleasedAt < m.VerifiedAt {
				return fmt.Sprintf("agreement %d milestone %d: released before verified", a.ID, m.Ordinal)
			}
		}
	}
	return ""
}

// Per agreement, seq must run 1, 2, 3, ... in record order, and the stream
// of a real agreement must open with its creation.
func checkEventSeqContiguous(snap Snapshot) string {
	last := make(map[escrow.AgreementID]uint64)
	for _, ev := range snap.Events {
		if ev.Seq != last[ev.AgreementID]+1 {
			return fmt.Sprintf("agreement %d: seq %d after %d", ev.AgreementID, ev.Seq, last[ev.AgreementID])
		}
		if ev.AgreementID != 0 && ev.Seq == 1 && ev.Type != escrow.EventAgreementCreated {
			return fmt.Sprintf("agreement %d: stream opens with %s", ev.AgreementID, ev.Type)
		}
		last[ev.AgreementID] = ev.Seq
	}
	return ""
}

func eventOrdinal(ev escrow.Event) (int, bool) {
	switch v := ev.Payload["ordinal"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func checkReleaseAtMostOnce(snap Snapshot) string {
	type slot struct {
		id      escrow.AgreementID
		ordinal int
	}
	seen := make(map[slot]bool)
	for _, ev := range snap.Events {
		if ev.Type != escrow.EventMilestoneReleased {
			continue
		}
		ordinal, ok := eventOrdinal(ev)
		if !ok {
			return fmt.Sprintf("agreement %d: release event without ordinal", ev.AgreementID)
		}
		key := slot{ev.AgreementID, ordinal}
		if seen[key] {
			return fmt.Sprintf("agreement %d milestone %d: released twice", ev.AgreementID, ordinal)
		}
		seen[key] = true
	}
	return ""
}

func eventAmount(ev escrow.Event, key string) (uint64, bool) {
	s, ok := ev.Payload[key].(string)
	if !ok {
		return 0, false
	}
	v, err := escrow.ParseAmount(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Every payout splits exactly into fee = amount/FeeDivisor and remainder,
// and the running totals must match the stats counters.
func checkFeeRule(snap Snapshot) string {
	var fees, beneficiaries uint64
	for _, ev := range snap.Events {
		if ev.Type != escrow.EventMilestoneReleased {
			continue
		}
		amount, ok1 := eventAmount(ev, "amount")
		fee, ok2 := eventAmount(ev, "fee")
		beneficiary, ok3 := eventAmount(ev, "beneficiary_amount")
		if !ok1 || !ok2 || !ok3 {
			return fmt.Sprintf("agreement %d: release event with malformed amounts", ev.AgreementID)
		}
		if fee != amount/escrow.FeeDivisor {
			return fmt.Sprintf("agreement %d: fee %d for amount %d", ev.AgreementID, fee, amount)
		}
		if fee+beneficiary != amount {
			return fmt.Sprintf("agreement %d: split %d+%d != %d", ev.AgreementID, fee, beneficiary, amount)
		}
		fees += fee
		beneficiaries += beneficiary
	}
	if fees != snap.Stats.ProtocolFeesAccrued {
		return fmt.Sprintf("event fees %d != accrued fees %d", fees, snap.Stats.ProtocolFeesAccrued)
	}
	if beneficiaries != snap.Stats.TotalValueReleased {
		return fmt.Sprintf("event payouts %d != total released %d", beneficiaries, snap.Stats.TotalValueReleased)
	}
	return ""
}

func checkRegistryCount(snap Snapshot) string {
	if snap.Stats.AgreementCount != len(snap.Agreements) {
		return fmt.Sprintf("stats count %d != observed agreements %d", snap.Stats.AgreementCount, len(snap.Agreements))
	}
	return ""
}

// A refund may only land at or after the deadline the funding event fixed.
func checkRefundAfterTimeout(snap Snapshot) string {
	deadlines := make(map[escrow.AgreementID]uint64)
	for _, ev := range snap.Events {
		switch ev.Type {
		case escrow.EventAgreementFunded:
			if deadline, ok := eventAmount(ev, "timeout_at"); ok {
				deadlines[ev.AgreementID] = deadline
			}
		case escrow.EventAgreementRefunded:
			deadline, ok := deadlines[ev.AgreementID]
			if !ok {
				return fmt.Sprintf("agreement %d: refunded without funding event", ev.AgreementID)
			}
			if ev.Tick < deadline {
				return fmt.Sprintf("agreement %d: refunded at tick %d before deadline %d", ev.AgreementID, ev.Tick, deadline)
			}
		}
	}
	return ""
}
