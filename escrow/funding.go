package escrow

import (
	"context"
	"fmt"
)

// Deposit funds an agreement with the value attached to the call. Only the
// payer may fund, only from state CREATED, and the attached value must equal
// the agreement total exactly; partial and excess deposits are both rejected
// so the caller's funds never end up in an unaccounted state.
func (e *Engine) Deposit(ctx context.Context, call Call, id AgreementID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("escrow: deposit: agreement %d: %w", id, ErrNotFound)
	}
	if call.Caller != a.Payer {
		return fmt.Errorf("escrow: deposit: caller is not the payer: %w", ErrUnauthorized)
	}
	if a.State != AgreementCreated {
		return fmt.Errorf("escrow: deposit: agreement %d in state %s: %w", id, a.State, ErrInvalidState)
	}
	if call.Value != a.TotalAmount {
		return fmt.Errorf("escrow: deposit: attached value %d does not match total %d: %w",
			call.Value, a.TotalAmount, ErrInvalidInput)
	}

	now := e.ticks.CurrentTick()
	a.LockedAmount = a.TotalAmount
	a.State = AgreementFunded
	a.FundedAt = now
	a.TimeoutAt = now + RefundTimeoutTicks
	e.totalValueLocked += a.TotalAmount

	e.emit(Event{
		Type:        EventAgreementFunded,
		AgreementID: id,
		Seq:         a.nextEventSeq(),
		Tick:        now,
		Payload: map[string]any{
			"amount":     amountString(a.TotalAmount),
			"timeout_at": amountString(a.TimeoutAt),
		},
	})
	return nil
}
