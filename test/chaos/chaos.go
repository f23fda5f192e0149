// Package chaos injects the two failure modes the vault must absorb: time
// jumping forward across refund deadlines and the settlement host refusing a
// transfer.
package chaos

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"vaultflow/escrow"
	"vaultflow/escrowtest"
)

// ErrInjected marks transfer failures queued by the Flaker so actors can
// tell them apart from real settlement bugs.
var ErrInjected = errors.New("chaos: injected transfer failure")

// TickWarper advances the logical clock in uneven bursts. Roughly a quarter
// of the jumps clear a full refund window, throwing open every funded
// agreement's refund gate at once.
func TickWarper(ctx context.Context, host *escrowtest.Host, seed int64, stop <-chan struct{}) {
	r := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if r.Intn(4) == 0 {
				host.Advance(escrow.RefundTimeoutTicks + uint64(r.Intn(10_000)))
			} else {
				host.Advance(uint64(1 + r.Intn(500)))
			}
		}
	}
}

// Flaker queues transient transfer failures, so releases and refunds keep
// hitting the all-or-nothing settlement path mid-run.
func Flaker(ctx context.Context, host *escrowtest.Host, seed int64, stop <-chan struct{}) {
	r := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if r.Intn(3) == 0 {
				host.FailNextTransfer(ErrInjected)
			}
		}
	}
}
