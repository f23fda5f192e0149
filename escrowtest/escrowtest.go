// Package escrowtest provides in-memory implementations of the escrow
// engine's host ports for tests and harnesses outside the escrow package.
// Everything here is safe for concurrent use.
package escrowtest

import (
	"context"
	"sync"

	"vaultflow/escrow"
)

// Host implements escrow.TickSource and escrow.Transferor with a manually
// driven clock and an in-memory settlement log.
type Host struct {
	mu       sync.Mutex
	tick     uint64
	payments []escrow.Payment
	failures []error
}

// NewHost returns a host starting at the given tick.
func NewHost(tick uint64) *Host {
	return &Host{tick: tick}
}

func (h *Host) CurrentTick() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tick
}

// Advance moves the clock forward by delta ticks and returns the new tick.
func (h *Host) Advance(delta uint64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tick += delta
	return h.tick
}

// SetTick jumps the clock to an absolute tick.
func (h *Host) SetTick(tick uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tick = tick
}

// Transfer records the payments, or consumes and returns the oldest queued
// failure instead.
func (h *Host) Transfer(ctx context.Context, payments ...escrow.Payment) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.failures) > 0 {
		err := h.failures[0]
		h.failures = h.failures[1:]
		return err
	}
	h.payments = append(h.payments, payments...)
	return nil
}

// FailNextTransfer queues an error; each queued error fails exactly one
// future Transfer call, oldest first.
func (h *Host) FailNextTransfer(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, err)
}

// Payments returns a copy of every settled payment in order.
func (h *Host) Payments() []escrow.Payment {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]escrow.Payment, len(h.payments))
	copy(out, h.payments)
	return out
}

// Paid sums all settled payments to one recipient.
func (h *Host) Paid(to escrow.Address) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total uint64
	for _, p := range h.payments {
		if p.To == to {
			total += p.Amount
		}
	}
	return total
}

// Recorder is an in-memory escrow.Recorder capturing every emitted event.
type Recorder struct {
	mu     sync.Mutex
	events []escrow.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(ev escrow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the captured events in emission order.
func (r *Recorder) Events() []escrow.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]escrow.Event, len(r.events))
	copy(out, r.events)
	return out
}

// MustAddr parses an address and panics on failure. For test fixtures.
func MustAddr(s string) escrow.Address {
	a, err := escrow.AddressFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}
