// Package escrow implements a milestone-based escrow vault: a payer locks
// funds against a beneficiary, an oracle authority confirms discrete
// milestones, anyone may release a confirmed milestone (minus a protocol
// fee), and unreleased funds become refundable to the payer after a timeout.
//
// The package is a deterministic, process-local core. It depends on its host
// only through narrow ports: a logical clock (TickSource), a value-transfer
// primitive (Transferor), and an optional event sink (Recorder). Caller
// identity and attached deposit value arrive per operation in a Call.
//
// Every mutating operation is atomic with respect to the agreement store and
// the global aggregates: the engine serializes calls under one lock, resolves
// the boundary transfer before committing, and front-loads all validation so
// failures are side-effect free.
package escrow

import (
	"fmt"
	"sync"
)

// Call carries the host-resolved context of one operation: who invoked it and
// the value attached to it. Value is meaningful only for Deposit.
type Call struct {
	Caller Address
	Value  uint64
}

// Params configures a new Engine.
type Params struct {
	// Ticks supplies the logical clock. Required.
	Ticks TickSource
	// Transfers moves value out of the vault. Required.
	Transfers Transferor
	// FeeRecipient receives the protocol fee cut of every release. Required
	// and must be a valid address.
	FeeRecipient Address
	// Owner holds the administrative capability; only the owner may change
	// the fee recipient. Required and must be a valid address.
	Owner Address
	// MaxAgreements overrides the registry bound. Zero means
	// DefaultMaxAgreements.
	MaxAgreements int
}

// Engine owns the registry and the vault ledger aggregates and applies every
// state transition of the protocol.
type Engine struct {
	mu       sync.RWMutex
	registry *Registry

	totalValueLocked    uint64
	totalValueReleased  uint64
	protocolFeesAccrued uint64

	feeRecipient Address
	owner        Address
	adminSeq     uint64

	ticks     TickSource
	transfers Transferor
	recorder  Recorder
}

// NewEngine constructs an engine with zeroed aggregates and an empty
// registry. It is the one-time initialization point; build one engine per
// deployment and share it.
func NewEngine(p Params) (*Engine, error) {
	if p.Ticks == nil {
		return nil, fmt.Errorf("escrow: new engine: tick source required")
	}
	if p.Transfers == nil {
		return nil, fmt.Errorf("escrow: new engine: transferor required")
	}
	if !p.FeeRecipient.IsValid() {
		return nil, fmt.Errorf("escrow: new engine: fee recipient address invalid")
	}
	if !p.Owner.IsValid() {
		return nil, fmt.Errorf("escrow: new engine: owner address invalid")
	}

	return &Engine{
		registry:     NewRegistry(p.MaxAgreements),
		feeRecipient: p.FeeRecipient,
		owner:        p.Owner,
		ticks:        p.Ticks,
		transfers:    p.Transfers,
	}, nil
}

// WithRecorder attaches an event sink. Events are emitted after a transition
// commits, while the engine still holds its write lock.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

// SetFeeRecipient redirects future protocol fees. Only the owner capability
// may change it.
func (e *Engine) SetFeeRecipient(call Call, recipient Address) error {
	if !recipient.IsValid() {
		return fmt.Errorf("escrow: set fee recipient: address invalid: %w", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if call.Caller != e.owner {
		return fmt.Errorf("escrow: set fee recipient: caller is not the owner: %w", ErrUnauthorized)
	}

	previous := e.feeRecipient
	e.feeRecipient = recipient
	e.emit(Event{
		Type: EventFeeRecipientChanged,
		Seq:  e.nextAdminSeq(),
		Tick: e.ticks.CurrentTick(),
		Payload: map[string]any{
			"previous": previous.String(),
			"next":     recipient.String(),
		},
	})
	return nil
}

// FeeRecipient returns the current protocol fee recipient.
func (e *Engine) FeeRecipient() Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.feeRecipient
}

// Owner returns the address holding the administrative capability.
func (e *Engine) Owner() Address {
	return e.owner
}

func (e *Engine) emit(ev Event) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ev)
}

func (e *Engine) nextAdminSeq() uint64 {
	e.adminSeq++
	return e.adminSeq
}
