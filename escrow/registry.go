package escrow

import "fmt"

// Registry is the bounded append-only store of agreements. Identifiers are
// allocated as (protocol prefix << 32) | counter with a strictly increasing
// counter starting at 1, so no identifier is ever reused, even once its
// agreement reaches a terminal state.
//
// A Registry is not safe for concurrent use on its own; the Engine serializes
// every access under its lock.
type Registry struct {
	agreements map[AgreementID]*Agreement
	counter    uint32
	capacity   int
}

// NewRegistry builds an empty registry bounded at capacity agreements.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultMaxAgreements
	}
	return &Registry{
		agreements: make(map[AgreementID]*Agreement),
		capacity:   capacity,
	}
}

// Insert allocates the next identifier, stamps it onto the agreement and
// stores the record. It fails with ErrCapacityExceeded at the bound.
func (r *Registry) Insert(a *Agreement) (AgreementID, error) {
	if len(r.agreements) >= r.capacity {
		return 0, fmt.Errorf("escrow: registry at capacity %d: %w", r.capacity, ErrCapacityExceeded)
	}
	r.counter++
	id := AgreementID(agreementIDPrefix<<32 | uint64(r.counter))
	a.ID = id
	r.agreements[id] = a
	return id, nil
}

// Get looks up an agreement by identifier. Absence is reported through the
// second return value, not an error.
func (r *Registry) Get(id AgreementID) (*Agreement, bool) {
	a, ok := r.agreements[id]
	return a, ok
}

// Mutate runs fn with exclusive access to the identified agreement for the
// duration of one transition.
func (r *Registry) Mutate(id AgreementID, fn func(*Agreement) error) error {
	a, ok := r.agreements[id]
	if !ok {
		return fmt.Errorf("escrow: agreement %d: %w", id, ErrNotFound)
	}
	return fn(a)
}

// Len returns the number of agreements ever created.
func (r *Registry) Len() int {
	return len(r.agreements)
}

// Capacity returns the cardinality bound.
func (r *Registry) Capacity() int {
	return r.capacity
}

// restore places an already-identified agreement back into the registry,
// advancing the counter past its identifier. Used by replay.
func (r *Registry) restore(a *Agreement) error {
	if len(r.agreements) >= r.capacity {
		return fmt.Errorf("escrow: registry at capacity %d: %w", r.capacity, ErrCapacityExceeded)
	}
	if _, exists := r.agreements[a.ID]; exists {
		return fmt.Errorf("escrow: agreement %d already present: %w", a.ID, ErrInvalidInput)
	}
	seq := uint32(uint64(a.ID) & 0xFFFFFFFF)
	if uint64(a.ID)>>32 != agreementIDPrefix || seq == 0 {
		return fmt.Errorf("escrow: agreement id %d outside identifier space: %w", a.ID, ErrInvalidInput)
	}
	if seq > r.counter {
		r.counter = seq
	}
	r.agreements[a.ID] = a
	return nil
}
