package escrow

import "context"

// TickSource reports the current protocol tick. The engine reads it at most
// once per operation, so implementations may be as cheap or as slow as they
// like, but they must be monotonic for timeout handling to make sense.
type TickSource interface {
	CurrentTick() uint64
}

// TickFunc adapts a plain function to a TickSource.
type TickFunc func() uint64

func (f TickFunc) CurrentTick() uint64 { return f() }

// Payment is one outbound leg of a settlement: funds leaving the vault for
// a single recipient.
type Payment struct {
	To     Address
	Amount uint64
}

// Transferor moves funds out of the vault. All payments passed to a single
// Transfer call must be applied atomically: either every leg settles or none
// does, and the engine only commits its own state after Transfer returns nil.
// Implementations must not call back into the Engine.
type Transferor interface {
	Transfer(ctx context.Context, payments ...Payment) error
}

// TransferFunc adapts a plain function to a Transferor.
type TransferFunc func(ctx context.Context, payments ...Payment) error

func (f TransferFunc) Transfer(ctx context.Context, payments ...Payment) error {
	return f(ctx, payments...)
}
