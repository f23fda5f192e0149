// Package actors holds the concurrent workload behind the stress suite.
// Each actor loops one vault operation against a shared engine until told to
// stop, tolerating the failures contention is expected to produce and
// reporting everything else.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"vaultflow/escrow"
)

// World is the shared state every actor operates on. Gate serializes
// stop-the-world snapshots against in-flight mutations: actors hold the read
// side around every engine mutation, the harness takes the write side to
// collect a consistent snapshot.
type World struct {
	Engine *escrow.Engine

	Payer       escrow.Address
	Beneficiary escrow.Address
	Oracle      escrow.Address

	// ToleratedFault, when set, marks transfer failures injected by the
	// chaos layer as expected outcomes rather than actor errors.
	ToleratedFault error

	Gate sync.RWMutex

	mu  sync.Mutex
	ids []escrow.AgreementID
}

func (w *World) remember(id escrow.AgreementID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids = append(w.ids, id)
}

// AgreementIDs returns every agreement the creators have opened so far.
func (w *World) AgreementIDs() []escrow.AgreementID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]escrow.AgreementID(nil), w.ids...)
}

func (w *World) randomID(r *rand.Rand) (escrow.AgreementID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.ids) == 0 {
		return 0, false
	}
	return w.ids[r.Intn(len(w.ids))], true
}

func (w *World) tolerates(err error) bool {
	return w.ToleratedFault != nil && errors.Is(err, w.ToleratedFault)
}

func expected(err error, allowed ...error) bool {
	for _, a := range allowed {
		if errors.Is(err, a) {
			return true
		}
	}
	return false
}

func pause(r *rand.Rand, base, jitter int) {
	time.Sleep(time.Duration(base+r.Intn(jitter)) * time.Millisecond)
}

// Creator opens agreements with random milestone splits and usually funds
// them right away; one in five stays unfunded so the other actors keep
// hitting the pre-deposit states. Capacity rejections are expected once the
// registry fills.
func Creator(ctx context.Context, w *World, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		count := 1 + r.Intn(escrow.MaxMilestonesPerAgreement)
		amounts := make([]uint64, count)
		var total uint64
		for i := range amounts {
			amounts[i] = uint64(1 + r.Intn(1_000_000))
			total += amounts[i]
		}
		fund := r.Intn(5) != 0

		w.Gate.RLock()
		id, err := w.Engine.CreateAgreement(ctx, escrow.Call{Caller: w.Payer}, escrow.CreateParams{
			Beneficiary:      w.Beneficiary,
			Oracle:           w.Oracle,
			TotalAmount:      total,
			MilestoneAmounts: amounts,
			Title:            fmt.Sprintf("stress run %d", r.Int63()),
		})
		if err == nil && fund {
			err = w.Engine.Deposit(ctx, escrow.Call{Caller: w.Payer, Value: total}, id)
		}
		if err == nil {
			w.remember(id)
		}
		w.Gate.RUnlock()

		if err != nil && !expected(err, escrow.ErrCapacityExceeded) {
			return fmt.Errorf("creator: %w", err)
		}
		pause(r, 5, 15)
	}
}

// Verifier attests random milestones as the oracle. Ordinals are drawn past
// the real milestone counts on purpose, so the out-of-range path stays under
// fire too.
func Verifier(ctx context.Context, w *World, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, ok := w.randomID(r)
		if !ok {
			pause(r, 10, 20)
			continue
		}
		var digest escrow.EvidenceDigest
		r.Read(digest[:])
		ordinal := 1 + r.Intn(escrow.MaxMilestonesPerAgreement)

		w.Gate.RLock()
		err := w.Engine.VerifyMilestone(ctx, escrow.Call{Caller: w.Oracle}, id, ordinal, digest)
		w.Gate.RUnlock()

		if err != nil && !expected(err, escrow.ErrInvalidState, escrow.ErrNotFound) {
			return fmt.Errorf("verifier: %w", err)
		}
		pause(r, 5, 15)
	}
}

// Releaser races payouts of random milestones. Anyone may release, so
// duplicate attempts on the same milestone are part of the workload; only
// the first may succeed.
func Releaser(ctx context.Context, w *World, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, ok := w.randomID(r)
		if !ok {
			pause(r, 10, 20)
			continue
		}
		ordinal := 1 + r.Intn(escrow.MaxMilestonesPerAgreement)

		w.Gate.RLock()
		_, err := w.Engine.ReleaseMilestone(ctx, escrow.Call{Caller: w.Beneficiary}, id, ordinal)
		w.Gate.RUnlock()

		switch {
		case err == nil:
		case expected(err, escrow.ErrInvalidState, escrow.ErrNotFound):
		case w.tolerates(err):
		default:
			return fmt.Errorf("releaser: %w", err)
		}
		pause(r, 5, 15)
	}
}

// Refunder reclaims agreements as the payer. Before the tick warper jumps a
// refund window open every attempt bounces off the timeout gate.
func Refunder(ctx context.Context, w *World, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		id, ok := w.randomID(r)
		if !ok {
			pause(r, 10, 20)
			continue
		}

		w.Gate.RLock()
		_, err := w.Engine.Refund(ctx, escrow.Call{Caller: w.Payer}, id)
		w.Gate.RUnlock()

		switch {
		case err == nil:
		case expected(err, escrow.ErrTimeoutNotReached, escrow.ErrInvalidState, escrow.ErrNotFound):
		case w.tolerates(err):
		default:
			return fmt.Errorf("refunder: %w", err)
		}
		pause(r, 20, 40)
	}
}

// Reader storms the query surface. Reads never block on the snapshot gate;
// the engine's own lock is the only synchronization they exercise.
func Reader(ctx context.Context, w *World, seed int64, stop <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if id, ok := w.randomID(r); ok {
			view, ok := w.Engine.Agreement(id)
			if !ok {
				return fmt.Errorf("reader: known agreement %d vanished", id)
			}
			if len(view.Milestones) > 0 {
				ordinal := 1 + r.Intn(len(view.Milestones))
				if _, ok := w.Engine.Milestone(id, ordinal); !ok {
					return fmt.Errorf("reader: milestone %d/%d vanished", id, ordinal)
				}
			}
		}
		w.Engine.Stats()
		pause(r, 1, 5)
	}
}
