package escrow

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
)

// driveWorkload records a mixed history: one agreement completed, one
// refunded after a partial release, and a fee recipient change in between.
func driveWorkload(t *testing.T, e *Engine, h *hostStub) (completed, refunded AgreementID) {
	t.Helper()
	ctx := context.Background()

	completed = createAgreement(t, e)
	fundAgreement(t, e, completed)
	refunded = createAgreement(t, e)
	fundAgreement(t, e, refunded)

	for ordinal := 1; ordinal <= 3; ordinal++ {
		h.tick++
		if err := e.VerifyMilestone(ctx, Call{Caller: oracleAddr}, completed, ordinal, EvidenceDigest{}); err != nil {
			t.Fatalf("verify %d: %v", ordinal, err)
		}
		h.tick++
		if _, err := e.ReleaseMilestone(ctx, Call{Caller: strangerAddr}, completed, ordinal); err != nil {
			t.Fatalf("release %d: %v", ordinal, err)
		}
	}

	if err := e.SetFeeRecipient(Call{Caller: ownerAddr}, mustAddr("TREASURY-TWO")); err != nil {
		t.Fatalf("set fee recipient: %v", err)
	}

	if err := e.VerifyMilestone(ctx, Call{Caller: oracleAddr}, refunded, 1, EvidenceDigest{}); err != nil {
		t.Fatalf("verify refund-bound: %v", err)
	}
	if _, err := e.ReleaseMilestone(ctx, Call{Caller: strangerAddr}, refunded, 1); err != nil {
		t.Fatalf("release refund-bound: %v", err)
	}
	h.tick += RefundTimeoutTicks
	if _, err := e.Refund(ctx, Call{Caller: payerAddr}, refunded); err != nil {
		t.Fatalf("refund: %v", err)
	}
	return completed, refunded
}

func TestRebuildReproducesState(t *testing.T) {
	h := &hostStub{tick: 10}
	var events []Event
	e := newTestEngine(t, h).WithRecorder(RecorderFunc(func(ev Event) {
		events = append(events, ev)
	}))

	completedID, refundedID := driveWorkload(t, e, h)

	rebuilt, err := Rebuild(events, Params{
		Ticks:        h,
		Transfers:    h,
		FeeRecipient: feeSinkAddr,
		Owner:        ownerAddr,
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for _, id := range []AgreementID{completedID, refundedID} {
		want, ok := e.Agreement(id)
		if !ok {
			t.Fatalf("agreement %d missing from source", id)
		}
		got, ok := rebuilt.Agreement(id)
		if !ok {
			t.Fatalf("agreement %d missing from rebuild", id)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("agreement %d diverged\n got %+v\nwant %+v", id, got, want)
		}
	}
	if got, want := rebuilt.Stats(), e.Stats(); got != want {
		t.Errorf("stats diverged: got %+v, want %+v", got, want)
	}
	if got := rebuilt.FeeRecipient(); got != mustAddr("TREASURY-TWO") {
		t.Errorf("fee recipient = %s, want TREASURY-TWO", got)
	}
}

// Journals persist payloads as JSON, which erases Go-level number types. A
// history that has been through a marshal/unmarshal cycle must rebuild to
// the same state as the in-memory one.
func TestRebuildSurvivesJSONRoundTrip(t *testing.T) {
	h := &hostStub{tick: 10}
	var events []Event
	e := newTestEngine(t, h).WithRecorder(RecorderFunc(func(ev Event) {
		events = append(events, ev)
	}))
	driveWorkload(t, e, h)

	decoded := make([]Event, len(events))
	for i, ev := range events {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		decoded[i] = Event{
			Type:        ev.Type,
			AgreementID: ev.AgreementID,
			Seq:         ev.Seq,
			Tick:        ev.Tick,
			Payload:     payload,
		}
	}

	rebuilt, err := Rebuild(decoded, Params{
		Ticks:        h,
		Transfers:    h,
		FeeRecipient: feeSinkAddr,
		Owner:        ownerAddr,
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got, want := rebuilt.Stats(), e.Stats(); got != want {
		t.Errorf("stats diverged: got %+v, want %+v", got, want)
	}
}

func TestRebuildDetectsGaps(t *testing.T) {
	h := &hostStub{tick: 10}
	var events []Event
	e := newTestEngine(t, h).WithRecorder(RecorderFunc(func(ev Event) {
		events = append(events, ev)
	}))
	id := createAgreement(t, e)
	fundAgreement(t, e, id)
	if err := e.VerifyMilestone(context.Background(), Call{Caller: oracleAddr}, id, 1, EvidenceDigest{}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Drop the funding event.
	gapped := []Event{events[0], events[2]}
	if _, err := Rebuild(gapped, Params{
		Ticks:        h,
		Transfers:    h,
		FeeRecipient: feeSinkAddr,
		Owner:        ownerAddr,
	}); err == nil {
		t.Fatal("expected gap detection")
	}
}

func TestEventSequencesPerAgreement(t *testing.T) {
	h := &hostStub{tick: 10}
	var events []Event
	e := newTestEngine(t, h).WithRecorder(RecorderFunc(func(ev Event) {
		events = append(events, ev)
	}))
	driveWorkload(t, e, h)

	last := map[AgreementID]uint64{}
	for _, ev := range events {
		if ev.Seq != last[ev.AgreementID]+1 {
			t.Errorf("agreement %d: seq %d after %d", ev.AgreementID, ev.Seq, last[ev.AgreementID])
		}
		last[ev.AgreementID] = ev.Seq
	}
	if len(last) != 3 {
		t.Errorf("sequence streams = %d, want 3 (two agreements plus admin)", len(last))
	}
}
