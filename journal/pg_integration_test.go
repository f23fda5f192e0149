package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vaultflow/escrow"
)

// TestPGStore_Integration connects to a real PostgreSQL via DATABASE_URL and
// verifies append idempotency and load ordering against the live table.
func TestPGStore_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	store := NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	// Unique agreement id per run so the shared table stays reusable.
	agreementID := escrow.AgreementID(time.Now().UnixNano())
	t.Cleanup(func() {
		pool.Exec(context.Background(),
			`DELETE FROM escrow_events WHERE agreement_id = $1`, int64(agreementID))
	})

	batch := []escrow.Event{
		{
			Type:        escrow.EventAgreementCreated,
			AgreementID: agreementID,
			Seq:         1,
			Tick:        100,
			Payload:     map[string]any{"total_amount": "1000000", "title": "dock rebuild"},
		},
		{
			Type:        escrow.EventAgreementFunded,
			AgreementID: agreementID,
			Seq:         2,
			Tick:        170,
			Payload:     map[string]any{"amount": "1000000"},
		},
	}
	if err := store.Append(ctx, batch); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, batch); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	all, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var mine []escrow.Event
	for _, ev := range all {
		if ev.AgreementID == agreementID {
			mine = append(mine, ev)
		}
	}
	if len(mine) != 2 {
		t.Fatalf("loaded = %d events, want 2", len(mine))
	}
	if mine[0].Seq != 1 || mine[1].Seq != 2 {
		t.Errorf("order = %d then %d, want 1 then 2", mine[0].Seq, mine[1].Seq)
	}
	if mine[0].Payload["title"] != "dock rebuild" {
		t.Errorf("payload title = %v", mine[0].Payload["title"])
	}
	if mine[1].Tick != 170 {
		t.Errorf("tick = %d, want 170", mine[1].Tick)
	}
}
