package test

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultflow/escrow"
	"vaultflow/escrowtest"
	"vaultflow/journal"
	"vaultflow/settle"
	"vaultflow/test/infra"
)

const (
	pgWorkers           = 4
	lifecyclesPerWorker = 15
)

// TestVaultPersistence drives randomized agreement lifecycles against the
// real Postgres journal and ledger, then rebuilds a second engine from the
// stored event stream and requires it to agree with the live one down to
// every agreement view, plus ledger balances matching engine accounting.
func TestVaultPersistence(t *testing.T) {
	if testing.Short() {
		t.Skip("persistence stress skipped in short mode")
	}
	seed := *flSeed

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("VAULT_STRESS_PG_DSN") != "":
		dsn = os.Getenv("VAULT_STRESS_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Skipf("no Postgres available: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ProvisionPool(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("provision pool: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	store := journal.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("journal schema: %v", err)
	}
	ledger := settle.NewPGLedger(pool)
	if err := ledger.EnsureSchema(ctx); err != nil {
		t.Fatalf("ledger schema: %v", err)
	}

	vault := escrowtest.MustAddr("PG-VAULT")
	beneficiary := escrowtest.MustAddr("PG-BENEFICIARY")
	oracle := escrowtest.MustAddr("PG-ORACLE")
	if err := ledger.Open(ctx, vault); err != nil {
		t.Fatalf("open vault account: %v", err)
	}

	host := escrowtest.NewHost(1)
	jour := journal.New(store, nil)
	params := escrow.Params{
		Ticks:        host,
		Transfers:    settle.NewVaultTransferor(ledger, vault),
		FeeRecipient: escrowtest.MustAddr("PG-FEES"),
		Owner:        escrowtest.MustAddr("PG-OWNER"),
	}
	engine, err := escrow.NewEngine(params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine = engine.WithRecorder(jour)

	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	var drain errgroup.Group
	drain.Go(func() error { return jour.Run(drainCtx) })

	var (
		mu  sync.Mutex
		ids []escrow.AgreementID
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < pgWorkers; w++ {
		w := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed + int64(w)*104729))
			payer := escrowtest.MustAddr(fmt.Sprintf("PG-PAYER-%d", w))
			if err := ledger.Open(gctx, payer); err != nil {
				return err
			}
			if err := ledger.Credit(gctx, payer, 1_000_000_000); err != nil {
				return err
			}
			for i := 0; i < lifecyclesPerWorker; i++ {
				id, err := runLifecycle(gctx, r, engine, ledger, host, vault, payer, beneficiary, oracle, i)
				if err != nil {
					return fmt.Errorf("worker %d lifecycle %d: %w", w, i, err)
				}
				mu.Lock()
				ids = append(ids, id)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("workers: %v (seed=%d)", err, seed)
	}

	stopDrain()
	if err := drain.Wait(); err != nil {
		t.Fatalf("journal shutdown: %v", err)
	}
	if n := jour.Pending(); n != 0 {
		t.Fatalf("journal still holds %d events after final drain", n)
	}

	events, err := jour.Load(ctx)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	rebuilt, err := escrow.Rebuild(events, params)
	if err != nil {
		t.Fatalf("rebuild: %v (seed=%d)", err, seed)
	}

	liveStats := engine.Stats()
	if got := rebuilt.Stats(); !reflect.DeepEqual(got, liveStats) {
		t.Errorf("rebuilt stats = %+v, want %+v", got, liveStats)
	}
	for _, id := range ids {
		live, ok := engine.Agreement(id)
		if !ok {
			t.Fatalf("live agreement %d has no view", id)
		}
		replayed, ok := rebuilt.Agreement(id)
		if !ok {
			t.Errorf("agreement %d missing after rebuild", id)
			continue
		}
		if !reflect.DeepEqual(replayed, live) {
			t.Errorf("agreement %d diverged after rebuild:\n  live   %+v\n  replay %+v", id, live, replayed)
		}
	}

	vaultBal, err := ledger.Balance(ctx, vault)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if vaultBal != liveStats.TotalValueLocked {
		t.Errorf("vault balance = %d, want locked total %d", vaultBal, liveStats.TotalValueLocked)
	}
	benBal, err := ledger.Balance(ctx, beneficiary)
	if err != nil {
		t.Fatalf("beneficiary balance: %v", err)
	}
	if benBal != liveStats.TotalValueReleased {
		t.Errorf("beneficiary balance = %d, want released total %d", benBal, liveStats.TotalValueReleased)
	}
	feeBal, err := ledger.Balance(ctx, params.FeeRecipient)
	if err != nil {
		t.Fatalf("fee balance: %v", err)
	}
	if feeBal != liveStats.ProtocolFeesAccrued {
		t.Errorf("fee balance = %d, want accrued fees %d", feeBal, liveStats.ProtocolFeesAccrued)
	}

	t.Logf("persisted %d events across %d agreements (seed=%d)", len(events), len(ids), seed)
}

// runLifecycle pushes one agreement through a randomized slice of the
// protocol: always created, usually funded, then completed, abandoned
// mid-flight, or refunded depending on the turn.
func runLifecycle(ctx context.Context, r *rand.Rand, engine *escrow.Engine, ledger settle.Ledger, host *escrowtest.Host, vault, payer, beneficiary, oracle escrow.Address, turn int) (escrow.AgreementID, error) {
	count := 1 + r.Intn(4)
	amounts := make([]uint64, count)
	var total uint64
	for i := range amounts {
		amounts[i] = uint64(1 + r.Intn(500_000))
		total += amounts[i]
	}

	id, err := engine.CreateAgreement(ctx, escrow.Call{Caller: payer}, escrow.CreateParams{
		Beneficiary:      beneficiary,
		Oracle:           oracle,
		TotalAmount:      total,
		MilestoneAmounts: amounts,
		Title:            fmt.Sprintf("load run %d", turn),
	})
	if err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}

	if turn%5 == 4 {
		return id, nil // never funded
	}

	// Fund the way the API server does: settle first, then tell the engine
	// the money is in the vault.
	if err := ledger.Move(ctx, payer, escrow.Payment{To: vault, Amount: total}); err != nil {
		return 0, fmt.Errorf("move deposit: %w", err)
	}
	if err := engine.Deposit(ctx, escrow.Call{Caller: payer, Value: total}, id); err != nil {
		return 0, fmt.Errorf("deposit: %w", err)
	}

	switch turn % 5 {
	case 0, 1:
		for ord := 1; ord <= count; ord++ {
			if err := verifyAndRelease(ctx, r, engine, id, ord, beneficiary, oracle); err != nil {
				return 0, err
			}
		}
	case 2:
		verified := r.Intn(count + 1)
		for ord := 1; ord <= verified; ord++ {
			var digest escrow.EvidenceDigest
			r.Read(digest[:])
			if err := engine.VerifyMilestone(ctx, escrow.Call{Caller: oracle}, id, ord, digest); err != nil {
				return 0, fmt.Errorf("verify %d: %w", ord, err)
			}
		}
	case 3:
		if count > 1 && r.Intn(2) == 0 {
			if err := verifyAndRelease(ctx, r, engine, id, 1, beneficiary, oracle); err != nil {
				return 0, err
			}
		}
		view, ok := engine.Agreement(id)
		if !ok {
			return 0, fmt.Errorf("agreement %d vanished", id)
		}
		if now := host.CurrentTick(); now < view.TimeoutAt {
			host.Advance(view.TimeoutAt - now)
		}
		if _, err := engine.Refund(ctx, escrow.Call{Caller: payer}, id); err != nil {
			return 0, fmt.Errorf("refund: %w", err)
		}
	}
	return id, nil
}

func verifyAndRelease(ctx context.Context, r *rand.Rand, engine *escrow.Engine, id escrow.AgreementID, ordinal int, beneficiary, oracle escrow.Address) error {
	var digest escrow.EvidenceDigest
	r.Read(digest[:])
	if err := engine.VerifyMilestone(ctx, escrow.Call{Caller: oracle}, id, ordinal, digest); err != nil {
		return fmt.Errorf("verify %d: %w", ordinal, err)
	}
	if _, err := engine.ReleaseMilestone(ctx, escrow.Call{Caller: beneficiary}, id, ordinal); err != nil {
		return fmt.Errorf("release %d: %w", ordinal, err)
	}
	return nil
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
