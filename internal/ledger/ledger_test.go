package ledger

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLedger() *Ledger {
	return New(NewMemoryStore())
}

func TestApplyDepositOnceAndOnlyOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	applied, err := l.ApplyDepositToBalances(ctx, "evt-1", "0xwallet", 9000, 1000)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !applied {
		t.Fatal("first application reported not applied")
	}

	b, err := l.Balances(ctx)
	if err != nil {
		t.Fatalf("balances failed: %v", err)
	}
	if b[AccountPelletReserve] != 1000 {
		t.Errorf("PelletReserve = %d, want 1000", b[AccountPelletReserve])
	}
	if b[AccountBankrollObserved] != 10000 {
		t.Errorf("BankrollObserved = %d, want 10000", b[AccountBankrollObserved])
	}

	applied, err = l.ApplyDepositToBalances(ctx, "evt-1", "0xwallet", 9000, 1000)
	if err != nil {
		t.Fatalf("re-apply errored: %v", err)
	}
	if applied {
		t.Error("second application of same event id reported applied")
	}

	b, _ = l.Balances(ctx)
	if b[AccountPelletReserve] != 1000 || b[AccountBankrollObserved] != 10000 {
		t.Errorf("balances moved on duplicate apply: %v", b)
	}
}

func TestConcurrentDepositAppliesOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.ApplyDepositToBalances(ctx, "evt-race", "0xwallet", 100, 50)
			if err != nil {
				t.Errorf("apply errored: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for ok := range results {
		if ok {
			applied++
		}
	}
	if applied != 1 {
		t.Errorf("event applied %d times, want exactly 1", applied)
	}

	b, _ := l.Balances(ctx)
	if b[AccountBankrollObserved] != 150 {
		t.Errorf("BankrollObserved = %d, want 150", b[AccountBankrollObserved])
	}
}

func TestReserveExitLiquiditySolvencyGate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	if err := l.Deposit(ctx, AccountBankrollObserved, 1000); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	ok, err := l.ReserveExitLiquidity(ctx, "A", 400, time.Minute)
	if err != nil || !ok {
		t.Fatalf("reservation A failed: ok=%v err=%v", ok, err)
	}
	ok, err = l.ReserveExitLiquidity(ctx, "B", 500, time.Minute)
	if err != nil || !ok {
		t.Fatalf("reservation B failed: ok=%v err=%v", ok, err)
	}

	// 400+500 already promised; another 200 would exceed the bankroll.
	ok, err = l.ReserveExitLiquidity(ctx, "C", 200, time.Minute)
	if err != nil {
		t.Fatalf("reservation C errored: %v", err)
	}
	if ok {
		t.Error("reservation exceeding bankroll was granted")
	}

	// One reservation per session.
	ok, _ = l.ReserveExitLiquidity(ctx, "A", 50, time.Minute)
	if ok {
		t.Error("second reservation for same session was granted")
	}

	b, _ := l.Balances(ctx)
	if b[AccountExitReservedTotal] != 900 {
		t.Errorf("ExitReservedTotal = %d, want 900", b[AccountExitReservedTotal])
	}
}

func TestReleaseExitReservationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.Deposit(ctx, AccountBankrollObserved, 1000)
	l.ReserveExitLiquidity(ctx, "A", 300, time.Minute)

	ok, err := l.ReleaseExitReservation(ctx, "A")
	if err != nil || !ok {
		t.Fatalf("first release failed: ok=%v err=%v", ok, err)
	}
	ok, err = l.ReleaseExitReservation(ctx, "A")
	if err != nil {
		t.Fatalf("second release errored: %v", err)
	}
	if ok {
		t.Error("second release reported released")
	}

	b, _ := l.Balances(ctx)
	if b[AccountExitReservedTotal] != 0 {
		t.Errorf("ExitReservedTotal = %d after double release, want 0", b[AccountExitReservedTotal])
	}
}

func TestApplyExitReleasesReservation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.Deposit(ctx, AccountBankrollObserved, 1000)
	l.ReserveExitLiquidity(ctx, "A", 300, time.Minute)

	applied, err := l.ApplyExitToBalances(ctx, "exit-1", "A", 300)
	if err != nil || !applied {
		t.Fatalf("exit apply failed: ok=%v err=%v", applied, err)
	}

	b, _ := l.Balances(ctx)
	if b[AccountBankrollObserved] != 700 {
		t.Errorf("BankrollObserved = %d, want 700", b[AccountBankrollObserved])
	}
	if b[AccountExitReservedTotal] != 0 {
		t.Errorf("ExitReservedTotal = %d, want 0", b[AccountExitReservedTotal])
	}

	applied, _ = l.ApplyExitToBalances(ctx, "exit-1", "A", 300)
	if applied {
		t.Error("duplicate exit event applied")
	}
	b, _ = l.Balances(ctx)
	if b[AccountBankrollObserved] != 700 {
		t.Errorf("balance moved on duplicate exit: %d", b[AccountBankrollObserved])
	}
}

func TestTrySpendPelletReserve(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.Deposit(ctx, AccountPelletReserve, 100)

	ok, err := l.TrySpendPelletReserve(ctx, 60)
	if err != nil || !ok {
		t.Fatalf("affordable spend denied: ok=%v err=%v", ok, err)
	}
	ok, err = l.TrySpendPelletReserve(ctx, 60)
	if err != nil {
		t.Fatalf("spend errored: %v", err)
	}
	if ok {
		t.Error("overdraft spend granted")
	}

	b, _ := l.Balances(ctx)
	if b[AccountPelletReserve] != 40 {
		t.Errorf("PelletReserve = %d, want 40", b[AccountPelletReserve])
	}
}

func TestSweepExpiredReservations(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.Deposit(ctx, AccountBankrollObserved, 1000)
	l.ReserveExitLiquidity(ctx, "expired", 200, -time.Second)
	l.ReserveExitLiquidity(ctx, "live", 300, time.Hour)

	released, err := l.SweepExpiredReservations(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if released != 1 {
		t.Errorf("released %d reservations, want 1", released)
	}

	b, _ := l.Balances(ctx)
	if b[AccountExitReservedTotal] != 300 {
		t.Errorf("ExitReservedTotal = %d, want 300", b[AccountExitReservedTotal])
	}
}

func TestUnusedDepositClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.ApplyDepositToBalances(ctx, "d1", "0xwallet", 10, 5)

	dep, err := l.UnusedDeposit(ctx, "0xwallet")
	if err != nil || dep == nil {
		t.Fatalf("unused deposit missing: dep=%v err=%v", dep, err)
	}
	if dep.EventID != "d1" || dep.SpawnAmount != 10 {
		t.Errorf("wrong deposit: %+v", dep)
	}

	ok, err := l.ClaimDeposit(ctx, "d1", "sess-1")
	if err != nil || !ok {
		t.Fatalf("claim failed: ok=%v err=%v", ok, err)
	}
	ok, _ = l.ClaimDeposit(ctx, "d1", "sess-2")
	if ok {
		t.Error("deposit claimed twice")
	}

	dep, _ = l.UnusedDeposit(ctx, "0xwallet")
	if dep != nil {
		t.Errorf("claimed deposit still listed as unused: %+v", dep)
	}
}

func TestTransferAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.Deposit(ctx, AccountPelletReserve, 50)

	ok, err := l.Transfer(ctx, AccountPelletReserve, AccountBankrollObserved, 80)
	if err != nil {
		t.Fatalf("transfer errored: %v", err)
	}
	if ok {
		t.Error("transfer beyond balance succeeded")
	}

	b, _ := l.Balances(ctx)
	if b[AccountPelletReserve] != 50 || b[AccountBankrollObserved] != 0 {
		t.Errorf("failed transfer left partial write: %v", b)
	}
}
