package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"starledger/internal/localstore"
)

func newTestLedger(t *testing.T) (*Ledger, *redis.Client) {
	t.Helper()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open localstore: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(local, client, "home"), client
}

func TestCreditAndDebit(t *testing.T) {
	l, _ := newTestLedger(t)

	if balance, err := l.Balance("zaki"); err != nil || balance != 0 {
		t.Fatalf("Balance(new user) = %d, %v, want 0", balance, err)
	}

	if balance, err := l.Credit("zaki", 10); err != nil || balance != 10 {
		t.Fatalf("Credit() = %d, %v, want 10", balance, err)
	}
	if balance, err := l.Credit("zaki", 5); err != nil || balance != 15 {
		t.Fatalf("Credit() = %d, %v, want 15", balance, err)
	}
	if balance, err := l.Debit("zaki", 7); err != nil || balance != 8 {
		t.Fatalf("Debit() = %d, %v, want 8", balance, err)
	}
}

func TestDebitClampsAtZero(t *testing.T) {
	l, _ := newTestLedger(t)

	if _, err := l.Credit("zaki", 10); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	// Over-charge forgives the remainder rather than going negative.
	balance, err := l.Debit("zaki", 50)
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if balance != 0 {
		t.Fatalf("Debit(overdraw) = %d, want 0", balance)
	}

	// Debiting a user with no balance is also fine.
	if balance, err := l.Debit("mira", 20); err != nil || balance != 0 {
		t.Fatalf("Debit(new user) = %d, %v, want 0", balance, err)
	}
}

func TestPushAndFetchRemote(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if _, ok, err := l.FetchRemote(ctx, "zaki"); err != nil || ok {
		t.Fatalf("FetchRemote(no mirror) = ok %v, err %v", ok, err)
	}

	if _, err := l.Credit("zaki", 40); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := l.PushRemote(ctx, "zaki"); err != nil {
		t.Fatalf("PushRemote() error = %v", err)
	}

	score, ok, err := l.FetchRemote(ctx, "zaki")
	if err != nil || !ok {
		t.Fatalf("FetchRemote() = ok %v, err %v", ok, err)
	}
	if score != 40 {
		t.Fatalf("FetchRemote() = %d, want 40", score)
	}
}

func TestReconcileTakesTheLargerBalance(t *testing.T) {
	ctx := context.Background()
	l, client := newTestLedger(t)

	// Remote ahead: another device earned points while this one was off.
	if _, err := l.Credit("zaki", 40); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := client.Set(ctx, l.remoteKey("zaki"), `{"score":55,"updatedAt":1}`, 0).Err(); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	merged, err := l.Reconcile(ctx, "zaki")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if merged != 55 {
		t.Fatalf("Reconcile() = %d, want 55", merged)
	}
	if balance, _ := l.Balance("zaki"); balance != 55 {
		t.Fatalf("local balance after reconcile = %d, want 55", balance)
	}

	// Local ahead: this device has newer earnings than the mirror.
	if err := client.Set(ctx, l.remoteKey("mira"), `{"score":20,"updatedAt":1}`, 0).Err(); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	if _, err := l.Credit("mira", 70); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	merged, err = l.Reconcile(ctx, "mira")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if merged != 70 {
		t.Fatalf("Reconcile() = %d, want 70", merged)
	}
	if score, ok, _ := l.FetchRemote(ctx, "mira"); !ok || score != 70 {
		t.Fatalf("remote after reconcile = %d, ok %v, want 70", score, ok)
	}
}

func TestReconcileSeedsMissingMirror(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if _, err := l.Credit("zaki", 12); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	merged, err := l.Reconcile(ctx, "zaki")
	if err != nil || merged != 12 {
		t.Fatalf("Reconcile() = %d, %v, want 12", merged, err)
	}
	if score, ok, _ := l.FetchRemote(ctx, "zaki"); !ok || score != 12 {
		t.Fatalf("mirror after reconcile = %d, ok %v, want 12", score, ok)
	}
}

func TestLedgerWithoutMirror(t *testing.T) {
	ctx := context.Background()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open localstore: %v", err)
	}
	defer local.Close()
	l := New(local, nil, "home")

	if _, err := l.Credit("zaki", 9); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := l.PushRemote(ctx, "zaki"); err != nil {
		t.Fatalf("PushRemote(no mirror) error = %v", err)
	}
	merged, err := l.Reconcile(ctx, "zaki")
	if err != nil || merged != 9 {
		t.Fatalf("Reconcile(no mirror) = %d, %v, want 9", merged, err)
	}
}
