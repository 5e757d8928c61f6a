package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"starledger/internal/catalog"
	"starledger/internal/channel"
	"starledger/internal/history"
)

type fakeCatalog struct {
	defs map[string]catalog.Definition
}

func (f *fakeCatalog) Resolve(c catalog.Category, id string) (catalog.Definition, error) {
	def, ok := f.defs[string(c)+"/"+id]
	if !ok || !def.Enabled {
		return catalog.Definition{}, catalog.ErrNotFound
	}
	return def, nil
}

type fakeSnapshots struct {
	snap channel.Snapshot
}

func (f *fakeSnapshots) Current() channel.Snapshot { return f.snap }

type fakeTransport struct {
	publishFn func(ctx context.Context, sub channel.Submission) (string, error)
	removeFn  func(ctx context.Context, key string) error
	takeOutFn func(ctx context.Context, key string) (channel.Submission, bool, error)
}

func (f *fakeTransport) Publish(ctx context.Context, sub channel.Submission) (string, error) {
	return f.publishFn(ctx, sub)
}

func (f *fakeTransport) Remove(ctx context.Context, key string) error {
	return f.removeFn(ctx, key)
}

func (f *fakeTransport) TakeOut(ctx context.Context, key string) (channel.Submission, bool, error) {
	return f.takeOutFn(ctx, key)
}

type memBooks struct {
	balances map[string]int64
	credits  int
	pushed   []string
	pushErr  error
}

func newMemBooks() *memBooks {
	return &memBooks{balances: map[string]int64{}}
}

func (b *memBooks) Balance(userID string) (int64, error) {
	return b.balances[userID], nil
}

func (b *memBooks) Credit(userID string, points int64) (int64, error) {
	b.credits++
	b.balances[userID] += points
	return b.balances[userID], nil
}

func (b *memBooks) Debit(userID string, points int64) (int64, error) {
	next := b.balances[userID] - points
	if next < 0 {
		next = 0
	}
	b.balances[userID] = next
	return next, nil
}

func (b *memBooks) PushRemote(ctx context.Context, userID string) error {
	b.pushed = append(b.pushed, userID)
	return b.pushErr
}

type memArchive struct {
	records []history.Record
	err     error
}

func (a *memArchive) Append(ctx context.Context, rec history.Record) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func testDefs() map[string]catalog.Definition {
	return map[string]catalog.Definition{
		"core/c1":    {ID: "c1", Name: "Finish homework", Points: 10, Enabled: true},
		"daily/d1":   {ID: "d1", Name: "Practice violin", Points: 5, Enabled: true},
		"penalty/p1": {ID: "p1", Name: "Shouting", Points: 20, Enabled: true},
		"store/s1":   {ID: "s1", Name: "Phone time", Points: 50, Enabled: true},
	}
}

func newTestEngine(transport *fakeTransport, snap channel.Snapshot) (*Engine, *memBooks, *memArchive) {
	books := newMemBooks()
	archive := &memArchive{}
	eng := New(&fakeCatalog{defs: testDefs()}, &fakeSnapshots{snap: snap}, transport, books, archive)
	eng.now = func() time.Time { return time.Unix(1700000000, 0) }
	eng.logf = func(string, ...any) {}
	return eng, books, archive
}

var (
	zaki = Actor{ID: "zaki", Name: "Zaki"}
	dad  = Actor{ID: "dad", Name: "Dad"}
)

func TestSubmitPublishesPending(t *testing.T) {
	ctx := context.Background()
	var published channel.Submission
	transport := &fakeTransport{
		publishFn: func(_ context.Context, sub channel.Submission) (string, error) {
			published = sub
			return "sub_00000001_ab12", nil
		},
	}
	eng, _, _ := newTestEngine(transport, channel.Snapshot{})

	sub, err := eng.Submit(ctx, zaki, catalog.CategoryCore, "c1", "  done before dinner  ")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Key != "sub_00000001_ab12" || sub.Status != channel.StatusPending {
		t.Fatalf("Submit() = %+v", sub)
	}
	if published.TaskID != "c1" || published.Reward != 10 || published.SubmitterID != "zaki" {
		t.Fatalf("published = %+v", published)
	}
	if published.Note != "done before dinner" {
		t.Fatalf("published note = %q", published.Note)
	}
}

func TestSubmitUnknownTaskIsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(&fakeTransport{}, channel.Snapshot{})

	_, err := eng.Submit(context.Background(), zaki, catalog.CategoryCore, "nope", "")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "NOT_FOUND" {
		t.Fatalf("Submit(unknown) error = %v, want NOT_FOUND", err)
	}
}

func TestSubmitRejectsNonTaskCategory(t *testing.T) {
	eng, _, _ := newTestEngine(&fakeTransport{}, channel.Snapshot{})

	_, err := eng.Submit(context.Background(), zaki, catalog.CategoryPenalty, "p1", "")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "VALIDATION_ERROR" {
		t.Fatalf("Submit(penalty) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestSubmitDuplicatePendingIsConflict(t *testing.T) {
	snap := channel.Snapshot{
		List: []channel.Submission{
			{Key: "sub_1", TaskID: "c1", SubmitterID: "zaki", Status: channel.StatusPending},
		},
	}
	eng, _, _ := newTestEngine(&fakeTransport{}, snap)

	_, err := eng.Submit(context.Background(), zaki, catalog.CategoryCore, "c1", "")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "ALREADY_SUBMITTED" {
		t.Fatalf("Submit(duplicate) error = %v, want ALREADY_SUBMITTED", err)
	}

	// A different user claiming the same task is fine.
	transport := &fakeTransport{
		publishFn: func(context.Context, channel.Submission) (string, error) { return "sub_2", nil },
	}
	eng, _, _ = newTestEngine(transport, snap)
	if _, err := eng.Submit(context.Background(), Actor{ID: "mira", Name: "Mira"}, catalog.CategoryCore, "c1", ""); err != nil {
		t.Fatalf("Submit(other user) error = %v", err)
	}
}

func TestSubmitChannelUnavailable(t *testing.T) {
	transport := &fakeTransport{
		publishFn: func(context.Context, channel.Submission) (string, error) {
			return "", channel.ErrUnavailable
		},
	}
	eng, _, _ := newTestEngine(transport, channel.Snapshot{})

	_, err := eng.Submit(context.Background(), zaki, catalog.CategoryCore, "c1", "")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "CHANNEL_UNAVAILABLE" {
		t.Fatalf("Submit() error = %v, want CHANNEL_UNAVAILABLE", err)
	}
}

func TestApproveCreditsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	pending := channel.Submission{
		Key: "sub_1", TaskID: "c1", Name: "Finish homework", Category: "core",
		Reward: 10, SubmitterID: "zaki", SubmitterName: "Zaki", Status: channel.StatusPending,
	}
	claims := 0
	transport := &fakeTransport{
		takeOutFn: func(_ context.Context, key string) (channel.Submission, bool, error) {
			claims++
			if claims == 1 && key == "sub_1" {
				return pending, true, nil
			}
			return channel.Submission{}, false, nil
		},
	}
	eng, books, archive := newTestEngine(transport, channel.Snapshot{})

	sub, balance, err := eng.Approve(ctx, dad, "sub_1")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if sub.Key != "sub_1" || balance != 10 {
		t.Fatalf("Approve() = %+v, balance %d", sub, balance)
	}

	// The second approval of the same key finds nothing: the claim was
	// consumed, so points move exactly once.
	_, _, err = eng.Approve(ctx, dad, "sub_1")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "NOT_FOUND" {
		t.Fatalf("second Approve() error = %v, want NOT_FOUND", err)
	}
	if books.credits != 1 || books.balances["zaki"] != 10 {
		t.Fatalf("credits = %d, balance = %d; want exactly one credit of 10", books.credits, books.balances["zaki"])
	}
	if len(archive.records) != 1 {
		t.Fatalf("archive records = %d, want 1", len(archive.records))
	}
	rec := archive.records[0]
	if rec.Points != 10 || rec.SubjectID != "zaki" || rec.ActorID != "dad" {
		t.Fatalf("archive record = %+v", rec)
	}
	if len(books.pushed) != 1 || books.pushed[0] != "zaki" {
		t.Fatalf("pushed mirrors = %v", books.pushed)
	}
}

func TestApproveArchiveFailureStillCredits(t *testing.T) {
	transport := &fakeTransport{
		takeOutFn: func(context.Context, string) (channel.Submission, bool, error) {
			return channel.Submission{Key: "sub_1", TaskID: "c1", Reward: 10, SubmitterID: "zaki"}, true, nil
		},
	}
	eng, books, archive := newTestEngine(transport, channel.Snapshot{})
	archive.err = errors.New("archive down")

	_, balance, err := eng.Approve(context.Background(), dad, "sub_1")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if balance != 10 || books.balances["zaki"] != 10 {
		t.Fatalf("balance = %d, want 10 despite archive failure", balance)
	}
}

func TestRejectRemovesWithoutSettling(t *testing.T) {
	pending := channel.Submission{Key: "sub_1", TaskID: "c1", Reward: 10, SubmitterID: "zaki", Status: channel.StatusPending}
	snap := channel.Snapshot{
		List:  []channel.Submission{pending},
		ByKey: map[string]channel.Submission{"sub_1": pending},
	}
	removed := ""
	transport := &fakeTransport{
		removeFn: func(_ context.Context, key string) error {
			removed = key
			return nil
		},
	}
	eng, books, archive := newTestEngine(transport, snap)

	sub, err := eng.Reject(context.Background(), dad, "sub_1")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if sub.Key != "sub_1" || removed != "sub_1" {
		t.Fatalf("Reject() = %+v, removed %q", sub, removed)
	}
	if books.credits != 0 || len(archive.records) != 0 {
		t.Fatal("Reject() must not move points or write history")
	}
}

func TestRejectMissingIsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(&fakeTransport{}, channel.Snapshot{ByKey: map[string]channel.Submission{}})

	_, err := eng.Reject(context.Background(), dad, "sub_gone")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "NOT_FOUND" {
		t.Fatalf("Reject(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestApplyPenaltyClampsButArchivesFullCost(t *testing.T) {
	eng, books, archive := newTestEngine(&fakeTransport{}, channel.Snapshot{})
	books.balances["zaki"] = 8

	balance, err := eng.ApplyPenalty(context.Background(), dad, zaki, "p1")
	if err != nil {
		t.Fatalf("ApplyPenalty() error = %v", err)
	}
	if balance != 0 {
		t.Fatalf("ApplyPenalty() balance = %d, want 0 (clamped)", balance)
	}
	if len(archive.records) != 1 || archive.records[0].Points != -20 {
		t.Fatalf("archive = %+v, want one record of -20", archive.records)
	}
}

func TestApplyPenaltyUnknownIsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(&fakeTransport{}, channel.Snapshot{})

	_, err := eng.ApplyPenalty(context.Background(), dad, zaki, "p999")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "NOT_FOUND" {
		t.Fatalf("ApplyPenalty(unknown) error = %v, want NOT_FOUND", err)
	}
}

func TestBuyItemRequiresFullBalance(t *testing.T) {
	eng, books, archive := newTestEngine(&fakeTransport{}, channel.Snapshot{})
	books.balances["zaki"] = 49

	_, err := eng.BuyItem(context.Background(), zaki, "s1")
	var de *DomainError
	if !errors.As(err, &de) || de.Code != "INSUFFICIENT_FUNDS" {
		t.Fatalf("BuyItem(short) error = %v, want INSUFFICIENT_FUNDS", err)
	}
	if books.balances["zaki"] != 49 {
		t.Fatalf("balance after failed buy = %d, want untouched 49", books.balances["zaki"])
	}
	if len(archive.records) != 0 {
		t.Fatal("failed buy must not write history")
	}
}

func TestBuyItemDebitsAndArchives(t *testing.T) {
	eng, books, archive := newTestEngine(&fakeTransport{}, channel.Snapshot{})
	books.balances["zaki"] = 60

	balance, err := eng.BuyItem(context.Background(), zaki, "s1")
	if err != nil {
		t.Fatalf("BuyItem() error = %v", err)
	}
	if balance != 10 {
		t.Fatalf("BuyItem() balance = %d, want 10", balance)
	}
	if len(archive.records) != 1 || archive.records[0].Points != -50 || archive.records[0].Category != "store" {
		t.Fatalf("archive = %+v", archive.records)
	}
}

func TestQuickApproveArchiveFailureStillReportsBalance(t *testing.T) {
	eng, books, archive := newTestEngine(&fakeTransport{}, channel.Snapshot{})
	archive.err = errors.New("archive down")

	balance, err := eng.QuickApprove(context.Background(), dad, zaki, catalog.CategoryCore, "c1")
	if err != nil {
		t.Fatalf("QuickApprove() error = %v; archive failure must not mask the credit", err)
	}
	if balance != 10 || books.balances["zaki"] != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
}

func TestQuickApproveCreditsDirectly(t *testing.T) {
	eng, books, archive := newTestEngine(&fakeTransport{}, channel.Snapshot{})

	balance, err := eng.QuickApprove(context.Background(), dad, zaki, catalog.CategoryDaily, "d1")
	if err != nil {
		t.Fatalf("QuickApprove() error = %v", err)
	}
	if balance != 5 || books.balances["zaki"] != 5 {
		t.Fatalf("QuickApprove() balance = %d, want 5", balance)
	}
	if len(archive.records) != 1 || archive.records[0].Points != 5 || archive.records[0].ActorID != "dad" {
		t.Fatalf("archive = %+v", archive.records)
	}
}
