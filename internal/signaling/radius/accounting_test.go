package radius

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/switchboard/internal/signaling/store"
)

type fakeCDRRepo struct {
	rows map[string]*store.CDR
}

func newFakeCDRRepo() *fakeCDRRepo { return &fakeCDRRepo{rows: map[string]*store.CDR{}} }

func (r *fakeCDRRepo) Create(ctx context.Context, cdr *store.CDR) error {
	r.rows[cdr.CallID] = cdr
	return nil
}
func (r *fakeCDRRepo) Get(ctx context.Context, id string) (*store.CDR, error) {
	for _, c := range r.rows {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}
func (r *fakeCDRRepo) GetByCallID(ctx context.Context, callID string) (*store.CDR, error) {
	return r.rows[callID], nil
}
func (r *fakeCDRRepo) Query(ctx context.Context, filter store.CDRFilter) ([]*store.CDR, error) {
	return nil, nil
}
func (r *fakeCDRRepo) Count(ctx context.Context, filter store.CDRFilter) (int64, error) {
	return 0, nil
}
func (r *fakeCDRRepo) Update(ctx context.Context, cdr *store.CDR) error {
	r.rows[cdr.CallID] = cdr
	return nil
}
func (r *fakeCDRRepo) Delete(ctx context.Context, id string) error { return nil }

var _ store.CDRRepository = (*fakeCDRRepo)(nil)

func TestRecordingAccountingConnectThenDisconnect(t *testing.T) {
	repo := newFakeCDRRepo()
	acct := NewRecordingAccounting(repo, "call-1", "1000", "Jane", "2000", "A", "10.0.0.1", "10.0.0.2")

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	acct.Connect(start)

	row := repo.rows["call-1"]
	if row == nil {
		t.Fatalf("expected CDR row created on Connect")
	}
	if row.Disposition != "answered" {
		t.Fatalf("expected disposition answered, got %q", row.Disposition)
	}

	end := start.Add(90 * time.Second)
	acct.Disconnect(end)

	row = repo.rows["call-1"]
	if row.BillDuration != 90 {
		t.Fatalf("expected bill_duration 90, got %d", row.BillDuration)
	}
	if row.EndTime != end {
		t.Fatalf("expected end time stamped")
	}
}

func TestFakeAccountingIsNoop(t *testing.T) {
	var a Accounting = FakeAccounting{}
	a.Connect(time.Now())
	a.Disconnect(time.Now())
}
