package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/fbr"
	"github.com/pos/backend/internal/domain/sale"
	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/domain/submission"
)

// fakeQueueRepo is an in-memory submission.Repository honoring the claim and
// lease-token semantics of the real one
type fakeQueueRepo struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*submission.Entry
	tokens   map[uuid.UUID]uuid.UUID
	claimErr error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		entries: make(map[uuid.UUID]*submission.Entry),
		tokens:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *fakeQueueRepo) Create(_ context.Context, entry *submission.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !entry.IsTerminal() {
		for _, e := range r.entries {
			if e.SaleID == entry.SaleID && !e.IsTerminal() {
				return shared.ErrAlreadyQueued
			}
		}
	}
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *fakeQueueRepo) Update(_ context.Context, entry *submission.Entry, token uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[entry.ID] != token {
		return shared.ErrConcurrencyConflict
	}
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *fakeQueueRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*submission.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *fakeQueueRepo) FindActiveBySale(_ context.Context, tenantID, saleID uuid.UUID) (*submission.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.SaleID == saleID && !e.IsTerminal() {
			copied := *e
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeQueueRepo) FindLatestBySale(_ context.Context, tenantID, saleID uuid.UUID) (*submission.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *submission.Entry
	for _, e := range r.entries {
		if e.TenantID != tenantID || e.SaleID != saleID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeQueueRepo) ClaimDue(_ context.Context, limit int, token uuid.UUID, leaseTTL time.Duration) ([]*submission.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	now := time.Now()
	var claimed []*submission.Entry
	for _, e := range r.entries {
		if len(claimed) >= limit {
			break
		}
		if !e.Claimable(now) {
			continue
		}
		if err := e.Claim(token, leaseTTL); err != nil {
			continue
		}
		r.tokens[e.ID] = token
		copied := *e
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (r *fakeQueueRepo) ListByState(_ context.Context, tenantID uuid.UUID, state submission.State, _, _ int) ([]*submission.Entry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*submission.Entry
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.State == state {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeQueueRepo) CountByState(_ context.Context, tenantID uuid.UUID) (map[submission.State]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[submission.State]int64)
	for _, e := range r.entries {
		if e.TenantID == tenantID {
			counts[e.State]++
		}
	}
	return counts, nil
}

func (r *fakeQueueRepo) get(id uuid.UUID) *submission.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.entries[id]
	return &copied
}

// fakeSaleRepo is an in-memory sale.Repository
type fakeSaleRepo struct {
	mu    sync.Mutex
	sales map[uuid.UUID]*sale.Sale
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{sales: make(map[uuid.UUID]*sale.Sale)}
}

func (r *fakeSaleRepo) FindByID(_ context.Context, tenantID, saleID uuid.UUID) (*sale.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[saleID]
	if !ok || s.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSaleRepo) UpdateFBRState(_ context.Context, s *sale.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sales[s.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.FBRStatus = s.FBRStatus
	stored.FBRInvoiceNumber = s.FBRInvoiceNumber
	stored.FBRError = s.FBRError
	return nil
}

func (r *fakeSaleRepo) add(s *sale.Sale) { r.sales[s.ID] = s }

func (r *fakeSaleRepo) get(id uuid.UUID) *sale.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.sales[id]
	return &copied
}

// fakeResolver resolves one credential for every tenant, or fails
type fakeResolver struct {
	cred *fbr.Credential
	err  error
}

func (r *fakeResolver) Resolve(_ context.Context, tenantID uuid.UUID) (*fbr.Credential, error) {
	if r.err != nil {
		return nil, r.err
	}
	cred := *r.cred
	cred.TenantID = tenantID
	return &cred, nil
}

// fakeAuthority scripts one response per call, then repeats the last
type fakeAuthority struct {
	mu       sync.Mutex
	calls    int
	payloads []string
	script   []func() (*fbr.SubmissionAck, error)
}

func (a *fakeAuthority) SubmitInvoice(_ context.Context, _ *fbr.Credential, payload *fbr.WirePayload) (*fbr.SubmissionAck, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw, _ := json.Marshal(payload)
	a.payloads = append(a.payloads, string(raw))
	idx := a.calls
	a.calls++
	if idx >= len(a.script) {
		idx = len(a.script) - 1
	}
	return a.script[idx]()
}

func (a *fakeAuthority) ValidateInvoice(_ context.Context, _ *fbr.Credential, _ *fbr.WirePayload) ([]fbr.Violation, error) {
	return nil, nil
}

func (a *fakeAuthority) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func ackWith(number string) func() (*fbr.SubmissionAck, error) {
	return func() (*fbr.SubmissionAck, error) {
		return &fbr.SubmissionAck{InvoiceNumber: number, Dated: "2026-08-20 14:35:00"}, nil
	}
}

func failWith(err error) func() (*fbr.SubmissionAck, error) {
	return func() (*fbr.SubmissionAck, error) { return nil, err }
}

// conflictedQueueRepo simulates a worker whose lease expired mid-pass:
// every write-back finds the entry claimed by someone else
type conflictedQueueRepo struct {
	*fakeQueueRepo
}

func (r *conflictedQueueRepo) Update(context.Context, *submission.Entry, uuid.UUID) error {
	return shared.ErrConcurrencyConflict
}

// fakeNotifier records outcomes
type fakeNotifier struct {
	mu       sync.Mutex
	outcomes []submission.Outcome
}

func (n *fakeNotifier) NotifyOutcome(_ context.Context, _ *submission.Entry, outcome submission.Outcome, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

type workerFixture struct {
	queue     *fakeQueueRepo
	sales     *fakeSaleRepo
	resolver  *fakeResolver
	authority *fakeAuthority
	notifier  *fakeNotifier
	worker    *Worker
}

func newWorkerFixture(t *testing.T, script ...func() (*fbr.SubmissionAck, error)) *workerFixture {
	t.Helper()
	f := &workerFixture{
		queue: newFakeQueueRepo(),
		sales: newFakeSaleRepo(),
		resolver: &fakeResolver{cred: &fbr.Credential{
			Token:   "token",
			BaseURL: "https://gw.fbr.gov.pk/di_data/v1/di",
			Seller:  fbr.Seller{NTNCNIC: "7000007", BusinessName: "Test Traders", Province: "PUNJAB"},
		}},
		authority: &fakeAuthority{script: script},
		notifier:  &fakeNotifier{},
	}
	cfg := WorkerConfig{
		BatchSize:     10,
		LeaseDuration: time.Minute,
		SubmitTimeout: time.Second,
		RunDeadline:   time.Minute,
		Backoff:       submission.BackoffPolicy{BaseDelay: time.Nanosecond, MaxDelay: time.Microsecond, Jitter: 0},
	}
	f.worker = NewWorker(f.queue, f.sales, f.resolver, f.authority, f.notifier, cfg, zap.NewNop())
	return f
}

// enqueue seeds a pending entry with a frozen payload and its backing sale
func (f *workerFixture) enqueue(t *testing.T) *submission.Entry {
	t.Helper()
	tenantID := uuid.New()
	s := &sale.Sale{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SaleNumber: "1001",
		Type:       sale.InvoiceTypeSale,
		FBRStatus:  sale.FBRStatusPending,
	}
	f.sales.add(s)

	payload := &fbr.WirePayload{InvoiceType: fbr.WireInvoiceTypeSale, InvoiceRefNo: "POS-AB12CD34-1001"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	entry := submission.NewEntry(tenantID, s.ID, payload.InvoiceRefNo, raw, 5)
	require.NoError(t, f.queue.Create(context.Background(), entry))
	return entry
}

func TestWorker_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip: one call, entry synced, sale updated", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("7000007DI1747119701593"))
		entry := f.enqueue(t)

		summary, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Claimed)
		assert.Equal(t, 1, summary.Synced)
		assert.Equal(t, 1, f.authority.callCount())

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StateSynced, stored.State)
		assert.Equal(t, "7000007DI1747119701593", stored.FBRInvoiceNumber)
		assert.Equal(t, 1, stored.AttemptCount)

		s := f.sales.get(entry.SaleID)
		assert.Equal(t, sale.FBRStatusSynced, s.FBRStatus)
		assert.Equal(t, "7000007DI1747119701593", s.FBRInvoiceNumber)
		assert.Equal(t, []submission.Outcome{submission.OutcomeSynced}, f.notifier.outcomes)
	})

	t.Run("times out twice then succeeds on the third attempt", func(t *testing.T) {
		timeout := errors.New("authority request failed: context deadline exceeded")
		f := newWorkerFixture(t, failWith(timeout), failWith(timeout), ackWith("INV-3"))
		entry := f.enqueue(t)

		for i := 0; i < 3; i++ {
			// Backoff delays are nanoseconds in the fixture; make sure the
			// entry is due before each pass
			time.Sleep(time.Millisecond)
			_, err := f.worker.RunOnce(ctx)
			require.NoError(t, err)
		}

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StateSynced, stored.State)
		assert.Equal(t, 3, stored.AttemptCount)
		assert.Equal(t, 3, f.authority.callCount())
		assert.Equal(t, sale.FBRStatusSynced, f.sales.get(entry.SaleID).FBRStatus)
	})

	t.Run("resubmits the byte-identical frozen payload on every attempt", func(t *testing.T) {
		f := newWorkerFixture(t, failWith(errors.New("502 bad gateway")), ackWith("INV-2"))
		f.enqueue(t)

		for i := 0; i < 2; i++ {
			time.Sleep(time.Millisecond)
			_, err := f.worker.RunOnce(ctx)
			require.NoError(t, err)
		}

		require.Len(t, f.authority.payloads, 2)
		assert.Equal(t, f.authority.payloads[0], f.authority.payloads[1])
	})

	t.Run("exhausts retries into a dead letter marked exhausted", func(t *testing.T) {
		f := newWorkerFixture(t, failWith(errors.New("503 service unavailable")))
		entry := f.enqueue(t)

		for i := 0; i < 6; i++ {
			time.Sleep(time.Millisecond)
			_, err := f.worker.RunOnce(ctx)
			require.NoError(t, err)
		}

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StateDeadLetter, stored.State)
		assert.Equal(t, submission.FailureExhausted, stored.FailureKind)
		assert.Equal(t, 5, stored.AttemptCount)
		assert.Equal(t, 5, f.authority.callCount())

		s := f.sales.get(entry.SaleID)
		assert.Equal(t, sale.FBRStatusFailed, s.FBRStatus)
	})

	t.Run("a permanent rejection dead-letters without further calls", func(t *testing.T) {
		perm := &fbr.PermanentError{StatusCode: 422, Violations: []fbr.Violation{
			{Field: "items[0]", Code: "0052", Message: "HS Code not registered"},
		}}
		f := newWorkerFixture(t, failWith(perm))
		entry := f.enqueue(t)

		summary, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.DeadLettered)

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StateDeadLetter, stored.State)
		assert.Equal(t, submission.FailureValidation, stored.FailureKind)

		// Dead letters are terminal: nothing left to claim
		time.Sleep(time.Millisecond)
		summary, err = f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Claimed)
		assert.Equal(t, 1, f.authority.callCount())
	})

	t.Run("missing credential releases the lease without consuming an attempt", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("unused"))
		f.resolver.err = shared.ErrFBRNotConfigured
		entry := f.enqueue(t)

		summary, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ConfigErrors)
		assert.Zero(t, f.authority.callCount())

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StatePending, stored.State)
		assert.Zero(t, stored.AttemptCount)
		assert.Equal(t, []submission.Outcome{submission.OutcomeReleased}, f.notifier.outcomes)
	})

	t.Run("an authority credential refusal mid-flight is also config class", func(t *testing.T) {
		f := newWorkerFixture(t, failWith(fmt.Errorf("%w: authority rejected credential (status 401)", shared.ErrFBRNotConfigured)))
		entry := f.enqueue(t)

		summary, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ConfigErrors)

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StatePending, stored.State)
		assert.Zero(t, stored.AttemptCount)
	})

	t.Run("deadline spill-over is released, not counted as config error", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("unused"))
		// Deadline already expired when the pass starts; every claim is
		// handed back untouched
		f.worker.config.RunDeadline = -time.Second
		entry := f.enqueue(t)

		summary, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Claimed)
		assert.Equal(t, 1, summary.DeadlineReleased)
		assert.Zero(t, summary.ConfigErrors)
		assert.Zero(t, f.authority.callCount())

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StatePending, stored.State)
		assert.Zero(t, stored.AttemptCount)
		assert.Equal(t, []submission.Outcome{submission.OutcomeReleased}, f.notifier.outcomes)
	})

	t.Run("a release that lost its claim counts and notifies nothing", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("unused"))
		f.resolver.err = shared.ErrFBRNotConfigured
		f.enqueue(t)

		w := NewWorker(&conflictedQueueRepo{f.queue}, f.sales, f.resolver,
			f.authority, f.notifier, f.worker.config, zap.NewNop())

		summary, err := w.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Claimed)
		assert.Zero(t, summary.ConfigErrors)
		assert.Zero(t, summary.InfraErrors)
		assert.Empty(t, f.notifier.outcomes)
	})

	t.Run("overlapping runs never share an entry", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("INV-1"))
		f.enqueue(t)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.worker.RunOnce(ctx)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, f.authority.callCount())
	})

	t.Run("a failing claim query is an infrastructure error", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("unused"))
		f.queue.claimErr = errors.New("connection refused")

		summary, err := f.worker.RunOnce(ctx)
		require.Error(t, err)
		assert.Equal(t, 1, summary.InfraErrors)
	})

	t.Run("a corrupt payload snapshot dead-letters instead of looping", func(t *testing.T) {
		f := newWorkerFixture(t, ackWith("unused"))
		entry := f.enqueue(t)
		f.queue.mu.Lock()
		f.queue.entries[entry.ID].PayloadSnapshot = []byte("{not json")
		f.queue.mu.Unlock()

		summary, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.DeadLettered)
		assert.Zero(t, f.authority.callCount())

		stored := f.queue.get(entry.ID)
		assert.Equal(t, submission.StateDeadLetter, stored.State)
	})
}
