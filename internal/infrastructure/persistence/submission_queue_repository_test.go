package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/domain/submission"
	"github.com/pos/backend/internal/infrastructure/persistence/models"
)

func setupQueueTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SubmissionEntryModel{}))
	// AutoMigrate cannot express the partial unique index the schema
	// migration creates; the repository relies on it
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX idx_fbr_queue_one_active_per_sale
		ON fbr_submission_queue (tenant_id, sale_id)
		WHERE status IN ('PENDING', 'IN_FLIGHT', 'RETRYING')`).Error)
	return db
}

func newPendingEntry(tenantID uuid.UUID) *submission.Entry {
	return submission.NewEntry(tenantID, uuid.New(), "POS-AB12CD34-1001", []byte(`{"invoiceType":"Sale Invoice"}`), 5)
}

func TestGormSubmissionQueueRepository_Create(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("creates a pending entry", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		entry := newPendingEntry(tenantID)

		require.NoError(t, repo.Create(ctx, entry))

		found, err := repo.FindByID(ctx, tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, submission.StatePending, found.State)
		assert.Equal(t, entry.PayloadSnapshot, found.PayloadSnapshot)
	})

	t.Run("rejects a second active entry for the same sale", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		entry := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, entry))

		dup := submission.NewEntry(tenantID, entry.SaleID, entry.InvoiceRefNo, entry.PayloadSnapshot, 5)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyQueued)
	})

	t.Run("maps an index violation from a raced insert to AlreadyQueued", func(t *testing.T) {
		db := setupQueueTestDB(t)
		repo := NewGormSubmissionQueueRepository(db)
		entry := newPendingEntry(tenantID)
		// Active row written by a concurrent enqueue, bypassing the repository
		require.NoError(t, db.Create(models.SubmissionEntryModelFromDomain(entry)).Error)

		dup := submission.NewEntry(tenantID, entry.SaleID, entry.InvoiceRefNo, entry.PayloadSnapshot, 5)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyQueued)
	})

	t.Run("allows a new entry once the previous one is terminal", func(t *testing.T) {
		db := setupQueueTestDB(t)
		repo := NewGormSubmissionQueueRepository(db)
		entry := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, entry))

		token := uuid.New()
		claimed, err := repo.ClaimDue(ctx, 10, token, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, claimed[0].MarkSynced("7000007DI1747119701593"))
		require.NoError(t, repo.Update(ctx, claimed[0], token))

		next := submission.NewEntry(tenantID, entry.SaleID, entry.InvoiceRefNo, entry.PayloadSnapshot, 5)
		assert.NoError(t, repo.Create(ctx, next))
	})

	t.Run("a dead-on-arrival entry never blocks the sale", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		saleID := uuid.New()
		dead := submission.NewDeadLetteredEntry(tenantID, saleID, "POS-AB12CD34-1002", "unknown HS code", 5)
		require.NoError(t, repo.Create(ctx, dead))

		entry := submission.NewEntry(tenantID, saleID, "POS-AB12CD34-1002", []byte(`{}`), 5)
		assert.NoError(t, repo.Create(ctx, entry))
	})
}

func TestGormSubmissionQueueRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("claims due entries and leaves future ones", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))

		due := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, due))

		future := newPendingEntry(tenantID)
		future.NextAttemptAt = time.Now().Add(time.Hour)
		require.NoError(t, repo.Create(ctx, future))

		token := uuid.New()
		claimed, err := repo.ClaimDue(ctx, 10, token, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, due.ID, claimed[0].ID)
		assert.Equal(t, submission.StateInFlight, claimed[0].State)
		require.NotNil(t, claimed[0].LeaseToken)
		assert.Equal(t, token, *claimed[0].LeaseToken)
	})

	t.Run("a second claimer gets nothing while the lease holds", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		require.NoError(t, repo.Create(ctx, newPendingEntry(tenantID)))

		first, err := repo.ClaimDue(ctx, 10, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := repo.ClaimDue(ctx, 10, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Empty(t, second)
	})

	t.Run("an expired lease makes the entry claimable again", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		require.NoError(t, repo.Create(ctx, newPendingEntry(tenantID)))

		crashed, err := repo.ClaimDue(ctx, 10, uuid.New(), -time.Second)
		require.NoError(t, err)
		require.Len(t, crashed, 1)

		recovery := uuid.New()
		reclaimed, err := repo.ClaimDue(ctx, 10, recovery, time.Minute)
		require.NoError(t, err)
		require.Len(t, reclaimed, 1)
		assert.Equal(t, crashed[0].ID, reclaimed[0].ID)
		require.NotNil(t, reclaimed[0].LeaseToken)
		assert.Equal(t, recovery, *reclaimed[0].LeaseToken)
	})

	t.Run("respects the batch limit oldest first", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		oldest := newPendingEntry(tenantID)
		oldest.NextAttemptAt = time.Now().Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, oldest))
		require.NoError(t, repo.Create(ctx, newPendingEntry(tenantID)))
		require.NoError(t, repo.Create(ctx, newPendingEntry(tenantID)))

		claimed, err := repo.ClaimDue(ctx, 2, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, oldest.ID, claimed[0].ID)
	})

	t.Run("terminal entries are never claimed", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		dead := submission.NewDeadLetteredEntry(tenantID, uuid.New(), "POS-AB12CD34-1003", "invalid", 5)
		require.NoError(t, repo.Create(ctx, dead))

		claimed, err := repo.ClaimDue(ctx, 10, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestGormSubmissionQueueRepository_Update(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("persists the outcome under the claim token", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		entry := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, entry))

		token := uuid.New()
		claimed, err := repo.ClaimDue(ctx, 10, token, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, claimed[0].MarkSynced("7000007DI1747119701593"))
		require.NoError(t, repo.Update(ctx, claimed[0], token))

		found, err := repo.FindByID(ctx, tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, submission.StateSynced, found.State)
		assert.Equal(t, "7000007DI1747119701593", found.FBRInvoiceNumber)
		assert.Nil(t, found.LeaseToken)
		assert.Nil(t, found.LeaseExpiresAt)
	})

	t.Run("rejects a write from a lost lease", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		entry := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, entry))

		claimed, err := repo.ClaimDue(ctx, 10, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, claimed[0].MarkSynced("7000007DI1747119701593"))
		err = repo.Update(ctx, claimed[0], uuid.New())
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("keeps the payload snapshot byte-identical across a retry", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		entry := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, entry))

		token := uuid.New()
		claimed, err := repo.ClaimDue(ctx, 10, token, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, claimed[0].MarkTransientFailure("gateway timeout", submission.BackoffPolicy{}))
		require.NoError(t, repo.Update(ctx, claimed[0], token))

		found, err := repo.FindByID(ctx, tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, submission.StateRetrying, found.State)
		assert.Equal(t, 1, found.AttemptCount)
		assert.Equal(t, entry.PayloadSnapshot, found.PayloadSnapshot)
	})
}

func TestGormSubmissionQueueRepository_Find(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("FindActiveBySale ignores terminal chains", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		saleID := uuid.New()
		dead := submission.NewDeadLetteredEntry(tenantID, saleID, "POS-AB12CD34-1004", "invalid", 5)
		require.NoError(t, repo.Create(ctx, dead))

		_, err := repo.FindActiveBySale(ctx, tenantID, saleID)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		active := submission.NewEntry(tenantID, saleID, "POS-AB12CD34-1004", []byte(`{}`), 5)
		require.NoError(t, repo.Create(ctx, active))

		found, err := repo.FindActiveBySale(ctx, tenantID, saleID)
		require.NoError(t, err)
		assert.Equal(t, active.ID, found.ID)
	})

	t.Run("FindLatestBySale returns the newest chain", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		saleID := uuid.New()

		older := submission.NewDeadLetteredEntry(tenantID, saleID, "POS-AB12CD34-1005", "invalid", 5)
		older.CreatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, older))

		newer := submission.NewEntry(tenantID, saleID, "POS-AB12CD34-1005", []byte(`{}`), 5)
		require.NoError(t, repo.Create(ctx, newer))

		found, err := repo.FindLatestBySale(ctx, tenantID, saleID)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, found.ID)
	})

	t.Run("FindByID is tenant scoped", func(t *testing.T) {
		repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))
		entry := newPendingEntry(tenantID)
		require.NoError(t, repo.Create(ctx, entry))

		_, err := repo.FindByID(ctx, uuid.New(), entry.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSubmissionQueueRepository_Counts(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	repo := NewGormSubmissionQueueRepository(setupQueueTestDB(t))

	require.NoError(t, repo.Create(ctx, newPendingEntry(tenantID)))
	require.NoError(t, repo.Create(ctx, newPendingEntry(tenantID)))
	dead := submission.NewDeadLetteredEntry(tenantID, uuid.New(), "POS-AB12CD34-1006", "invalid", 5)
	require.NoError(t, repo.Create(ctx, dead))
	// Another tenant's entry must not leak into the counts
	require.NoError(t, repo.Create(ctx, newPendingEntry(uuid.New())))

	counts, err := repo.CountByState(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[submission.StatePending])
	assert.Equal(t, int64(1), counts[submission.StateDeadLetter])

	entries, total, err := repo.ListByState(ctx, tenantID, submission.StatePending, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, entries, 2)
}
