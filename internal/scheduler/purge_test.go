package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"family-ledger/internal/domain"
	"family-ledger/internal/repository"
)

type countingPurger struct {
	calls  atomic.Int32
	cutoff atomic.Value
	err    error
}

func (p *countingPurger) PurgeStale(_ context.Context, createdBefore time.Time) (int64, error) {
	p.calls.Add(1)
	p.cutoff.Store(createdBefore)
	return 0, p.err
}

func TestRunOnceDeletesOnlyOldRecords(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	old := domain.VerificationRecord{ID: "old", Email: "a@b.com", CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-25*time.Hour + 5*time.Minute)}
	fresh := domain.VerificationRecord{ID: "fresh", Email: "b@c.com", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Hour + 5*time.Minute)}
	for _, rec := range []domain.VerificationRecord{old, fresh} {
		_, err := store.Issue(ctx, rec, time.Minute)
		require.NoError(t, err)
	}

	job := NewPurgeJob(zap.NewNop(), store, 24*time.Hour, time.Second)
	job.now = func() time.Time { return now }

	n, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, store.Verifications("a@b.com"))
	assert.Len(t, store.Verifications("b@c.com"), 1)
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	purger := &countingPurger{}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job := NewPurgeJob(zap.NewNop(), purger, 2*time.Hour, 0)
	job.now = func() time.Time { return now }

	_, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), purger.cutoff.Load())
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	job := NewPurgeJob(zap.NewNop(), &countingPurger{}, time.Hour, time.Second)
	assert.Error(t, job.Start("not a schedule"))
}

func TestStartRunsJob(t *testing.T) {
	purger := &countingPurger{err: errors.New("db down")}
	job := NewPurgeJob(zap.NewNop(), purger, time.Hour, time.Second)

	require.NoError(t, job.Start("@every 1s"))
	defer job.Stop()

	assert.Eventually(t, func() bool { return purger.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
