package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/contemplaapp/contempla-backend/pkg/logger"
)

type retentionRepoSpy struct {
	lastCutoff time.Time
	calls      int
	err        error
}

func (s *retentionRepoSpy) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	s.calls++
	s.lastCutoff = cutoff
	if s.err != nil {
		return 0, s.err
	}
	return 7, nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func buildRetentionJob(t *testing.T, repo *retentionRepoSpy) *outboxRetentionJob {
	t.Helper()
	built, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         passthroughTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := built.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", built)
	}
	return job
}

func TestOutboxRetentionJobDeletesPublishedRows(t *testing.T) {
	now := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	repo := &retentionRepoSpy{}
	job := buildRetentionJob(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCutoff := now.UTC().Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(wantCutoff) {
		t.Fatalf("cutoff: want %s got %s", wantCutoff, repo.lastCutoff)
	}
	if repo.calls != 1 {
		t.Fatalf("repo should run once per job run, got %d", repo.calls)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := buildRetentionJob(t, &retentionRepoSpy{err: errors.New("boom")})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected the repository error to surface")
	}
}
