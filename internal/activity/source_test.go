package activity

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pavelanni/testmaker/internal/model"
)

type fakeSource struct {
	templates []model.TestTemplate
	attempts  []model.TestAttempt
	gotIDs    []string
	err       error
}

func (f *fakeSource) ListTemplatesByOwner(_ context.Context, _ string) ([]model.TestTemplate, error) {
	return f.templates, f.err
}

func (f *fakeSource) ListAttemptsByTestIDs(_ context.Context, ids []string) ([]model.TestAttempt, error) {
	f.gotIDs = ids
	return f.attempts, nil
}

func TestForOwner(t *testing.T) {
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		templates: []model.TestTemplate{
			{ID: "t1", CreatedAt: now.Add(-time.Hour)},
			{ID: "t2", CreatedAt: now.AddDate(0, -2, 0)},
		},
		attempts: []model.TestAttempt{
			{ID: "a1", TestID: "t1", Score: ptr(8), TotalMarks: ptr(10), SubmittedAt: now.Add(-time.Minute)},
		},
	}

	got, err := ForOwner(context.Background(), src, "owner", now)
	if err != nil {
		t.Fatalf("ForOwner: %v", err)
	}
	if !slices.Equal(src.gotIDs, []string{"t1", "t2"}) {
		t.Errorf("attempts queried for %v, want [t1 t2]", src.gotIDs)
	}
	if got.TotalTests != 2 || got.TestsThisWeek != 1 || got.TotalAttempts != 1 {
		t.Errorf("unexpected counts: %+v", got)
	}
	if got.AverageScoreThisMonth != 80 {
		t.Errorf("AverageScoreThisMonth = %d, want 80", got.AverageScoreThisMonth)
	}
}

func TestForOwnerError(t *testing.T) {
	boom := errors.New("boom")
	_, err := ForOwner(context.Background(), &fakeSource{err: boom}, "owner", time.Now())
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}
