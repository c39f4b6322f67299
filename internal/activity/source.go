package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/testmaker/internal/model"
)

// Source provides the records a summary is built from.
type Source interface {
	ListTemplatesByOwner(ctx context.Context, ownerID string) ([]model.TestTemplate, error)
	ListAttemptsByTestIDs(ctx context.Context, testIDs []string) ([]model.TestAttempt, error)
}

// ForOwner loads the templates owned by ownerID and every attempt recorded
// against them, then summarizes them at now.
func ForOwner(ctx context.Context, src Source, ownerID string, now time.Time) (model.ActivitySummary, error) {
	templates, err := src.ListTemplatesByOwner(ctx, ownerID)
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("list templates: %w", err)
	}
	ids := make([]string, len(templates))
	for i, t := range templates {
		ids[i] = t.ID
	}
	attempts, err := src.ListAttemptsByTestIDs(ctx, ids)
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("list attempts: %w", err)
	}
	return Summarize(templates, attempts, now), nil
}
