package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/testmaker/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, externalID string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.User{
		ExternalID: externalID,
		Email:      externalID + "@example.com",
		Name:       "User " + externalID,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return u
}

func insertTestTemplate(t *testing.T, s *Store, creatorID, title string, public bool) model.TestTemplate {
	t.Helper()
	tmpl, err := s.CreateTemplate(context.Background(), model.TestTemplate{
		Title:            title,
		Prompt:           "prompt for " + title,
		Subject:          "physics",
		Difficulty:       model.DifficultyMedium,
		EducationLevel:   "high school",
		MCQCount:         1,
		ShortAnswerCount: 1,
		Questions: model.QuestionSet{
			MCQs:         []model.MCQ{{Question: "2+2?", Options: []string{"1", "2", "3", "4"}, Answer: "4"}},
			ShortAnswers: []model.ShortAnswer{{Question: "Define force.", Answer: "mass times acceleration"}},
		},
		CreatorID: creatorID,
		IsPublic:  public,
	})
	if err != nil {
		t.Fatalf("insertTestTemplate: %v", err)
	}
	return tmpl
}

func ptr(f float64) *float64 { return &f }

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.UserCount(ctx)
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	u := insertTestUser(t, s, "user_1")
	if u.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := s.GetUserByExternalID(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetUserByExternalID: %v", err)
	}
	if got == nil || got.ID != u.ID || got.Email != "user_1@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}

	missing, err := s.GetUserByExternalID(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUserByExternalID missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}

	// Duplicate external IDs violate the unique constraint.
	if _, err := s.CreateUser(ctx, model.User{ExternalID: "user_1"}); err == nil {
		t.Error("expected error creating duplicate user")
	}

	updated, err := s.UpdateUserByExternalID(ctx, "user_1", "new@example.com", "New Name")
	if err != nil {
		t.Fatalf("UpdateUserByExternalID: %v", err)
	}
	if updated.Email != "new@example.com" || updated.Name != "New Name" {
		t.Errorf("unexpected updated user: %+v", updated)
	}

	if _, err := s.UpdateUserByExternalID(ctx, "nobody", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing user, got %v", err)
	}

	if err := s.DeleteUserByExternalID(ctx, "user_1"); err != nil {
		t.Fatalf("DeleteUserByExternalID: %v", err)
	}
	if err := s.DeleteUserByExternalID(ctx, "user_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestTemplateCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := insertTestUser(t, s, "owner")
	other := insertTestUser(t, s, "other")

	tmpl := insertTestTemplate(t, s, owner.ID, "Mechanics", true)
	insertTestTemplate(t, s, owner.ID, "Optics", false)
	insertTestTemplate(t, s, other.ID, "History", false)

	got, err := s.GetTemplate(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got == nil {
		t.Fatal("expected template")
	}
	if got.Title != "Mechanics" || got.Difficulty != model.DifficultyMedium || !got.IsPublic {
		t.Errorf("unexpected template: %+v", got)
	}
	if len(got.Questions.MCQs) != 1 || got.Questions.MCQs[0].Answer != "4" {
		t.Errorf("questions not round-tripped: %+v", got.Questions)
	}
	if got.CreatedAt.Location() != time.UTC {
		t.Errorf("expected UTC created_at, got %v", got.CreatedAt.Location())
	}

	missing, err := s.GetTemplate(ctx, "missing")
	if err != nil {
		t.Fatalf("GetTemplate missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing template")
	}

	owned, err := s.ListTemplatesByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListTemplatesByOwner: %v", err)
	}
	if len(owned) != 2 {
		t.Errorf("expected 2 owned templates, got %d", len(owned))
	}

	none, err := s.ListTemplatesByOwner(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListTemplatesByOwner nobody: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", none)
	}

	public, err := s.ListPublicTemplates(ctx)
	if err != nil {
		t.Fatalf("ListPublicTemplates: %v", err)
	}
	if len(public) != 1 || public[0].ID != tmpl.ID {
		t.Errorf("unexpected public templates: %+v", public)
	}
}

func TestAttemptCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := insertTestUser(t, s, "owner")
	learner := insertTestUser(t, s, "learner")
	tmpl := insertTestTemplate(t, s, owner.ID, "Mechanics", true)

	correct := true
	answer := "4"
	submitted := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	a, err := s.CreateAttempt(ctx, model.TestAttempt{
		UserID:    learner.ID,
		TestID:    tmpl.ID,
		TestTitle: tmpl.Title,
		Questions: []model.AnsweredQuestion{
			{QuestionNumber: 1, Question: "2+2?", Type: model.QuestionMCQ, UserAnswer: "4", IsAnswered: true},
		},
		Answers:    json.RawMessage(`{"1":"4"}`),
		Score:      ptr(8),
		TotalMarks: ptr(10),
		Feedback: []model.QuestionFeedback{
			{QuestionNumber: 1, Type: model.QuestionMCQ, IsCorrect: &correct, MarksAwarded: 1, OutOf: 1, CorrectAnswer: &answer, UserAnswer: "4", Feedback: "Correct"},
		},
		OverallFeedback:   "Well done",
		TimeTaken:         120,
		AnsweredQuestions: 1,
		TotalQuestions:    1,
		IsCompleted:       true,
		SubmittedAt:       submitted,
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	got, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got == nil {
		t.Fatal("expected attempt")
	}
	if got.Score == nil || *got.Score != 8 || got.TotalMarks == nil || *got.TotalMarks != 10 {
		t.Errorf("unexpected score/total: %v/%v", got.Score, got.TotalMarks)
	}
	if !got.SubmittedAt.Equal(submitted) {
		t.Errorf("submitted_at = %v, want %v", got.SubmittedAt, submitted)
	}
	if len(got.Feedback) != 1 || got.Feedback[0].IsCorrect == nil || !*got.Feedback[0].IsCorrect {
		t.Errorf("feedback not round-tripped: %+v", got.Feedback)
	}
	if string(got.Answers) != `{"1":"4"}` {
		t.Errorf("answers = %s", got.Answers)
	}
	if !got.IsCompleted {
		t.Error("expected is_completed")
	}

	// Nullable score and total marks survive as nil.
	bare, err := s.CreateAttempt(ctx, model.TestAttempt{UserID: learner.ID, TestID: tmpl.ID})
	if err != nil {
		t.Fatalf("CreateAttempt bare: %v", err)
	}
	gotBare, err := s.GetAttempt(ctx, bare.ID)
	if err != nil {
		t.Fatalf("GetAttempt bare: %v", err)
	}
	if gotBare.Score != nil || gotBare.TotalMarks != nil {
		t.Errorf("expected nil score and total marks, got %v/%v", gotBare.Score, gotBare.TotalMarks)
	}
	if gotBare.SubmittedAt.IsZero() {
		t.Error("expected default submitted_at")
	}

	missing, err := s.GetAttempt(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("GetAttempt missing = %v, %v", missing, err)
	}

	byUser, err := s.ListAttemptsByUser(ctx, learner.ID)
	if err != nil {
		t.Fatalf("ListAttemptsByUser: %v", err)
	}
	if len(byUser) != 2 {
		t.Errorf("expected 2 attempts by learner, got %d", len(byUser))
	}
}

func TestListAttemptsByTestIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := insertTestUser(t, s, "owner")
	t1 := insertTestTemplate(t, s, owner.ID, "T1", false)
	t2 := insertTestTemplate(t, s, owner.ID, "T2", false)
	t3 := insertTestTemplate(t, s, owner.ID, "T3", false)

	for _, id := range []string{t1.ID, t1.ID, t2.ID, t3.ID} {
		if _, err := s.CreateAttempt(ctx, model.TestAttempt{UserID: owner.ID, TestID: id}); err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
	}

	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{"none", nil, 0},
		{"single", []string{t1.ID}, 2},
		{"two", []string{t1.ID, t2.ID}, 3},
		{"all", []string{t1.ID, t2.ID, t3.ID}, 4},
		{"unknown", []string{"nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListAttemptsByTestIDs(ctx, tt.ids)
			if err != nil {
				t.Fatalf("ListAttemptsByTestIDs: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d attempts, got %d", tt.want, len(got))
			}
			if got == nil {
				t.Error("expected non-nil slice")
			}
		})
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
