package model

import (
	"context"
	"encoding/json"
	"time"
)

// User is a local account mirrored from the identity provider.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"clerkId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Identity is what the identity provider tells us about the caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

type identityCtxKey struct{}

// ContextWithIdentity stores the verified caller identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the verified caller identity from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

type userCtxKey struct{}

// ContextWithUser stores the local user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the local user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents test difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionType distinguishes multiple-choice from short-answer questions.
type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
)

// MCQ is a generated multiple-choice question.
type MCQ struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// ShortAnswer is a generated short-answer question.
type ShortAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuestionSet is the generated content of a test template.
type QuestionSet struct {
	MCQs         []MCQ         `json:"mcqs"`
	ShortAnswers []ShortAnswer `json:"shortAnswers"`
}

// TestTemplate is a stored test definition owned by a creator.
type TestTemplate struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Prompt           string      `json:"prompt"`
	Subject          string      `json:"subject"`
	Difficulty       Difficulty  `json:"difficulty"`
	EducationLevel   string      `json:"educationLevel"`
	MCQCount         int         `json:"mcqCount"`
	ShortAnswerCount int         `json:"shortAnswerCount"`
	Questions        QuestionSet `json:"questions"`
	CreatorID        string      `json:"creatorId"`
	IsPublic         bool        `json:"isPublic"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// AnsweredQuestion is one question of an attempt together with the learner's answer.
type AnsweredQuestion struct {
	QuestionNumber int          `json:"questionNumber"`
	Question       string       `json:"question"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options,omitempty"`
	UserAnswer     string       `json:"userAnswer"`
	IsAnswered     bool         `json:"isAnswered"`
}

// QuestionFeedback is the grader's verdict on a single question.
type QuestionFeedback struct {
	QuestionNumber int          `json:"questionNumber"`
	Type           QuestionType `json:"type"`
	IsCorrect      *bool        `json:"isCorrect"`
	MarksAwarded   float64      `json:"marksAwarded"`
	OutOf          float64      `json:"outOf"`
	CorrectAnswer  *string      `json:"correctAnswer"`
	UserAnswer     string       `json:"userAnswer"`
	Feedback       string       `json:"feedback"`
}

// TestAttempt is a graded submission against a template.
type TestAttempt struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	TestID            string             `json:"testId"`
	TestTitle         string             `json:"testTitle"`
	Questions         []AnsweredQuestion `json:"questions"`
	Answers           json.RawMessage    `json:"answers"`
	Score             *float64           `json:"score"`
	TotalMarks        *float64           `json:"totalMarks"`
	Feedback          []QuestionFeedback `json:"feedback"`
	OverallFeedback   string             `json:"overallFeedback"`
	TimeTaken         int                `json:"timeTaken"`
	AnsweredQuestions int                `json:"answeredQuestions"`
	TotalQuestions    int                `json:"totalQuestions"`
	IsCompleted       bool               `json:"isCompleted"`
	SubmittedAt       time.Time          `json:"submittedAt"`
}

// RecentTest is an attempt reduced for the activity summary.
type RecentTest struct {
	ID          string    `json:"id"`
	TestID      string    `json:"testId"`
	TestTitle   string    `json:"testTitle"`
	Score       *float64  `json:"score"`
	TotalMarks  *float64  `json:"totalMarks"`
	SubmittedAt time.Time `json:"submittedAt"`
	Percentage  int       `json:"percentage"`
}

// ActivitySummary is the dashboard view of a user's testing activity.
type ActivitySummary struct {
	TotalTests            int          `json:"totalTests"`
	TestsThisWeek         int          `json:"testsThisWeek"`
	TotalAttempts         int          `json:"totalAttempts"`
	AttemptsThisWeek      int          `json:"attemptsThisWeek"`
	AverageScoreThisMonth int          `json:"averageScoreThisMonth"`
	RecentActivity        int          `json:"recentActivity"`
	RecentTests           []RecentTest `json:"recentTests"`
}

// CreateTestRequest is the payload of POST /api/tests/create.
type CreateTestRequest struct {
	Title            string     `json:"title" validate:"required"`
	Subject          string     `json:"subject" validate:"required"`
	Prompt           string     `json:"prompt" validate:"required"`
	Difficulty       Difficulty `json:"difficulty" validate:"omitempty,difficulty"`
	EducationLevel   string     `json:"educationLevel"`
	MCQCount         int        `json:"mcqCount" validate:"min=0,max=50"`
	ShortAnswerCount int        `json:"shortAnswerCount" validate:"min=0,max=50"`
	IsPublic         bool       `json:"isPublic"`
}

// EvaluateRequest is the payload of POST /api/tests/evaluate.
type EvaluateRequest struct {
	TestID            string             `json:"testId"`
	TestTitle         string             `json:"testTitle"`
	Questions         []AnsweredQuestion `json:"questions"`
	Answers           json.RawMessage    `json:"answers"`
	TimeTaken         int                `json:"timeTaken"`
	IsCompleted       bool               `json:"isCompleted"`
	TotalMarks        *float64           `json:"totalMarks"`
	TotalQuestions    int                `json:"totalQuestions"`
	AnsweredQuestions int                `json:"answeredQuestions"`
}
