package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/testmaker/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection to :memory: is a fresh empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS test_templates (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		education_level TEXT NOT NULL DEFAULT '',
		mcq_count INTEGER NOT NULL DEFAULT 0,
		short_answer_count INTEGER NOT NULL DEFAULT 0,
		questions TEXT NOT NULL DEFAULT '{}',
		creator_id TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_test_templates_creator ON test_templates(creator_id);

	CREATE TABLE IF NOT EXISTS test_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		test_id TEXT NOT NULL,
		test_title TEXT NOT NULL DEFAULT '',
		questions TEXT NOT NULL DEFAULT '[]',
		answers TEXT NOT NULL DEFAULT 'null',
		score REAL,
		total_marks REAL,
		feedback TEXT NOT NULL DEFAULT '[]',
		overall_feedback TEXT NOT NULL DEFAULT '',
		time_taken INTEGER NOT NULL DEFAULT 0,
		answered_questions INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		is_completed INTEGER NOT NULL DEFAULT 0,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (test_id) REFERENCES test_templates(id)
	);
	CREATE INDEX IF NOT EXISTS idx_test_attempts_test ON test_attempts(test_id);
	CREATE INDEX IF NOT EXISTS idx_test_attempts_user ON test_attempts(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const templateColumns = `id, title, prompt, subject, difficulty, education_level, mcq_count,
	short_answer_count, questions, creator_id, is_public, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (model.TestTemplate, error) {
	var t model.TestTemplate
	var questions string
	err := row.Scan(&t.ID, &t.Title, &t.Prompt, &t.Subject, &t.Difficulty, &t.EducationLevel,
		&t.MCQCount, &t.ShortAnswerCount, &questions, &t.CreatorID, &t.IsPublic, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return t, fmt.Errorf("decode questions of template %s: %w", t.ID, err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]model.TestTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	templates := []model.TestTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// CreateTemplate stores a template, assigning its ID and creation time.
func (s *Store) CreateTemplate(ctx context.Context, t model.TestTemplate) (model.TestTemplate, error) {
	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return t, fmt.Errorf("encode questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO test_templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Prompt, t.Subject, t.Difficulty, t.EducationLevel, t.MCQCount,
		t.ShortAnswerCount, string(questions), t.CreatorID, t.IsPublic, t.CreatedAt,
	)
	if err != nil {
		return t, err
	}
	return t, nil
}

// GetTemplate returns a template by ID, or nil if it does not exist.
func (s *Store) GetTemplate(ctx context.Context, id string) (*model.TestTemplate, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM test_templates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTemplatesByOwner returns all templates created by the given user, oldest first.
func (s *Store) ListTemplatesByOwner(ctx context.Context, ownerID string) ([]model.TestTemplate, error) {
	return s.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM test_templates WHERE creator_id = ? ORDER BY created_at, id`, ownerID)
}

// ListPublicTemplates returns all templates marked public.
func (s *Store) ListPublicTemplates(ctx context.Context) ([]model.TestTemplate, error) {
	return s.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM test_templates WHERE is_public = 1 ORDER BY created_at, id`)
}

const attemptColumns = `id, user_id, test_id, test_title, questions, answers, score, total_marks,
	feedback, overall_feedback, time_taken, answered_questions, total_questions, is_completed, submitted_at`

func scanAttempt(row rowScanner) (model.TestAttempt, error) {
	var a model.TestAttempt
	var questions, answers, feedback string
	var score, totalMarks sql.NullFloat64
	err := row.Scan(&a.ID, &a.UserID, &a.TestID, &a.TestTitle, &questions, &answers, &score, &totalMarks,
		&feedback, &a.OverallFeedback, &a.TimeTaken, &a.AnsweredQuestions, &a.TotalQuestions,
		&a.IsCompleted, &a.SubmittedAt)
	if err != nil {
		return a, err
	}
	if score.Valid {
		a.Score = &score.Float64
	}
	if totalMarks.Valid {
		a.TotalMarks = &totalMarks.Float64
	}
	if err := json.Unmarshal([]byte(questions), &a.Questions); err != nil {
		return a, fmt.Errorf("decode questions of attempt %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(feedback), &a.Feedback); err != nil {
		return a, fmt.Errorf("decode feedback of attempt %s: %w", a.ID, err)
	}
	a.Answers = json.RawMessage(answers)
	a.SubmittedAt = a.SubmittedAt.UTC()
	return a, nil
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...any) ([]model.TestAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attempts := []model.TestAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// CreateAttempt stores a graded attempt, assigning its ID. SubmittedAt
// defaults to the current time.
func (s *Store) CreateAttempt(ctx context.Context, a model.TestAttempt) (model.TestAttempt, error) {
	a.ID = uuid.NewString()
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = s.now()
	}
	a.SubmittedAt = a.SubmittedAt.UTC()
	if a.Questions == nil {
		a.Questions = []model.AnsweredQuestion{}
	}
	if a.Feedback == nil {
		a.Feedback = []model.QuestionFeedback{}
	}
	if len(a.Answers) == 0 {
		a.Answers = json.RawMessage("null")
	}

	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return a, fmt.Errorf("encode questions: %w", err)
	}
	feedback, err := json.Marshal(a.Feedback)
	if err != nil {
		return a, fmt.Errorf("encode feedback: %w", err)
	}
	if !json.Valid(a.Answers) {
		return a, fmt.Errorf("encode answers: invalid JSON")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO test_attempts (`+attemptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.TestID, a.TestTitle, string(questions), string(a.Answers),
		nullFloat(a.Score), nullFloat(a.TotalMarks), string(feedback), a.OverallFeedback,
		a.TimeTaken, a.AnsweredQuestions, a.TotalQuestions, a.IsCompleted, a.SubmittedAt,
	)
	if err != nil {
		return a, err
	}
	return a, nil
}

// GetAttempt returns an attempt by ID, or nil if it does not exist.
func (s *Store) GetAttempt(ctx context.Context, id string) (*model.TestAttempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAttemptsByUser returns all attempts submitted by the given user, oldest first.
func (s *Store) ListAttemptsByUser(ctx context.Context, userID string) ([]model.TestAttempt, error) {
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts WHERE user_id = ? ORDER BY submitted_at, id`, userID)
}

// ListAttemptsByTestIDs returns all attempts recorded against any of the given templates.
func (s *Store) ListAttemptsByTestIDs(ctx context.Context, testIDs []string) ([]model.TestAttempt, error) {
	if len(testIDs) == 0 {
		return []model.TestAttempt{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(testIDs)), ",")
	args := make([]any, len(testIDs))
	for i, id := range testIDs {
		args[i] = id
	}
	return s.queryAttempts(ctx,
		`SELECT `+attemptColumns+` FROM test_attempts WHERE test_id IN (`+placeholders+`) ORDER BY submitted_at, id`,
		args...)
}
