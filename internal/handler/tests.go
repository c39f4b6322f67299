package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/testmaker/internal/activity"
	appI18n "github.com/pavelanni/testmaker/internal/i18n"
	"github.com/pavelanni/testmaker/internal/llm"
	"github.com/pavelanni/testmaker/internal/model"
)

func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req model.CreateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequestBody", nil)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if verr := validateCreate(req); verr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": appI18n.Td(r.Context(), verr.msgID, verr.data),
		})
		return
	}

	ctx, cancel := h.llmContext(r.Context())
	defer cancel()
	questions, err := h.gen.GenerateQuestions(ctx, req)
	if err != nil {
		slog.Error("failed to generate questions", "user_id", user.ID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "CreateTestFailed", map[string]any{"error": err.Error()})
		return
	}

	tmpl, err := h.store.CreateTemplate(r.Context(), model.TestTemplate{
		Title:            req.Title,
		Prompt:           req.Prompt,
		Subject:          req.Subject,
		Difficulty:       req.Difficulty,
		EducationLevel:   req.EducationLevel,
		MCQCount:         req.MCQCount,
		ShortAnswerCount: req.ShortAnswerCount,
		Questions:        *questions,
		CreatorID:        user.ID,
		IsPublic:         req.IsPublic,
		CreatedAt:        h.now(),
	})
	if err != nil {
		slog.Error("failed to store template", "user_id", user.ID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "CreateTestFailed", map[string]any{"error": err.Error()})
		return
	}

	slog.Info("test created", "test_id", tmpl.ID, "user_id", user.ID,
		"mcqs", len(questions.MCQs), "short_answers", len(questions.ShortAnswers))
	writeJSON(w, http.StatusCreated, map[string]string{"testId": tmpl.ID})
}

func (h *Handler) handleEvaluateTest(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req model.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "InvalidRequestBody", nil)
		return
	}

	tmpl, err := h.store.GetTemplate(r.Context(), req.TestID)
	if err != nil {
		slog.Error("failed to get template", "test_id", req.TestID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "EvaluateTestFailed", map[string]any{"error": err.Error()})
		return
	}
	if tmpl == nil {
		writeMessage(w, r, http.StatusNotFound, "TestNotFound", nil)
		return
	}

	ctx, cancel := h.llmContext(r.Context())
	defer cancel()
	eval, err := h.gen.EvaluateAttempt(ctx, req)
	if errors.Is(err, llm.ErrMalformedResponse) {
		slog.Error("unparsable evaluation", "test_id", req.TestID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "ParseEvaluationFailed",
			map[string]any{"error": "Invalid JSON response from evaluation service"})
		return
	}
	if err != nil {
		slog.Error("failed to evaluate test", "test_id", req.TestID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "EvaluateTestFailed", map[string]any{"error": err.Error()})
		return
	}

	totalMarks := eval.TotalMarks
	if totalMarks == nil || *totalMarks == 0 {
		totalMarks = req.TotalMarks
	}

	attempt, err := h.store.CreateAttempt(r.Context(), model.TestAttempt{
		UserID:            user.ID,
		TestID:            tmpl.ID,
		TestTitle:         req.TestTitle,
		Questions:         req.Questions,
		Answers:           req.Answers,
		Score:             eval.Score,
		TotalMarks:        totalMarks,
		Feedback:          eval.Feedback,
		OverallFeedback:   eval.OverallFeedback,
		TimeTaken:         req.TimeTaken,
		AnsweredQuestions: req.AnsweredQuestions,
		TotalQuestions:    req.TotalQuestions,
		IsCompleted:       true,
		SubmittedAt:       h.now(),
	})
	if err != nil {
		slog.Error("failed to store attempt", "test_id", tmpl.ID, "user_id", user.ID, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "EvaluateTestFailed", map[string]any{"error": err.Error()})
		return
	}

	slog.Info("attempt evaluated", "attempt_id", attempt.ID, "test_id", tmpl.ID, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": attempt.ID})
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "MissingTestID")
		return
	}
	tmpl, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		slog.Error("failed to get template", "test_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	if tmpl == nil {
		writeError(w, r, http.StatusNotFound, "TestNotFound")
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "MissingTestID")
		return
	}
	attempt, err := h.store.GetAttempt(r.Context(), id)
	if err != nil {
		slog.Error("failed to get attempt", "attempt_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	if attempt == nil {
		writeError(w, r, http.StatusNotFound, "ResultNotFound")
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) handleMyTests(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	tests, err := h.store.ListTemplatesByOwner(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list templates", "user_id", user.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handlePublicTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListPublicTemplates(r.Context())
	if err != nil {
		slog.Error("failed to list public templates", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleAttempted(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	attempts, err := h.store.ListAttemptsByUser(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list attempts", "user_id", user.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	summary, err := activity.ForOwner(r.Context(), h.store, user.ID, h.now())
	if err != nil {
		slog.Error("failed to build activity summary", "user_id", user.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
