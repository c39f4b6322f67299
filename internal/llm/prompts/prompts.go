package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/testmaker/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

const maxAnswerRunes = 10000

var (
	studentAnswersRegex = regexp.MustCompile(`(?i)</?\s*student-answers?\b[^>]*>`)
	codeFenceRegex      = regexp.MustCompile("```(?:json)?")
	jsonObjectRegex     = regexp.MustCompile(`(?s)\{.*\}`)
)

// ErrNoJSON is returned when a model reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object found in response")

var (
	loadOnce         sync.Once
	loadErr          error
	generateTemplate *template.Template
	evaluateTemplate *template.Template
)

// GenerateData holds template data for question generation prompts.
type GenerateData struct {
	Subject          string
	Prompt           string
	Difficulty       string
	EducationLevel   string
	MCQCount         int
	ShortAnswerCount int
}

// EvaluateData holds template data for attempt evaluation prompts.
type EvaluateData struct {
	TestTitle      string
	TotalQuestions int
	TotalMarks     string
	QuestionsJSON  string
}

func load() error {
	loadOnce.Do(func() {
		parse := func(name string) (*template.Template, error) {
			content, err := templateFS.ReadFile("templates/" + name)
			if err != nil {
				return nil, fmt.Errorf("read prompt file %s: %w", name, err)
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
			}
			return tmpl, nil
		}
		if generateTemplate, loadErr = parse("generate.txt"); loadErr != nil {
			return
		}
		evaluateTemplate, loadErr = parse("evaluate.txt")
	})
	return loadErr
}

// BuildGeneratePrompt renders the question generation prompt.
func BuildGeneratePrompt(req model.CreateTestRequest) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	difficulty := string(req.Difficulty)
	if difficulty == "" {
		difficulty = string(model.DifficultyMedium)
	}
	data := GenerateData{
		Subject:          sanitize(req.Subject),
		Prompt:           sanitize(req.Prompt),
		Difficulty:       difficulty,
		EducationLevel:   sanitize(req.EducationLevel),
		MCQCount:         req.MCQCount,
		ShortAnswerCount: req.ShortAnswerCount,
	}
	var buf bytes.Buffer
	if err := generateTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildEvaluatePrompt renders the grading prompt for a submitted attempt.
func BuildEvaluatePrompt(testTitle string, totalQuestions int, totalMarks *float64, questions []model.AnsweredQuestion) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	cleaned := make([]model.AnsweredQuestion, len(questions))
	for i, q := range questions {
		q.UserAnswer = sanitizeAnswer(q.UserAnswer, q.IsAnswered)
		cleaned[i] = q
	}
	questionsJSON, err := json.MarshalIndent(cleaned, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode questions: %w", err)
	}

	marks := "unknown"
	if totalMarks != nil {
		marks = strconv.FormatFloat(*totalMarks, 'f', -1, 64)
	}
	data := EvaluateData{
		TestTitle:      sanitize(testTitle),
		TotalQuestions: totalQuestions,
		TotalMarks:     marks,
		QuestionsJSON:  string(questionsJSON),
	}
	var buf bytes.Buffer
	if err := evaluateTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExtractJSON strips markdown code fences from a model reply and returns the
// outermost JSON object in it.
func ExtractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(codeFenceRegex.ReplaceAllString(raw, ""))
	match := jsonObjectRegex.FindString(cleaned)
	if match == "" {
		return "", ErrNoJSON
	}
	return match, nil
}

func sanitize(s string) string {
	s = studentAnswersRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func sanitizeAnswer(answer string, answered bool) string {
	answer = sanitize(answer)
	if !answered && answer == "" {
		return "[No answer provided]"
	}
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
