package handler

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/testmaker/internal/model"
)

// MaxQuestionCount caps each question kind requested per test. It matches
// the max= rule on model.CreateTestRequest.
const MaxQuestionCount = 50

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		return model.Difficulty(fl.Field().String()).Valid()
	})
	return v
}

// validationError is a localizable rejection of a request payload.
type validationError struct {
	msgID string
	data  map[string]any
}

func validateCreate(req model.CreateTestRequest) *validationError {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			slog.Error("validator failed", "error", err)
			return &validationError{msgID: "InvalidRequestBody"}
		}
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return &validationError{"FieldRequired", map[string]any{"Field": fe.Field()}}
		case "difficulty":
			return &validationError{msgID: "InvalidDifficulty"}
		default:
			return &validationError{"CountOutOfRange", map[string]any{"Field": fe.Field(), "Max": MaxQuestionCount}}
		}
	}
	if req.MCQCount+req.ShortAnswerCount == 0 {
		return &validationError{msgID: "NoQuestionsRequested"}
	}
	return nil
}
