package llm

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// questionSetSchema describes the reply expected from a generation prompt.
const questionSetSchema = `{
  "type": "object",
  "required": ["mcqs", "shortAnswers"],
  "properties": {
    "mcqs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "options", "answer"],
        "properties": {
          "question": {"type": "string", "minLength": 1},
          "options": {"type": "array", "items": {"type": "string"}},
          "answer": {"type": "string"}
        }
      }
    },
    "shortAnswers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "answer"],
        "properties": {
          "question": {"type": "string", "minLength": 1},
          "answer": {"type": "string"}
        }
      }
    }
  }
}`

var questionSetLoader = gojsonschema.NewStringLoader(questionSetSchema)

// validateQuestionSet checks a generation reply against questionSetSchema.
func validateQuestionSet(jsonText string) error {
	result, err := gojsonschema.Validate(questionSetLoader, gojsonschema.NewStringLoader(jsonText))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("reply does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}
