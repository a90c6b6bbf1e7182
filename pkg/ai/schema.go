package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const questionSetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "title": {"type": "string"},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["text", "options", "correctAnswer"],
        "properties": {
          "text": {"type": "string", "minLength": 1},
          "options": {
            "type": "array",
            "minItems": 4,
            "maxItems": 4,
            "items": {"type": "string", "minLength": 1}
          },
          "correctAnswer": {"type": "string", "minLength": 1},
          "score": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    }
  }
}`

var questionSet = jsonschema.MustCompileString("question_set.json", questionSetSchema)

// ParseQuestionSet decodes provider output. Markdown code fences are stripped
// and a bare array is accepted as the question list.
func ParseQuestionSet(content string) (GenerationResult, error) {
	content = stripFences(content)
	if content == "" {
		return GenerationResult{}, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return GenerationResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if list, ok := document.([]interface{}); ok {
		document = map[string]interface{}{"questions": list}
	}

	if err := questionSet.Validate(document); err != nil {
		return GenerationResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	normalized, err := json.Marshal(document)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var result GenerationResult
	if err := json.NewDecoder(bytes.NewReader(normalized)).Decode(&result); err != nil {
		return GenerationResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return result, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
