package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/timmy/pagepipe/internal/domain"
)

// recordSchema describes the JSON object a classifier must return.
// Identity fields may be null when the model has nothing to report.
const recordSchema = `{
  "type": "object",
  "required": ["identity", "tags", "content"],
  "properties": {
    "identity": {
      "type": "object",
      "properties": {
        "name": {"type": ["string", "null"]},
        "identifier": {"type": ["string", "null"]},
        "age": {"type": ["string", "number", "null"]},
        "gender": {"type": ["string", "null"]}
      }
    },
    "tags": {
      "type": "array",
      "items": {"type": "string"}
    },
    "content": {"type": "string"}
  }
}`

var compiledRecordSchema = mustCompileRecordSchema()

func mustCompileRecordSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", strings.NewReader(recordSchema)); err != nil {
		panic(fmt.Sprintf("add record schema: %v", err))
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		panic(fmt.Sprintf("compile record schema: %v", err))
	}
	return schema
}

var errNoJSON = errors.New("no JSON object found in response")

// rawRecord mirrors the classifier JSON loosely; age may arrive as a number.
type rawRecord struct {
	Identity struct {
		Name       *string          `json:"name"`
		Identifier *string          `json:"identifier"`
		Age        *json.RawMessage `json:"age"`
		Gender     *string          `json:"gender"`
	} `json:"identity"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
}

// ParseRecord validates classifier output and converts it into a record.
// Every failure is permanent: the same text yields the same malformed answer.
func ParseRecord(content string) (domain.StructuredRecord, error) {
	jsonStr, err := extractJSONObject(content)
	if err != nil {
		return domain.StructuredRecord{}, domain.NewPermanentError("classify", err)
	}

	var v any
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return domain.StructuredRecord{}, domain.NewPermanentError("classify", fmt.Errorf("failed to parse JSON: %w", err))
	}
	if err := compiledRecordSchema.Validate(v); err != nil {
		return domain.StructuredRecord{}, domain.NewPermanentError("classify", fmt.Errorf("record does not match schema: %w", err))
	}

	var raw rawRecord
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return domain.StructuredRecord{}, domain.NewPermanentError("classify", fmt.Errorf("failed to decode record: %w", err))
	}

	return domain.StructuredRecord{
		Identity: domain.PatientIdentity{
			Name:       deref(raw.Identity.Name),
			Identifier: deref(raw.Identity.Identifier),
			Age:        ageString(raw.Identity.Age),
			Gender:     deref(raw.Identity.Gender),
		},
		Tags:    NormalizeTags(raw.Tags),
		Content: strings.TrimSpace(raw.Content),
	}, nil
}

// NormalizeTags lowercases and dedupes tags, maps unknown ones to "other"
// and never returns an empty list.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		t = strings.NewReplacer(" ", "_", "-", "_").Replace(t)
		if t == "" {
			continue
		}
		if !slices.Contains(domain.KnownTags, t) {
			t = domain.TagOther
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, domain.TagOther)
	}
	return out
}

// extractJSONObject returns the first balanced JSON object in content,
// skipping markdown fences and any reasoning preamble.
func extractJSONObject(content string) (string, error) {
	if start := strings.Index(content, "<think>"); start != -1 {
		if end := strings.Index(content, "</think>"); end != -1 {
			content = content[end+len("</think>"):]
		}
	}

	jsonStart := strings.Index(content, "{")
	if jsonStart == -1 {
		return "", errNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := jsonStart; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[jsonStart : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("incomplete JSON in response")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func ageString(raw *json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(*raw, &n); err == nil {
		return n.String()
	}
	return ""
}
