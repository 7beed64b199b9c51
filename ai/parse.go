package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/luantaraschi/petichat-definitive/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type thesisItem struct {
	Category string `json:"category" validate:"required"`
	Title    string `json:"title" validate:"required,max=300"`
	Content  string `json:"content" validate:"required"`
}

type thesisPayload struct {
	Theses []thesisItem `json:"theses" validate:"required,dive"`
}

type sectionItem struct {
	Type    string `json:"type"`
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
	Order   int    `json:"order" validate:"gte=0"`
}

type documentPayload struct {
	Title    string        `json:"title" validate:"required"`
	Sections []sectionItem `json:"sections" validate:"required,min=1,dive"`
}

var errEmptyOutput = errors.New("empty model output")

// extractJSON strips markdown fences and any prose around the JSON value
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return "", errEmptyOutput
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON value in model output")
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", fmt.Errorf("unterminated JSON value in model output")
	}
	return s[start : end+1], nil
}

// parseTheses decodes {"theses":[...]} or a bare array, validates every item
// and truncates to max.
func parseTheses(raw string, max int) ([]ThesisSuggestion, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var payload thesisPayload
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &payload.Theses); err != nil {
			return nil, fmt.Errorf("decode theses: %w", err)
		}
	} else if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("decode theses: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid theses: %w", err)
	}

	out := make([]ThesisSuggestion, 0, len(payload.Theses))
	for _, item := range payload.Theses {
		category, ok := NormalizeCategory(item.Category)
		if !ok {
			return nil, fmt.Errorf("invalid thesis category %q", item.Category)
		}
		out = append(out, ThesisSuggestion{
			Category: category,
			Title:    strings.TrimSpace(item.Title),
			Content:  strings.TrimSpace(item.Content),
		})
		if len(out) == max {
			break
		}
	}
	return out, nil
}

// parseDocument decodes and validates a structured document
func parseDocument(raw string) (*GeneratedDocument, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload documentPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}

	sections := make(models.DocumentSections, 0, len(payload.Sections))
	for i, s := range payload.Sections {
		order := s.Order
		if order == 0 {
			order = i + 1
		}
		sections = append(sections, models.DocumentSection{
			Type:    strings.TrimSpace(s.Type),
			Title:   strings.TrimSpace(s.Title),
			Content: s.Content,
			Order:   order,
		})
	}
	return finalizeDocument(payload.Title, sections), nil
}
