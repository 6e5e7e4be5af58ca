// Package quiz turns user-supplied reading text into multiple-choice
// questions via a text-completion provider, normalizing the provider's reply
// into a fixed schema at the boundary.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"readquest/pkg/ai"
	"readquest/pkg/apperr"
	"readquest/pkg/domain"
)

const (
	DefaultQuestionCount = 4
	choicesPerQuestion   = 4

	systemPrompt = `You are a tutor. Generate MCQs from the supplied text. Reply ONLY in JSON with { "questions":[...] }.`
)

// Generator produces quizzes from reading text.
type Generator struct {
	gen ai.TextGenerator
}

// NewGenerator wires the text-completion collaborator.
func NewGenerator(gen ai.TextGenerator) *Generator {
	return &Generator{gen: gen}
}

// Generate requests n questions about text. The provider reply is validated
// structurally: a reply that is not an object with a questions array yields a
// KindMalformedResponse error carrying the raw payload; individual entries
// that do not fit the schema (four choices, answer index in range) are
// dropped rather than failing the whole batch.
func (g *Generator) Generate(ctx context.Context, text string, n int) ([]domain.Question, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "text is required")
	}
	if n <= 0 {
		n = DefaultQuestionCount
	}

	content, err := g.gen.GenerateText(ctx, systemPrompt, userPrompt(text, n))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, apperr.Malformed("quiz payload not valid JSON", []byte(content))
	}
	if len(parsed.Questions) == 0 {
		return nil, apperr.Malformed("quiz payload missing questions", []byte(content))
	}
	var questions []domain.Question
	if err := json.Unmarshal(parsed.Questions, &questions); err != nil {
		return nil, apperr.Malformed("quiz questions not a sequence", []byte(content))
	}

	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if !valid(q) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func valid(q domain.Question) bool {
	if strings.TrimSpace(q.Prompt) == "" {
		return false
	}
	if len(q.Choices) != choicesPerQuestion {
		return false
	}
	return q.AnswerIndex >= 0 && q.AnswerIndex < choicesPerQuestion
}

func userPrompt(text string, n int) string {
	return fmt.Sprintf(`
Create %d MCQs. Each:
{
 "question": "...",
 "choices": ["A","B","C","D"],
 "answerIndex": 0,
 "explanation": "..."
}
Text:
%s`, n, text)
}
