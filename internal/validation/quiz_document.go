package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"topicq/internal/domain"
)

// rawQuizDocument mirrors the model contract with pointer fields so that a
// missing field can be told apart from a zero value.
type rawQuizDocument struct {
	Title      *string        `json:"title"`
	Difficulty *string        `json:"difficulty"`
	Questions  *[]rawQuestion `json:"questions"`
}

type rawQuestion struct {
	Text        *string   `json:"q"`
	Options     *[]string `json:"options"`
	AnswerIndex *int      `json:"answer_index"`
	Category    *string   `json:"category"`
}

// ValidateQuizDocument parses raw model text into a QuizDocument. Every error
// wraps domain.ErrMalformedQuiz.
func ValidateQuizDocument(raw string) (*domain.QuizDocument, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return nil, malformed("empty model output")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var doc rawQuizDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", domain.ErrMalformedQuiz, err)
	}
	if dec.More() {
		return nil, malformed("unexpected content after JSON document")
	}

	if doc.Questions == nil {
		return nil, malformed("missing questions")
	}
	if len(*doc.Questions) == 0 {
		return nil, malformed("questions must not be empty")
	}

	out := &domain.QuizDocument{
		Questions: make([]domain.Question, 0, len(*doc.Questions)),
	}
	if doc.Title != nil {
		out.Title = strings.TrimSpace(*doc.Title)
	}
	if doc.Difficulty != nil {
		out.Difficulty = strings.TrimSpace(*doc.Difficulty)
	}

	for i, rq := range *doc.Questions {
		q, err := validateQuestion(rq)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		out.Questions = append(out.Questions, q)
	}
	return out, nil
}

func validateQuestion(rq rawQuestion) (domain.Question, error) {
	if rq.Text == nil || strings.TrimSpace(*rq.Text) == "" {
		return domain.Question{}, malformed("missing question text")
	}
	if rq.Options == nil {
		return domain.Question{}, malformed("missing options")
	}
	if len(*rq.Options) != domain.OptionsPerQuestion {
		return domain.Question{}, malformed(fmt.Sprintf("expected %d options, got %d", domain.OptionsPerQuestion, len(*rq.Options)))
	}

	options := make([]string, 0, domain.OptionsPerQuestion)
	seen := make(map[string]struct{}, domain.OptionsPerQuestion)
	for _, o := range *rq.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return domain.Question{}, malformed("empty option")
		}
		if _, dup := seen[o]; dup {
			return domain.Question{}, malformed(fmt.Sprintf("duplicate option %q", o))
		}
		seen[o] = struct{}{}
		options = append(options, o)
	}

	if rq.AnswerIndex == nil {
		return domain.Question{}, malformed("missing answer_index")
	}
	if *rq.AnswerIndex < 0 || *rq.AnswerIndex >= domain.OptionsPerQuestion {
		return domain.Question{}, malformed(fmt.Sprintf("answer_index %d out of range", *rq.AnswerIndex))
	}

	q := domain.Question{
		Text:        strings.TrimSpace(*rq.Text),
		Options:     options,
		AnswerIndex: *rq.AnswerIndex,
	}
	if rq.Category != nil {
		q.Category = strings.TrimSpace(*rq.Category)
	}
	return q, nil
}

// StripCodeFences removes a surrounding markdown code fence (``` or ```json)
// from model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. "json"
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedQuiz, reason)
}
