package domain

import (
	"fmt"
	"strings"
)

// OptionsPerQuestion is the fixed number of answer options of every question.
const OptionsPerQuestion = 4

// Difficulty is the requested difficulty of a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts easy, medium or hard in any letter case.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyMedium:
		return DifficultyMedium, nil
	case DifficultyHard:
		return DifficultyHard, nil
	default:
		return "", NewInvalidInputError(fmt.Sprintf("invalid difficulty %q: must be easy, medium or hard", s))
	}
}

// PromptSpec describes one generation request. It is a value type and is never
// mutated after construction.
type PromptSpec struct {
	Instruction   string
	Difficulty    Difficulty
	QuestionCount int
}

// NewPromptSpec validates and builds a PromptSpec.
func NewPromptSpec(instruction string, difficulty Difficulty, questionCount int) (PromptSpec, error) {
	spec := PromptSpec{Instruction: strings.TrimSpace(instruction), Difficulty: difficulty, QuestionCount: questionCount}
	if err := spec.Validate(); err != nil {
		return PromptSpec{}, err
	}
	return spec, nil
}

// Validate checks a spec that may have been built as a struct literal.
func (s PromptSpec) Validate() error {
	if strings.TrimSpace(s.Instruction) == "" {
		return NewInvalidInputError("topic or instruction is required")
	}
	if _, err := ParseDifficulty(string(s.Difficulty)); err != nil {
		return err
	}
	if s.QuestionCount <= 0 {
		return NewInvalidInputError(fmt.Sprintf("question count must be positive, got %d", s.QuestionCount))
	}
	return nil
}

// Question is one multiple-choice question. Options[AnswerIndex] is the only
// correct option.
type Question struct {
	Text        string   `json:"q"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Category    string   `json:"category,omitempty"`
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.AnswerIndex]
}

// QuizDocument is a validated, structured quiz.
type QuizDocument struct {
	Title      string     `json:"title"`
	Difficulty string     `json:"difficulty"`
	Questions  []Question `json:"questions"`
}

// Clone returns a deep copy of the document.
func (d *QuizDocument) Clone() *QuizDocument {
	if d == nil {
		return nil
	}
	out := &QuizDocument{
		Title:      d.Title,
		Difficulty: d.Difficulty,
		Questions:  make([]Question, len(d.Questions)),
	}
	for i, q := range d.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	return out
}

// ResumeQuiz is the result of a resume-driven quiz composition.
type ResumeQuiz struct {
	QuizDocument
	ResumeFilename     string   `json:"resume_filename"`
	TotalQuestions     int      `json:"total_questions"`
	RequestedQuestions int      `json:"requested_questions"`
	ExtractedTopics    []string `json:"extracted_topics"`
	ExperienceLevel    int      `json:"experience_level"`
	// Degraded is set when fewer questions than requested could be generated.
	Degraded bool `json:"degraded"`
}
