package service

import (
	"fmt"

	"topicq/internal/domain"
)

const quizPromptTemplate = `Create a %s level multiple-choice quiz about: %s

Return only valid JSON, no additional text, with this structure:
{
  "title": "Quiz: <topic>",
  "difficulty": "%s",
  "questions": [
    {
      "q": "Question text here",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "answer_index": 0,
      "category": "Short category name"
    }
  ]
}

Rules:
- Generate exactly %d questions.
- Every question has exactly 4 distinct options.
- answer_index is the 0-based position of the single correct option.
- Make questions appropriate for the %s level and focused on practical application.`

// buildPrompt renders the model instruction for spec.
func buildPrompt(spec domain.PromptSpec) string {
	return fmt.Sprintf(quizPromptTemplate,
		spec.Difficulty, spec.Instruction, spec.Difficulty, spec.QuestionCount, spec.Difficulty)
}

// resume sub-prompt instructions, each rendered with the primary skills
var resumeInstructionTemplates = []string{
	"advanced interview questions about %s. Focus on complex scenarios, architectural decisions, performance optimization, and real-world problem-solving challenges.",
	"expert-level questions on %s. Include debugging complex issues, system design patterns, integration challenges, and best practices for production environments.",
	"challenging technical questions for %s. Focus on edge cases, security considerations, scalability issues, and advanced implementation details that experienced developers face.",
}

// fallbackTopics are used when no technical skills were extracted.
var fallbackTopics = []string{
	"professional problem solving, analytical thinking and decision making in the workplace",
	"communication, leadership and collaboration in technical teams",
	"project management, prioritization and risk management",
}

const topUpInstructionTemplate = "additional practical interview questions about %s, different from common introductory questions."
