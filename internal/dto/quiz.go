package dto

import "topicq/internal/domain"

// GenerateQuizRequest is the body of POST /api/quiz
// @Description Request body for generating a topic quiz
type GenerateQuizRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

// ResumeQuizRequest is the body of POST /api/resume-quiz. Skills and experience
// are extracted from the resume by an upstream parser.
type ResumeQuizRequest struct {
	TechnicalSkills []string `json:"technical_skills"`
	ExperienceYears int      `json:"experience_years"`
	Filename        string   `json:"filename"`
}

// QuizResponse wraps a generated quiz
type QuizResponse struct {
	*domain.QuizDocument
	RequestID string `json:"request_id"`
}

// ResumeQuizResponse wraps a generated resume quiz
type ResumeQuizResponse struct {
	*domain.ResumeQuiz
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	Credentials int    `json:"credentials"`
	Cache       string `json:"cache"`
}

// CredentialStatusResponse is one entry of GET /api/credentials
type CredentialStatusResponse struct {
	Index        int    `json:"index"`
	Label        string `json:"label"`
	State        string `json:"state"`
	Attempts     int64  `json:"attempts"`
	Successes    int64  `json:"successes"`
	Failures     int64  `json:"failures"`
	LastCategory string `json:"last_category,omitempty"`
}

// CredentialsResponse is returned by GET /api/credentials
type CredentialsResponse struct {
	Credentials []CredentialStatusResponse `json:"credentials"`
}
