package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"topicq/internal/domain"
)

// --- MockQuizCaller ---
type MockQuizCaller struct {
	mock.Mock
}

func (m *MockQuizCaller) Call(ctx context.Context, c domain.Credential, prompt string) domain.CallOutcome {
	args := m.Called(ctx, c, prompt)
	return args.Get(0).(domain.CallOutcome)
}

// --- MockCredentialPool ---
type MockCredentialPool struct {
	mock.Mock
}

func (m *MockCredentialPool) List() []domain.Credential {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Credential)
}

func (m *MockCredentialPool) Mark(c domain.Credential, outcome domain.CallOutcome) {
	m.Called(c, outcome)
}

// --- MockQuizGenerator ---
type MockQuizGenerator struct {
	mock.Mock
}

func (m *MockQuizGenerator) Generate(ctx context.Context, spec domain.PromptSpec) (*domain.QuizDocument, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QuizDocument), args.Error(1)
}

// --- MockCache ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- fixtures ---

func testCredentials(n int) []domain.Credential {
	creds := make([]domain.Credential, n)
	for i := range creds {
		creds[i] = domain.Credential{Index: i + 1, Value: fmt.Sprintf("key-%d-abcdef", i+1)}
	}
	return creds
}

// makeDoc builds a document with n questions whose correct option is always
// the first one, text "correct-<prefix>-<i>".
func makeDoc(prefix string, n int) *domain.QuizDocument {
	doc := &domain.QuizDocument{Title: "Quiz: " + prefix, Difficulty: "medium"}
	for i := 0; i < n; i++ {
		doc.Questions = append(doc.Questions, domain.Question{
			Text: fmt.Sprintf("%s question %d?", prefix, i+1),
			Options: []string{
				fmt.Sprintf("correct-%s-%d", prefix, i+1),
				fmt.Sprintf("wrong-a-%s-%d", prefix, i+1),
				fmt.Sprintf("wrong-b-%s-%d", prefix, i+1),
				fmt.Sprintf("wrong-c-%s-%d", prefix, i+1),
			},
			AnswerIndex: 0,
		})
	}
	return doc
}

func quotaOutcome() domain.CallOutcome {
	return domain.TransientOutcome(&domain.UpstreamError{Category: domain.CategoryQuota, StatusCode: 429})
}

func forbiddenOutcome() domain.CallOutcome {
	return domain.TerminalOutcome(&domain.UpstreamError{Category: domain.CategoryForbidden, StatusCode: 403})
}

func malformedOutcome() domain.CallOutcome {
	return domain.TransientOutcome(&domain.UpstreamError{Category: domain.CategoryMalformed, StatusCode: 200})
}
