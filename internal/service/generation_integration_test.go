package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"topicq/internal/adapter/quizgen"
	"topicq/internal/credential"
	"topicq/internal/domain"
)

const upstreamQuiz = `{"title":"Quiz: Go","difficulty":"easy","questions":[
{"q":"Q1?","options":["right-1","w1","w2","w3"],"answer_index":0},
{"q":"Q2?","options":["w1","right-2","w2","w3"],"answer_index":1},
{"q":"Q3?","options":["w1","w2","right-3","w3"],"answer_index":2},
{"q":"Q4?","options":["w1","w2","w3","right-4"],"answer_index":3}]}`

// fakeGemini answers per API key; each key has its own status script.
type fakeGemini struct {
	mu      sync.Mutex
	scripts map[string][]int
	hits    map[string]int
	order   []string
	body    string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	f.mu.Lock()
	n := f.hits[key]
	f.hits[key]++
	f.order = append(f.order, key)
	script := f.scripts[key]
	f.mu.Unlock()

	status := http.StatusForbidden
	if len(script) > 0 {
		if n >= len(script) {
			n = len(script) - 1
		}
		status = script[n]
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"candidates": []interface{}{map[string]interface{}{
			"content": map[string]interface{}{"parts": []interface{}{map[string]string{"text": f.body}}},
		}},
	})
}

func (f *fakeGemini) snapshot() (map[string]int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hits := make(map[string]int, len(f.hits))
	for k, v := range f.hits {
		hits[k] = v
	}
	return hits, append([]string(nil), f.order...)
}

func newIntegrationService(t *testing.T, fake *fakeGemini, keys ...string) (*GenerationService, *credential.Pool) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	pool, err := credential.NewPool(keys, zap.NewNop())
	require.NoError(t, err)
	client, err := quizgen.NewGeminiClient(quizgen.Options{
		Endpoint:        srv.URL + "/v1beta/models/test:generateContent",
		MaxRetries:      3,
		AttemptTimeouts: []time.Duration{2 * time.Second},
		BackoffBase:     time.Millisecond,
		ShortBackoff:    time.Millisecond,
	}, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	return NewGenerationService(pool, client, NewSeededAnswerRandomizer(9), DefaultQuestionCounts, zap.NewNop()), pool
}

func TestGenerationIntegration_QuotaThenSuccess(t *testing.T) {
	fake := &fakeGemini{
		scripts: map[string][]int{"k1": {429}, "k2": {429}, "k3": {200}},
		hits:    map[string]int{},
		body:    upstreamQuiz,
	}
	svc, pool := newIntegrationService(t, fake, "k1", "k2", "k3")

	doc, err := svc.GenerateQuiz(context.Background(), "Go", "easy")

	require.NoError(t, err)
	require.Len(t, doc.Questions, 4)
	for i, q := range doc.Questions {
		assert.Equal(t, []string{"right-1", "right-2", "right-3", "right-4"}[i], q.CorrectOption())
	}
	hits, order := fake.snapshot()
	assert.Equal(t, []string{"k1", "k2", "k3"}, order)
	assert.Equal(t, map[string]int{"k1": 1, "k2": 1, "k3": 1}, hits)

	states := []string{}
	for _, s := range pool.Snapshot() {
		states = append(states, s.State)
	}
	assert.Equal(t, []string{"quota_exhausted", "quota_exhausted", "usable"}, states)
}

func TestGenerationIntegration_AllForbidden(t *testing.T) {
	fake := &fakeGemini{scripts: map[string][]int{}, hits: map[string]int{}, body: upstreamQuiz}
	svc, _ := newIntegrationService(t, fake, "k1", "k2")

	_, err := svc.GenerateQuiz(context.Background(), "Go", "easy")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.CodeAllCredentialsExhausted))
	assert.Equal(t, domain.CategoryForbidden, domain.LastFailureCategory(err))
	hits, _ := fake.snapshot()
	assert.Equal(t, map[string]int{"k1": 1, "k2": 1}, hits)
}

func TestGenerationIntegration_OverloadRecoversWithoutRotation(t *testing.T) {
	fake := &fakeGemini{
		scripts: map[string][]int{"k1": {503, 200}, "k2": {200}},
		hits:    map[string]int{},
		body:    upstreamQuiz,
	}
	svc, _ := newIntegrationService(t, fake, "k1", "k2")

	doc, err := svc.GenerateQuiz(context.Background(), "Go", "easy")

	require.NoError(t, err)
	assert.Len(t, doc.Questions, 4)
	hits, _ := fake.snapshot()
	assert.Equal(t, 2, hits["k1"])
	assert.Zero(t, hits["k2"])
}

func TestGenerationIntegration_MalformedMovesOn(t *testing.T) {
	fake := &fakeGemini{
		scripts: map[string][]int{"k1": {200}, "k2": {200}},
		hits:    map[string]int{},
		body:    "this is not a quiz",
	}
	svc, _ := newIntegrationService(t, fake, "k1", "k2")

	_, err := svc.GenerateQuiz(context.Background(), "Go", "easy")

	require.Error(t, err)
	assert.Equal(t, domain.CategoryMalformed, domain.LastFailureCategory(err))
	hits, _ := fake.snapshot()
	assert.Equal(t, map[string]int{"k1": 1, "k2": 1}, hits)
}
