package quizgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"topicq/internal/domain"
)

const quizText = `{"title":"Quiz: Go","difficulty":"easy","questions":[{"q":"Keyword for goroutines?","options":["go","async","spawn","fork"],"answer_index":0}]}`

var testCred = domain.Credential{Index: 1, Value: "secret-key-123"}

func envelope(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]string{"text": text}},
				},
			},
		},
	})
	require.NoError(t, err)
	return b
}

// scriptedServer answers the n-th request with statuses[n]; the last entry repeats.
func scriptedServer(t *testing.T, statuses []int, okBody []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		status := statuses[n]
		if status == http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(okBody)
			return
		}
		http.Error(w, `{"error":{"message":"nope"}}`, status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(t *testing.T, endpoint string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(Options{
		Endpoint:        endpoint,
		MaxRetries:      3,
		AttemptTimeouts: []time.Duration{2 * time.Second},
		BackoffBase:     time.Millisecond,
		ShortBackoff:    time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestGeminiClient_Call_Success(t *testing.T) {
	var gotKey, gotContentType string
	var gotBody gmReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write(envelope(t, "```json\n"+quizText+"\n```"))
	}))
	defer srv.Close()

	out := newTestClient(t, srv.URL).Call(context.Background(), testCred, "make a quiz")

	require.Equal(t, domain.OutcomeSuccess, out.Kind)
	require.NotNil(t, out.Document)
	assert.Equal(t, "Quiz: Go", out.Document.Title)
	assert.Len(t, out.Document.Questions, 1)
	assert.Equal(t, "secret-key-123", gotKey)
	assert.Equal(t, "application/json", gotContentType)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "make a quiz", gotBody.Contents[0].Parts[0].Text)
}

func TestGeminiClient_Call_StatusPolicy(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantKind     domain.OutcomeKind
		wantCategory domain.FailureCategory
		wantHits     int32
	}{
		{"503 then 200 retries on the same credential", []int{503, 200}, domain.OutcomeSuccess, "", 2},
		{"503 twice then 200", []int{503, 503, 200}, domain.OutcomeSuccess, "", 3},
		{"503 until max retries", []int{503}, domain.OutcomeTransient, domain.CategoryOverloaded, 3},
		{"429 is not retried", []int{429, 200}, domain.OutcomeTransient, domain.CategoryQuota, 1},
		{"403 is terminal for the credential", []int{403, 200}, domain.OutcomeTerminal, domain.CategoryForbidden, 1},
		{"500 gets one short retry", []int{500, 200}, domain.OutcomeSuccess, "", 2},
		{"500 twice gives up", []int{500, 500, 200}, domain.OutcomeTransient, domain.CategoryUnknown, 2},
		{"unexpected 400 gets one short retry", []int{400}, domain.OutcomeTransient, domain.CategoryUnknown, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := scriptedServer(t, tt.statuses, envelope(t, quizText))

			out := newTestClient(t, srv.URL).Call(context.Background(), testCred, "p")

			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantCategory, out.Category())
			assert.Equal(t, tt.wantHits, atomic.LoadInt32(hits))
			if tt.wantKind != domain.OutcomeSuccess {
				assert.Nil(t, out.Document)
				require.NotNil(t, out.Err)
				assert.NotZero(t, out.Err.StatusCode)
			}
		})
	}
}

func TestGeminiClient_Call_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"envelope is not json", []byte("<html>oops</html>")},
		{"no candidates", []byte(`{"candidates":[]}`)},
		{"quiz text is not json", envelope(t, "Here is a quiz about Go!")},
		{"quiz missing answer index", envelope(t, `{"questions":[{"q":"x","options":["a","b","c","d"]}]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := scriptedServer(t, []int{200}, tt.body)

			out := newTestClient(t, srv.URL).Call(context.Background(), testCred, "p")

			assert.Equal(t, domain.OutcomeTransient, out.Kind)
			assert.Equal(t, domain.CategoryMalformed, out.Category())
			assert.Equal(t, int32(1), atomic.LoadInt32(hits), "malformed output is not retried on the same credential")
		})
	}
}

func TestGeminiClient_Call_NetworkErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	out := newTestClient(t, endpoint).Call(context.Background(), testCred, "p")

	assert.Equal(t, domain.OutcomeTransient, out.Kind)
	assert.Equal(t, domain.CategoryNetwork, out.Category())
	require.NotNil(t, out.Err)
	assert.NotContains(t, out.Err.Error(), testCred.Value)
}

func TestGeminiClient_Call_EscalatingAttemptTimeout(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write(envelope(t, quizText))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(Options{
		Endpoint:        srv.URL,
		MaxRetries:      3,
		AttemptTimeouts: []time.Duration{50 * time.Millisecond, 2 * time.Second},
		BackoffBase:     time.Millisecond,
		ShortBackoff:    time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	out := c.Call(context.Background(), testCred, "p")

	assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 50*time.Millisecond, c.timeoutFor(1))
	assert.Equal(t, 2*time.Second, c.timeoutFor(2))
	assert.Equal(t, 2*time.Second, c.timeoutFor(7))
}

func TestGeminiClient_Call_BodyReadTimeoutIsRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&hits, 1) == 1 {
			_, _ = w.Write([]byte(`{"candidates":[`))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write(envelope(t, quizText))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(Options{
		Endpoint:        srv.URL,
		MaxRetries:      3,
		AttemptTimeouts: []time.Duration{100 * time.Millisecond, 2 * time.Second},
		BackoffBase:     time.Millisecond,
		ShortBackoff:    time.Millisecond,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	out := c.Call(context.Background(), testCred, "p")

	assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestDecodeFailureCategory(t *testing.T) {
	live := context.Background()
	expired, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-expired.Done()

	var syntaxTarget interface{}
	syntaxErr := json.Unmarshal([]byte("<html>"), &syntaxTarget)
	var typeTarget struct{ Candidates int }
	typeErr := json.Unmarshal([]byte(`{"Candidates":"x"}`), &typeTarget)

	assert.Equal(t, domain.CategoryMalformed, decodeFailureCategory(live, syntaxErr))
	assert.Equal(t, domain.CategoryMalformed, decodeFailureCategory(live, typeErr))
	assert.Equal(t, domain.CategoryNetwork, decodeFailureCategory(live, errors.New("connection reset by peer")))
	assert.Equal(t, domain.CategoryNetwork, decodeFailureCategory(expired, context.DeadlineExceeded))
}

// timedServer records the arrival time of every request and answers with statuses.
func timedServer(t *testing.T, statuses []int) (*httptest.Server, func() []time.Time) {
	t.Helper()
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n := len(arrivals)
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		if statuses[n] == http.StatusOK {
			_, _ = w.Write(envelope(t, quizText))
			return
		}
		w.WriteHeader(statuses[n])
	}))
	t.Cleanup(srv.Close)
	return srv, func() []time.Time {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Time(nil), arrivals...)
	}
}

func TestGeminiClient_Call_BackoffSchedule(t *testing.T) {
	t.Run("503 waits double each time", func(t *testing.T) {
		const base = 20 * time.Millisecond
		srv, arrivals := timedServer(t, []int{503, 503, 503, 200})
		c, err := NewGeminiClient(Options{
			Endpoint:     srv.URL,
			MaxRetries:   4,
			BackoffBase:  base,
			ShortBackoff: time.Hour,
		}, nil, zap.NewNop())
		require.NoError(t, err)

		out := c.Call(context.Background(), testCred, "p")
		require.Equal(t, domain.OutcomeSuccess, out.Kind)

		times := arrivals()
		require.Len(t, times, 4)
		for i := 1; i < len(times); i++ {
			want := base << (i - 1)
			assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), want, "wait before attempt %d", i+1)
		}
	})

	t.Run("other status waits the short backoff", func(t *testing.T) {
		const short = 60 * time.Millisecond
		srv, arrivals := timedServer(t, []int{500, 200})
		c, err := NewGeminiClient(Options{
			Endpoint:     srv.URL,
			MaxRetries:   3,
			BackoffBase:  time.Hour,
			ShortBackoff: short,
		}, nil, zap.NewNop())
		require.NoError(t, err)

		out := c.Call(context.Background(), testCred, "p")
		require.Equal(t, domain.OutcomeSuccess, out.Kind)

		times := arrivals()
		require.Len(t, times, 2)
		assert.GreaterOrEqual(t, times[1].Sub(times[0]), short)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	// "é" is two bytes; cutting at byte 2 would split it.
	got := truncate("aéb", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestGeminiClient_Call_CancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(Options{
		Endpoint:    srv.URL,
		MaxRetries:  5,
		BackoffBase: time.Minute,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	out := c.Call(ctx, testCred, "p")

	assert.Equal(t, domain.CategoryCanceled, out.Category())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, errors.Is(out.Err, context.Canceled))
}

func TestGeminiClient_Call_AlreadyCanceled(t *testing.T) {
	srv, hits := scriptedServer(t, []int{200}, envelope(t, quizText))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestClient(t, srv.URL).Call(ctx, testCred, "p")

	assert.Equal(t, domain.CategoryCanceled, out.Category())
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestGeminiClient_Probe(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		srv, _ := scriptedServer(t, []int{200}, envelope(t, "OK"))
		assert.NoError(t, newTestClient(t, srv.URL).Probe(context.Background(), testCred))
	})

	t.Run("rejected", func(t *testing.T) {
		srv, hits := scriptedServer(t, []int{403}, nil)
		err := newTestClient(t, srv.URL).Probe(context.Background(), testCred)
		require.Error(t, err)
		assert.Equal(t, domain.CategoryForbidden, domain.LastFailureCategory(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	})
}
