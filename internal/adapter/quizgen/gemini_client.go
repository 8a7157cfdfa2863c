package quizgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"topicq/internal/domain"
	"topicq/internal/validation"
)

// DefaultEndpoint is the Gemini generateContent endpoint used when none is configured.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

const (
	maxResponseBytes = 4 << 20
	maxErrorBytes    = 4 << 10
	maxErrorMessage  = 200
)

// Options configures the retry policy of GeminiClient.
type Options struct {
	Endpoint string
	// MaxRetries bounds the number of attempts per call.
	MaxRetries int
	// AttemptTimeouts escalate per attempt; the last value repeats.
	AttemptTimeouts []time.Duration
	// BackoffBase is the first wait after a 503; it doubles on every retry.
	BackoffBase time.Duration
	// ShortBackoff is the wait before the single retry after a network error
	// or an unexpected status.
	ShortBackoff time.Duration
}

func (o *Options) defaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if len(o.AttemptTimeouts) == 0 {
		o.AttemptTimeouts = []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second}
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.ShortBackoff <= 0 {
		o.ShortBackoff = 500 * time.Millisecond
	}
}

// GeminiClient performs generateContent calls for a single credential with
// bounded retries. It is the only place where HTTP status codes are turned
// into failure categories.
type GeminiClient struct {
	hc     *http.Client
	opts   Options
	logger *zap.Logger
}

// NewGeminiClient creates a client. A nil http.Client means http.DefaultClient;
// per-attempt deadlines are applied through the request context.
func NewGeminiClient(opts Options, hc *http.Client, logger *zap.Logger) (*GeminiClient, error) {
	opts.defaults()
	if _, err := url.Parse(opts.Endpoint); err != nil {
		return nil, domain.NewConfigurationError(fmt.Sprintf("invalid Gemini endpoint %q", opts.Endpoint))
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{hc: hc, opts: opts, logger: logger}, nil
}

// request/response envelopes, minimal fields only
type gmPart struct {
	Text string `json:"text"`
}
type gmContent struct {
	Parts []gmPart `json:"parts"`
}
type gmReq struct {
	Contents []gmContent `json:"contents"`
}
type gmResp struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Call sends prompt with credential c and applies the retry policy:
//   - 503: exponential backoff up to MaxRetries attempts, then transient(overloaded)
//   - 429: transient(quota), no retry
//   - 403: terminal(forbidden), no retry
//   - other status or network error: one retry after ShortBackoff, then transient
//   - 200 with an invalid quiz: transient(malformed), no retry
func (c *GeminiClient) Call(ctx context.Context, cred domain.Credential, prompt string) domain.CallOutcome {
	body, err := json.Marshal(&gmReq{Contents: []gmContent{{Parts: []gmPart{{Text: prompt}}}}})
	if err != nil {
		return domain.TransientOutcome(&domain.UpstreamError{Category: domain.CategoryUnknown, Message: "encode request", Err: err})
	}

	shortRetryUsed := false
	for attempt := 1; ; attempt++ {
		text, upErr := c.doAttempt(ctx, cred, body, c.timeoutFor(attempt))
		if upErr == nil {
			doc, err := validation.ValidateQuizDocument(text)
			if err != nil {
				c.logger.Warn("Gemini returned an invalid quiz document",
					zap.String("credential", cred.Label()),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return domain.TransientOutcome(&domain.UpstreamError{
					Category: domain.CategoryMalformed, StatusCode: http.StatusOK, Err: err,
				})
			}
			c.logger.Debug("Gemini call succeeded",
				zap.String("credential", cred.Label()),
				zap.Int("attempt", attempt),
				zap.Int("questions", len(doc.Questions)),
			)
			return domain.SuccessOutcome(doc)
		}

		var wait time.Duration
		switch upErr.Category {
		case domain.CategoryForbidden:
			return domain.TerminalOutcome(upErr)
		case domain.CategoryQuota, domain.CategoryMalformed, domain.CategoryCanceled:
			return domain.TransientOutcome(upErr)
		case domain.CategoryOverloaded:
			if attempt >= c.opts.MaxRetries {
				return domain.TransientOutcome(upErr)
			}
			wait = c.opts.BackoffBase << (attempt - 1)
		default:
			if shortRetryUsed || attempt >= c.opts.MaxRetries {
				return domain.TransientOutcome(upErr)
			}
			shortRetryUsed = true
			wait = c.opts.ShortBackoff
		}

		c.logger.Warn("Retrying Gemini call",
			zap.String("credential", cred.Label()),
			zap.Int("attempt", attempt),
			zap.String("category", string(upErr.Category)),
			zap.Int("status", upErr.StatusCode),
			zap.Duration("backoff", wait),
		)
		if err := sleepWithCtx(ctx, wait); err != nil {
			return domain.TransientOutcome(&domain.UpstreamError{Category: domain.CategoryCanceled, Err: err})
		}
	}
}

// Probe checks that cred is accepted by the upstream with a one-word prompt.
// It makes a single attempt and does not validate the quiz schema.
func (c *GeminiClient) Probe(ctx context.Context, cred domain.Credential) error {
	body, err := json.Marshal(&gmReq{Contents: []gmContent{{Parts: []gmPart{{Text: "Reply with the single word OK."}}}}})
	if err != nil {
		return err
	}
	if _, upErr := c.doAttempt(ctx, cred, body, c.timeoutFor(1)); upErr != nil {
		return upErr
	}
	return nil
}

// doAttempt performs one HTTP round trip and returns the model text, or a
// classified error.
func (c *GeminiClient) doAttempt(ctx context.Context, cred domain.Credential, body []byte, timeout time.Duration) (string, *domain.UpstreamError) {
	if err := ctx.Err(); err != nil {
		return "", &domain.UpstreamError{Category: domain.CategoryCanceled, Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return "", &domain.UpstreamError{Category: domain.CategoryUnknown, Message: "invalid endpoint"}
	}
	q := u.Query()
	q.Set("key", cred.Value)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", &domain.UpstreamError{Category: domain.CategoryUnknown, Message: "build request"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &domain.UpstreamError{Category: domain.CategoryCanceled, Err: ctxErr}
		}
		return "", &domain.UpstreamError{Category: domain.CategoryNetwork, Err: scrubURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return "", &domain.UpstreamError{
			Category:   categoryForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    truncate(strings.TrimSpace(string(slurp)), maxErrorMessage),
		}
	}

	var gr gmResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&gr); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &domain.UpstreamError{Category: domain.CategoryCanceled, Err: ctxErr}
		}
		return "", &domain.UpstreamError{
			Category: decodeFailureCategory(attemptCtx, err), StatusCode: resp.StatusCode,
			Message: "decode envelope", Err: scrubURLError(err),
		}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 || gr.Candidates[0].Content.Parts[0].Text == "" {
		return "", &domain.UpstreamError{
			Category: domain.CategoryMalformed, StatusCode: resp.StatusCode,
			Message: "response has no candidate text",
		}
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

func (c *GeminiClient) timeoutFor(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(c.opts.AttemptTimeouts) {
		i = len(c.opts.AttemptTimeouts) - 1
	}
	return c.opts.AttemptTimeouts[i]
}

func categoryForStatus(status int) domain.FailureCategory {
	switch status {
	case http.StatusServiceUnavailable:
		return domain.CategoryOverloaded
	case http.StatusTooManyRequests:
		return domain.CategoryQuota
	case http.StatusForbidden:
		return domain.CategoryForbidden
	default:
		return domain.CategoryUnknown
	}
}

// scrubURLError drops the request URL, which carries the API key, from
// transport errors.
func scrubURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s request failed: %w", uerr.Op, uerr.Err)
	}
	return err
}

// decodeFailureCategory tells a body that is not a valid envelope apart from
// a body that could not be read, e.g. because the attempt deadline fired.
func decodeFailureCategory(attemptCtx context.Context, err error) domain.FailureCategory {
	if attemptCtx.Err() != nil {
		return domain.CategoryNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return domain.CategoryMalformed
	}
	return domain.CategoryNetwork
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// sleepWithCtx waits for d or until ctx is done.
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ domain.QuizCaller = (*GeminiClient)(nil)
