package credential

import (
	"strings"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"topicq/internal/domain"
)

// State is the advisory usability of a credential.
type State int32

const (
	StateUnknown State = iota
	StateUsable
	StateQuotaExhausted
	StateForbidden
)

func (s State) String() string {
	switch s {
	case StateUsable:
		return "usable"
	case StateQuotaExhausted:
		return "quota_exhausted"
	case StateForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

type entry struct {
	cred         domain.Credential
	state        *atomic.Int32
	attempts     *atomic.Int64
	successes    *atomic.Int64
	failures     *atomic.Int64
	updatedAt    *atomic.Int64
	lastCategory *atomic.String
}

// Pool is the process-wide ordered set of API credentials. State is advisory:
// Mark never removes a credential from List.
type Pool struct {
	entries []*entry
	logger  *zap.Logger
}

// CredentialStatus is one row of a pool snapshot.
type CredentialStatus struct {
	Index        int    `json:"index"`
	Label        string `json:"label"`
	State        string `json:"state"`
	Attempts     int64  `json:"attempts"`
	Successes    int64  `json:"successes"`
	Failures     int64  `json:"failures"`
	LastCategory string `json:"last_category,omitempty"`
	UpdatedAt    int64  `json:"updated_at,omitempty"`
}

// NewPool builds a pool from raw values in configured order. Blank values and
// duplicates are dropped; an empty result is a configuration error.
func NewPool(values []string, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]struct{}, len(values))
	p := &Pool{logger: logger}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		p.entries = append(p.entries, &entry{
			cred:         domain.Credential{Index: len(p.entries) + 1, Value: v},
			state:        atomic.NewInt32(int32(StateUnknown)),
			attempts:     atomic.NewInt64(0),
			successes:    atomic.NewInt64(0),
			failures:     atomic.NewInt64(0),
			updatedAt:    atomic.NewInt64(0),
			lastCategory: atomic.NewString(""),
		})
	}

	if len(p.entries) == 0 {
		return nil, domain.NewConfigurationError("no Gemini API keys configured: set GEMINI_API_KEY_1..N or GEMINI_API_KEY")
	}

	logger.Info("Credential pool initialized", zap.Int("credentials", len(p.entries)))
	return p, nil
}

// List returns the credentials in configured order. The slice is a copy.
func (p *Pool) List() []domain.Credential {
	out := make([]domain.Credential, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.cred
	}
	return out
}

// Len returns the number of credentials.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Mark records the outcome of a call made with c.
func (p *Pool) Mark(c domain.Credential, outcome domain.CallOutcome) {
	e := p.lookup(c)
	if e == nil {
		return
	}
	category := outcome.Category()
	if category == domain.CategoryCanceled {
		return
	}

	e.attempts.Inc()
	if outcome.Kind == domain.OutcomeSuccess {
		e.successes.Inc()
		p.setState(e, StateUsable)
		return
	}

	e.failures.Inc()
	e.lastCategory.Store(string(category))
	switch category {
	case domain.CategoryQuota:
		p.setState(e, StateQuotaExhausted)
	case domain.CategoryForbidden:
		p.setState(e, StateForbidden)
	}
}

// State returns the current advisory state of c.
func (p *Pool) State(c domain.Credential) State {
	e := p.lookup(c)
	if e == nil {
		return StateUnknown
	}
	return State(e.state.Load())
}

// Snapshot returns a point-in-time copy of every credential's state.
func (p *Pool) Snapshot() []CredentialStatus {
	out := make([]CredentialStatus, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, CredentialStatus{
			Index:        e.cred.Index,
			Label:        e.cred.Label(),
			State:        State(e.state.Load()).String(),
			Attempts:     e.attempts.Load(),
			Successes:    e.successes.Load(),
			Failures:     e.failures.Load(),
			LastCategory: e.lastCategory.Load(),
			UpdatedAt:    e.updatedAt.Load(),
		})
	}
	return out
}

func (p *Pool) setState(e *entry, s State) {
	old := State(e.state.Swap(int32(s)))
	e.updatedAt.Store(time.Now().UnixNano())
	if old != s {
		p.logger.Debug("Credential state changed",
			zap.String("credential", e.cred.Label()),
			zap.Stringer("from", old),
			zap.Stringer("to", s),
		)
	}
}

func (p *Pool) lookup(c domain.Credential) *entry {
	if c.Index >= 1 && c.Index <= len(p.entries) {
		if e := p.entries[c.Index-1]; e.cred.Value == c.Value {
			return e
		}
	}
	for _, e := range p.entries {
		if e.cred.Value == c.Value {
			return e
		}
	}
	return nil
}

var _ domain.CredentialPool = (*Pool)(nil)
