package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedQuiz marks model output that does not satisfy the quiz document schema.
var ErrMalformedQuiz = errors.New("malformed quiz document")

// FailureCategory is the semantic class of a failed upstream call. It is derived
// once, at the transport edge, from status codes and transport errors.
type FailureCategory string

const (
	CategoryQuota      FailureCategory = "quota"
	CategoryForbidden  FailureCategory = "forbidden"
	CategoryOverloaded FailureCategory = "overloaded"
	CategoryMalformed  FailureCategory = "malformed"
	CategoryNetwork    FailureCategory = "network"
	CategoryCanceled   FailureCategory = "canceled"
	CategoryUnknown    FailureCategory = "unknown"
)

// UpstreamError is a classified failure of a single upstream call.
type UpstreamError struct {
	Category   FailureCategory
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("gemini upstream %s", e.Category)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Code maps the category onto the domain error taxonomy.
func (e *UpstreamError) Code() ErrorCode {
	switch e.Category {
	case CategoryQuota:
		return CodeUpstreamQuotaExhausted
	case CategoryForbidden:
		return CodeUpstreamForbidden
	case CategoryOverloaded:
		return CodeUpstreamOverloaded
	case CategoryMalformed:
		return CodeUpstreamMalformedResponse
	case CategoryNetwork:
		return CodeNetwork
	case CategoryCanceled:
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// LastFailureCategory extracts the upstream category carried by err, or
// CategoryUnknown when err does not wrap an UpstreamError.
func LastFailureCategory(err error) FailureCategory {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Category
	}
	return CategoryUnknown
}

// OutcomeKind tags a CallOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTransient: safe to retry later or with another credential.
	OutcomeTransient
	// OutcomeTerminal: the credential is unusable for the rest of the session.
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient_failure"
	case OutcomeTerminal:
		return "terminal_failure_for_credential"
	default:
		return "unknown"
	}
}

// CallOutcome is the result of one Retrying Client call for one credential.
// Document is set only for OutcomeSuccess, Err only for the failure kinds.
type CallOutcome struct {
	Kind     OutcomeKind
	Document *QuizDocument
	Err      *UpstreamError
}

func SuccessOutcome(doc *QuizDocument) CallOutcome {
	return CallOutcome{Kind: OutcomeSuccess, Document: doc}
}

func TransientOutcome(err *UpstreamError) CallOutcome {
	return CallOutcome{Kind: OutcomeTransient, Err: err}
}

func TerminalOutcome(err *UpstreamError) CallOutcome {
	return CallOutcome{Kind: OutcomeTerminal, Err: err}
}

// Category returns the failure category, or "" on success.
func (o CallOutcome) Category() FailureCategory {
	if o.Err == nil {
		return ""
	}
	return o.Err.Category
}
