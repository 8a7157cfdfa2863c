package domain

import (
	"context"
	"fmt"
)

// Credential is one API key of the credential pool. Index is 1-based and stable
// for the life of the process.
type Credential struct {
	Index int
	Value string
}

// Label identifies the credential in logs without revealing the secret.
func (c Credential) Label() string {
	const visible = 6
	if len(c.Value) <= visible {
		return fmt.Sprintf("key#%d", c.Index)
	}
	return fmt.Sprintf("key#%d(%s…)", c.Index, c.Value[:visible])
}

// String never prints the secret.
func (c Credential) String() string {
	return c.Label()
}

// CredentialPool hands out credentials in configured order and records advisory
// per-credential state.
type CredentialPool interface {
	List() []Credential
	Mark(c Credential, outcome CallOutcome)
}

// QuizCaller performs one upstream generation call, with retries, for one credential.
type QuizCaller interface {
	Call(ctx context.Context, c Credential, prompt string) CallOutcome
}

// QuizGenerator produces a validated, randomized quiz for a prompt spec,
// rotating credentials as needed.
type QuizGenerator interface {
	Generate(ctx context.Context, spec PromptSpec) (*QuizDocument, error)
}
