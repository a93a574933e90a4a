// Package retrypolicy implements the Retry Strategy of spec.md §4.4: a pure
// decision function over an Outcome and the three enclosing budgets, with
// no knowledge of Transport or the Credential Pool themselves.
package retrypolicy

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hejianfang/xhs-crawl/pkg/transport"
)

// ActionKind is the decision Decide returns.
type ActionKind int

const (
	Succeed ActionKind = iota
	RotateCredential
	WaitAndRetry
	ShortBackoffRetry
	Fail
)

// Action is one decision, carrying a Duration for the two wait-based kinds
// and a Reason for Fail.
type Action struct {
	Kind     ActionKind
	Duration time.Duration
	Reason   string
}

// Budgets bundles the three enclosing limits spec.md §4.4 names.
type Budgets struct {
	MaxPerCredentialAttempts int           // (i) per_credential_attempts ≤ 3
	MaxWaitRounds            int           // (iii) wait_rounds ≤ 3
	CooldownWait             time.Duration // COOLDOWN_WAIT, default 10s
}

// DefaultBudgets matches spec.md §4.4's stated defaults.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxPerCredentialAttempts: 3,
		MaxWaitRounds:            3,
		CooldownWait:             10 * time.Second,
	}
}

// State tracks the counters Decide consults across one page's retry loop.
// Callers create a fresh State per page (or per logical retry unit) and feed
// it back into Decide after every attempt.
type State struct {
	AttemptWithinCredential int
	DistinctCredentialsTried int
	WaitRounds               int

	backoffState *backoff.ExponentialBackOff
}

// NewState creates a zeroed State with its own short-backoff generator for
// ShortBackoffRetry durations (SPEC_FULL.md §D1).
func NewState() *State {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 300 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return &State{backoffState: b}
}

// Decide implements spec.md §4.4's decision table. poolSize is the number of
// credentials held by the pool at decision time (callers pass Pool.Size(),
// which counts every credential regardless of eligibility).
func (s *State) Decide(outcome transport.Outcome, poolSize int, b Budgets) Action {
	if outcome == transport.OK {
		return Action{Kind: Succeed}
	}

	switch outcome {
	case transport.RateLimited, transport.AuthExpired:
		if s.DistinctCredentialsTried < poolSize {
			return Action{Kind: RotateCredential}
		}
		// Every known credential has been tried this page; wait a
		// round and retry from the top, unless wait rounds are spent.
		if s.WaitRounds < b.MaxWaitRounds {
			s.WaitRounds++
			s.DistinctCredentialsTried = 0
			s.AttemptWithinCredential = 0
			return Action{Kind: WaitAndRetry, Duration: b.CooldownWait}
		}
		return Action{Kind: Fail, Reason: "credential pool exhausted after wait rounds"}

	case transport.TransportError, transport.Unknown, transport.ServerError:
		if s.AttemptWithinCredential < b.MaxPerCredentialAttempts {
			s.AttemptWithinCredential++
			d, err := s.backoffState.NextBackOff()
			if err != nil {
				return Action{Kind: Fail, Reason: "backoff exhausted"}
			}
			return Action{Kind: ShortBackoffRetry, Duration: d}
		}
		if s.DistinctCredentialsTried < poolSize {
			return Action{Kind: RotateCredential}
		}
		return Action{Kind: Fail, Reason: "per-credential attempts and pool exhausted"}

	default:
		return Action{Kind: Fail, Reason: "unclassified outcome"}
	}
}

// NoteCredentialTried bumps the distinct-credentials-tried counter and
// resets the per-credential attempt counter for the newly rotated-to
// credential. Callers call this right after rotating.
func (s *State) NoteCredentialTried() {
	s.DistinctCredentialsTried++
	s.AttemptWithinCredential = 0
}
