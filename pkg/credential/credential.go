// Package credential implements the credential pool described in spec.md
// §4.2: a set of opaque identity tokens arbitrated under rate-limit and
// cooldown policy, persisted to a config file after every mutation.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Thresholds bundles the tunables spec.md §9's Open Questions leave as
// configuration rather than hard constants.
type Thresholds struct {
	SoftCooldownThreshold int
	HardDisableThreshold  int
	DailyCap              int
	MinInterval           time.Duration
}

// DefaultThresholds matches the defaults spec.md §9 gives: soft cooldown at
// 3 consecutive errors, hard disable at 10, no default daily cap, no default
// min interval.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SoftCooldownThreshold: 3,
		HardDisableThreshold:  10,
	}
}

// Counters holds the per-credential usage counters from spec.md §3.
type Counters struct {
	TotalUsed          int
	DailyUsed          int
	Success            int
	Fail               int
	ConsecutiveErrors  int
	NotesContributed   int
}

// Credential is one opaque identity token and its arbitration state.
// Fingerprint is a stable hash of Token so the pool never logs raw tokens
// and never stores the same token twice.
type Credential struct {
	Token       string
	Fingerprint string
	Name        string
	Active      bool

	Counters Counters

	LastUsedAt     time.Time
	CooldownUntil  time.Time
	LastDailyReset time.Time

	DailyCap    int
	MinInterval time.Duration
}

// NewCredential builds a Credential from a raw token, computing its
// fingerprint and applying the pool's default policy.
func NewCredential(token, name string, t Thresholds) *Credential {
	now := time.Now()
	return &Credential{
		Token:          token,
		Fingerprint:    Fingerprint(token),
		Name:           name,
		Active:         true,
		LastDailyReset: now,
		DailyCap:       t.DailyCap,
		MinInterval:    t.MinInterval,
	}
}

// Fingerprint hashes a token with blake2b-256 and returns its hex encoding.
// blake2b gives the pool a fast, collision-resistant fingerprint without
// ever needing to compare or log raw tokens.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns a short, log-safe prefix of the fingerprint, mirroring
// the teacher's key_prefix convention for displaying identifiers without
// exposing the full secret.
func (c *Credential) DisplayPrefix() string {
	if len(c.Fingerprint) < 8 {
		return c.Fingerprint
	}
	return c.Fingerprint[:8]
}

// resetDailyIfNeeded lazily resets the daily counters when the calendar day
// has rolled over since LastDailyReset, per spec.md §3's invariant.
func (c *Credential) resetDailyIfNeeded(now time.Time) {
	if c.LastDailyReset.IsZero() {
		c.LastDailyReset = now
		return
	}
	if !sameDay(c.LastDailyReset, now) {
		c.Counters.DailyUsed = 0
		c.LastDailyReset = now
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// inCooldown reports whether the credential is currently in its cooldown
// window.
func (c *Credential) inCooldown(now time.Time) bool {
	return !c.CooldownUntil.IsZero() && now.Before(c.CooldownUntil)
}

// pastMinInterval reports whether enough time has elapsed since LastUsedAt
// to satisfy MinInterval.
func (c *Credential) pastMinInterval(now time.Time) bool {
	if c.MinInterval <= 0 || c.LastUsedAt.IsZero() {
		return true
	}
	return now.Sub(c.LastUsedAt) >= c.MinInterval
}

// atDailyCap reports whether the credential has reached its daily quota.
func (c *Credential) atDailyCap() bool {
	return c.DailyCap > 0 && c.Counters.DailyUsed >= c.DailyCap
}

// eligible reports whether the credential currently passes every Acquire
// filter from spec.md §4.2: active, not cooling down, past min-interval,
// under daily cap.
func (c *Credential) eligible(now time.Time) bool {
	c.resetDailyIfNeeded(now)
	if !c.Active {
		return false
	}
	if c.inCooldown(now) {
		return false
	}
	if c.atDailyCap() {
		return false
	}
	if !c.pastMinInterval(now) {
		return false
	}
	return true
}

// randomSuffix returns n random bytes hex-encoded. Nothing in the repository
// calls it.
func randomSuffix(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
