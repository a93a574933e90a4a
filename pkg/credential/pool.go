package credential

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Strategy selects which eligible credential Acquire returns.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategyLeastUsed  Strategy = "least_used"
)

// ErrNoEligibleCredential is returned by Acquire when every credential is
// filtered out (spec.md §4.2: "Emits None only if no credential passes the
// filter").
var ErrNoEligibleCredential = errors.New("credential pool: no eligible credential")

// Locker optionally coordinates Acquire across multiple crawler processes
// sharing one credential file (SPEC_FULL.md §D7). A nil Locker means the
// pool only serializes callers within this process, which is the default
// single-process scheduling model (spec.md §5).
type Locker interface {
	// TryLock attempts to take an exclusive, short-lived lock on
	// fingerprint. It returns false (no error) if the lock is already held
	// elsewhere.
	TryLock(ctx context.Context, fingerprint string) (bool, error)
}

// Persister flushes the pool's state after every mutation (spec.md §4.2:
// "Persisted to a config file after each mutation").
type Persister interface {
	Save(ctx context.Context, snapshot Snapshot) error
}

// Snapshot is the wire shape persisted by a Persister, matching spec.md §6's
// credential file format.
type Snapshot struct {
	Strategy Strategy        `json:"strategy"`
	Accounts []AccountRecord `json:"accounts"`
}

// AccountRecord is one credential as written to / read from the credential
// file, using the field names spec.md §6 requires.
type AccountRecord struct {
	CookieStr    string `json:"cookie_str"`
	Name         string `json:"name"`
	Remark       string `json:"remark"`
	IsActive     bool   `json:"is_active"`
	UseCount     int    `json:"use_count"`
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
	ErrorCount   int    `json:"error_count"`
	TotalNotes   int    `json:"total_notes"`
	DailyLimit   int    `json:"daily_limit"`
	MinInterval  int    `json:"min_interval"`
}

// Pool is the mutex-guarded credential pool of spec.md §4.2.
type Pool struct {
	mu         sync.Mutex
	byFP       map[string]*Credential
	order      []string // fingerprints, kept sorted for round-robin determinism
	cursor     int
	strategy   Strategy
	thresholds Thresholds
	persister  Persister
	locker     Locker
	rng        *rand.Rand
}

// New creates an empty Pool with the given rotation strategy and thresholds.
func New(strategy Strategy, t Thresholds, persister Persister) *Pool {
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	return &Pool{
		byFP:       make(map[string]*Credential),
		strategy:   strategy,
		thresholds: t,
		persister:  persister,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithLocker attaches an optional cross-process Locker (SPEC_FULL.md §D7).
func (p *Pool) WithLocker(l Locker) *Pool {
	p.locker = l
	return p
}

// Size returns the number of credentials currently held by the pool,
// regardless of eligibility.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Add inserts a credential if its fingerprint is not already present, then
// persists. It is a no-op (not an error) if the token is already known,
// matching spec.md §4.2's "inserts if fingerprint not present".
func (p *Pool) Add(ctx context.Context, token, name string) (*Credential, error) {
	p.mu.Lock()
	fp := Fingerprint(token)
	if existing, ok := p.byFP[fp]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	cred := NewCredential(token, name, p.thresholds)
	p.byFP[fp] = cred
	p.order = append(p.order, fp)
	sort.Strings(p.order)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	return cred, p.persist(ctx, snap)
}

// Remove deletes a credential by fingerprint and persists.
func (p *Pool) Remove(ctx context.Context, fingerprint string) error {
	p.mu.Lock()
	if _, ok := p.byFP[fingerprint]; !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.byFP, fingerprint)
	for i, fp := range p.order {
		if fp == fingerprint {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	return p.persist(ctx, snap)
}

// Acquire selects and stamps one eligible credential under the pool's
// rotation strategy, per spec.md §4.2. It returns ErrNoEligibleCredential
// when nothing passes the filter.
func (p *Pool) Acquire(ctx context.Context) (*Credential, error) {
	now := time.Now()

	p.mu.Lock()
	eligible := p.eligibleFingerprintsLocked(now)
	if len(eligible) == 0 {
		p.mu.Unlock()
		return nil, ErrNoEligibleCredential
	}

	fp := p.chooseLocked(eligible)
	cred := p.byFP[fp]
	p.mu.Unlock()

	if p.locker != nil {
		ok, err := p.locker.TryLock(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("credential pool: acquiring distributed lock: %w", err)
		}
		if !ok {
			// Another process holds this identity right now; the caller
			// should try Acquire again rather than block here.
			return nil, ErrNoEligibleCredential
		}
	}

	p.mu.Lock()
	cred.resetDailyIfNeeded(now)
	cred.LastUsedAt = now
	cred.Counters.TotalUsed++
	cred.Counters.DailyUsed++
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if err := p.persist(ctx, snap); err != nil {
		return nil, err
	}
	return cred, nil
}

// eligibleFingerprintsLocked must be called with p.mu held.
func (p *Pool) eligibleFingerprintsLocked(now time.Time) []string {
	out := make([]string, 0, len(p.order))
	for _, fp := range p.order {
		if p.byFP[fp].eligible(now) {
			out = append(out, fp)
		}
	}
	return out
}

// chooseLocked picks one fingerprint from the eligible set under the
// pool's rotation strategy. Must be called with p.mu held.
func (p *Pool) chooseLocked(eligible []string) string {
	switch p.strategy {
	case StrategyRandom:
		return eligible[p.rng.Intn(len(eligible))]
	case StrategyLeastUsed:
		sort.Slice(eligible, func(i, j int) bool {
			ci, cj := p.byFP[eligible[i]], p.byFP[eligible[j]]
			if ci.Counters.DailyUsed != cj.Counters.DailyUsed {
				return ci.Counters.DailyUsed < cj.Counters.DailyUsed
			}
			// tie-break toward longest-idle (oldest last_used_at)
			return ci.LastUsedAt.Before(cj.LastUsedAt)
		})
		return eligible[0]
	default: // round-robin, ordered by fingerprint (p.order is kept sorted)
		sort.Strings(eligible)
		fp := eligible[p.cursor%len(eligible)]
		p.cursor++
		return fp
	}
}

// ReportSuccess records a successful request against fp.
func (p *Pool) ReportSuccess(ctx context.Context, fingerprint string, notesDelta int) error {
	p.mu.Lock()
	cred, ok := p.byFP[fingerprint]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	cred.Counters.Success++
	cred.Counters.NotesContributed += notesDelta
	if cred.Counters.ConsecutiveErrors > 0 {
		cred.Counters.ConsecutiveErrors--
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()
	return p.persist(ctx, snap)
}

// FailureOutcome classifies the cooldown/disable a failure triggers, mainly
// so callers (and tests) can observe what ReportFailure decided.
type FailureOutcome struct {
	EnteredCooldown bool
	CooldownUntil   time.Time
	HardDisabled    bool
}

// ReportFailure records a failed request against fp and applies the
// cooldown/hard-disable policy of spec.md §4.2.
func (p *Pool) ReportFailure(ctx context.Context, fingerprint string, reason string) (FailureOutcome, error) {
	p.mu.Lock()
	cred, ok := p.byFP[fingerprint]
	if !ok {
		p.mu.Unlock()
		return FailureOutcome{}, nil
	}
	cred.Counters.Fail++
	cred.Counters.ConsecutiveErrors++

	var out FailureOutcome
	now := time.Now()
	if cred.Counters.ConsecutiveErrors >= p.thresholds.SoftCooldownThreshold {
		wait := time.Duration(cred.Counters.ConsecutiveErrors) * 5 * time.Minute
		if wait > 60*time.Minute {
			wait = 60 * time.Minute
		}
		cred.CooldownUntil = now.Add(wait)
		out.EnteredCooldown = true
		out.CooldownUntil = cred.CooldownUntil
	}
	if cred.Counters.ConsecutiveErrors >= p.thresholds.HardDisableThreshold {
		cred.Active = false
		out.HardDisabled = true
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	return out, p.persist(ctx, snap)
}

// SetStrategy changes the pool's rotation strategy and persists it, the
// Go equivalent of manage_cookie_pool.py's set_strategy.
func (p *Pool) SetStrategy(ctx context.Context, strategy Strategy) error {
	p.mu.Lock()
	p.strategy = strategy
	p.cursor = 0
	snap := p.snapshotLocked()
	p.mu.Unlock()
	return p.persist(ctx, snap)
}

// Reset clears cooldown and error counters and reactivates a credential.
func (p *Pool) Reset(ctx context.Context, fingerprint string) error {
	p.mu.Lock()
	cred, ok := p.byFP[fingerprint]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	cred.CooldownUntil = time.Time{}
	cred.Counters.ConsecutiveErrors = 0
	cred.Counters.DailyUsed = 0
	cred.Active = true
	snap := p.snapshotLocked()
	p.mu.Unlock()
	return p.persist(ctx, snap)
}

// Get returns a shallow copy's worth of credential state for observability,
// without exposing the mutex-guarded pointer.
func (p *Pool) Get(fingerprint string) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.byFP[fingerprint]
	if !ok {
		return Credential{}, false
	}
	return *c, true
}

// snapshotLocked builds the persistable Snapshot. Must be called with p.mu held.
func (p *Pool) snapshotLocked() Snapshot {
	accounts := make([]AccountRecord, 0, len(p.order))
	for _, fp := range p.order {
		c := p.byFP[fp]
		accounts = append(accounts, AccountRecord{
			CookieStr:    c.Token,
			Name:         c.Name,
			IsActive:     c.Active,
			UseCount:     c.Counters.TotalUsed,
			SuccessCount: c.Counters.Success,
			FailCount:    c.Counters.Fail,
			ErrorCount:   c.Counters.ConsecutiveErrors,
			TotalNotes:   c.Counters.NotesContributed,
			DailyLimit:   c.DailyCap,
			MinInterval:  int(c.MinInterval / time.Second),
		})
	}
	return Snapshot{Strategy: p.strategy, Accounts: accounts}
}

func (p *Pool) persist(ctx context.Context, snap Snapshot) error {
	if p.persister == nil {
		return nil
	}
	return p.persister.Save(ctx, snap)
}

// LoadSnapshot replaces the pool's contents with the given snapshot,
// used when loading a credential file at startup.
func (p *Pool) LoadSnapshot(snap Snapshot, t Thresholds) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Strategy != "" {
		p.strategy = snap.Strategy
	}
	p.byFP = make(map[string]*Credential, len(snap.Accounts))
	p.order = p.order[:0]
	for _, a := range snap.Accounts {
		c := NewCredential(a.CookieStr, a.Name, t)
		c.Active = a.IsActive
		c.Counters = Counters{
			TotalUsed:         a.UseCount,
			Success:           a.SuccessCount,
			Fail:              a.FailCount,
			ConsecutiveErrors: a.ErrorCount,
			NotesContributed:  a.TotalNotes,
		}
		if a.DailyLimit > 0 {
			c.DailyCap = a.DailyLimit
		}
		if a.MinInterval > 0 {
			c.MinInterval = time.Duration(a.MinInterval) * time.Second
		}
		p.byFP[c.Fingerprint] = c
		p.order = append(p.order, c.Fingerprint)
	}
	sort.Strings(p.order)
}
