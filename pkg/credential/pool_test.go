package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SingleCredential_ColdStart(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	_, err := p.Add(ctx, "cookie-a", "cred_A")
	require.NoError(t, err)

	cred, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cred.Counters.TotalUsed)
}

func TestAcquire_FairRotation_RoundRobin(t *testing.T) {
	// P4: over any window of N consecutive successful Acquires, each
	// credential is chosen at most once.
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	for _, name := range []string{"a", "b", "c"} {
		_, err := p.Add(ctx, "cookie-"+name, name)
		require.NoError(t, err)
	}

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		cred, err := p.Acquire(ctx)
		require.NoError(t, err)
		seen[cred.Fingerprint]++
	}
	for fp, count := range seen {
		assert.Equalf(t, 1, count, "fingerprint %s chosen %d times in one window", fp, count)
	}
	assert.Len(t, seen, 3)
}

func TestAcquire_NoneWhenAllInCooldown(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	credA, err := p.Add(ctx, "cookie-a", "cred_A")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := p.ReportFailure(ctx, credA.Fingerprint, "rate_limited")
		require.NoError(t, err)
	}

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrNoEligibleCredential)
}

func TestReportFailure_SoftCooldownAndHardDisable(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	cred, err := p.Add(ctx, "cookie-a", "cred_A")
	require.NoError(t, err)

	var out FailureOutcome
	for i := 0; i < 3; i++ {
		out, err = p.ReportFailure(ctx, cred.Fingerprint, "rate_limited")
		require.NoError(t, err)
	}
	assert.True(t, out.EnteredCooldown, "expected cooldown after 3 consecutive errors")

	got, _ := p.Get(cred.Fingerprint)
	assert.True(t, got.Active, "3 errors must not hard-disable (threshold is 10)")

	for i := 0; i < 7; i++ {
		out, err = p.ReportFailure(ctx, cred.Fingerprint, "rate_limited")
		require.NoError(t, err)
	}
	assert.True(t, out.HardDisabled)
	got, _ = p.Get(cred.Fingerprint)
	assert.False(t, got.Active)
}

func TestReportSuccess_DecrementsConsecutiveErrorsWithFloor(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	cred, err := p.Add(ctx, "cookie-a", "cred_A")
	require.NoError(t, err)

	require.NoError(t, p.ReportSuccess(ctx, cred.Fingerprint, 1))
	got, _ := p.Get(cred.Fingerprint)
	assert.Equal(t, 0, got.Counters.ConsecutiveErrors, "floor at 0, never negative")
}

func TestScenario2_RateLimitRotation(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	credA, err := p.Add(ctx, "cookie-a", "cred_A")
	require.NoError(t, err)
	_, err = p.Add(ctx, "cookie-b", "cred_B")
	require.NoError(t, err)

	// cred_A hits the rate-limit sentinel once.
	_, err = p.ReportFailure(ctx, credA.Fingerprint, "rate_limited")
	require.NoError(t, err)

	gotA, _ := p.Get(credA.Fingerprint)
	assert.Equal(t, 1, gotA.Counters.ConsecutiveErrors)
	assert.False(t, gotA.inCooldown(time.Now()), "1 error must not trigger cooldown (threshold is 3)")
}

func TestFingerprint_StableAndUnique(t *testing.T) {
	assert.Equal(t, Fingerprint("same-token"), Fingerprint("same-token"))
	assert.NotEqual(t, Fingerprint("token-a"), Fingerprint("token-b"))
}

func TestAdd_DuplicateTokenIsNoop(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyRoundRobin, DefaultThresholds(), nil)
	_, err := p.Add(ctx, "cookie-a", "first-name")
	require.NoError(t, err)
	_, err = p.Add(ctx, "cookie-a", "second-name")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Size())
}

func TestLeastUsedStrategy_PrefersLowerDailyUsed(t *testing.T) {
	ctx := context.Background()
	p := New(StrategyLeastUsed, DefaultThresholds(), nil)
	credA, err := p.Add(ctx, "cookie-a", "a")
	require.NoError(t, err)
	_, err = p.Add(ctx, "cookie-b", "b")
	require.NoError(t, err)

	// Burn cred_A's usage up so cred_B is strictly less used.
	for i := 0; i < 5; i++ {
		p.mu.Lock()
		p.byFP[credA.Fingerprint].Counters.DailyUsed++
		p.mu.Unlock()
	}

	chosen, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, credA.Fingerprint, chosen.Fingerprint)
}
