package delegation

import (
	"math/big"
	"testing"

	coreerrors "authdelegation/core/errors"
	"authdelegation/crypto"
)

func newTestPolicyEngine() (*AuthorityEngine, *PolicyEngine, *fakeClock) {
	clock := &fakeClock{t: 1_000_000}
	authEngine := NewAuthorityEngine(NewMemStore())
	authEngine.SetClock(clock)
	policyEngine := NewPolicyEngine(NewMemStore(), authEngine)
	policyEngine.SetClock(clock)
	return authEngine, policyEngine, clock
}

func threeTierParams() (uint64, []*big.Int, []*big.Int, []bool, [][]crypto.Address) {
	epoch := uint64(86400)
	minAuthority := []*big.Int{scaled(10), scaled(100), scaled(1000)}
	spendCap := []*big.Int{
		new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1_000_000)),
		new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1_000_000)),
		new(big.Int).Mul(big.NewInt(50_000), big.NewInt(1_000_000)),
	}
	canSubDelegate := []bool{false, false, true}
	whitelist := [][]crypto.Address{nil, nil, nil}
	return epoch, minAuthority, spendCap, canSubDelegate, whitelist
}

func TestCreatePolicyRejectsNonAscendingTiers(t *testing.T) {
	_, policyEngine, _ := newTestPolicyEngine()
	epoch, minAuthority, spendCap, canSubDelegate, whitelist := threeTierParams()
	minAuthority[1] = minAuthority[0]
	if _, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist); err != coreerrors.ErrTierAuthoritiesNotAscending {
		t.Fatalf("expected ErrTierAuthoritiesNotAscending, got %v", err)
	}
}

// TestCreatePolicyRoundTrip mirrors invariant 8: re-registering identical
// parameters fails, and the id equals the content hash.
func TestCreatePolicyRoundTrip(t *testing.T) {
	_, policyEngine, _ := newTestPolicyEngine()
	epoch, minAuthority, spendCap, canSubDelegate, whitelist := threeTierParams()

	id, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist)
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if _, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist); err != coreerrors.ErrPolicyAlreadyRegistered {
		t.Fatalf("expected ErrPolicyAlreadyRegistered, got %v", err)
	}
	p, err := policyEngine.GetPolicy(id)
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	want := PolicyID(epoch, p.Tiers)
	if want != id {
		t.Fatalf("policy id does not equal content hash")
	}
}

// TestBindPolicyIsOneShot mirrors scenario 5.
func TestBindPolicyIsOneShot(t *testing.T) {
	authEngine, policyEngine, _ := newTestPolicyEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	relID, err := authEngine.Create(principal, agent, scaled(10), scaled(1000), big.NewInt(1))
	if err != nil {
		t.Fatalf("create relationship: %v", err)
	}
	epoch, minAuthority, spendCap, canSubDelegate, whitelist := threeTierParams()
	p1, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist)
	if err != nil {
		t.Fatalf("create policy 1: %v", err)
	}
	minAuthority[0] = scaled(5)
	p2, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist)
	if err != nil {
		t.Fatalf("create policy 2: %v", err)
	}
	if err := policyEngine.BindPolicy(principal, relID, p1); err != nil {
		t.Fatalf("bind policy 1: %v", err)
	}
	if err := policyEngine.BindPolicy(principal, relID, p2); err != coreerrors.ErrAlreadyBound {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
}

// TestEpochReset mirrors scenario 6.
func TestEpochReset(t *testing.T) {
	authEngine, policyEngine, clock := newTestPolicyEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	relID, err := authEngine.Create(principal, agent, scaled(1000), scaled(5000), big.NewInt(1))
	if err != nil {
		t.Fatalf("create relationship: %v", err)
	}
	epoch, minAuthority, spendCap, canSubDelegate, whitelist := threeTierParams()
	policyID, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist)
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if err := policyEngine.BindPolicy(principal, relID, policyID); err != nil {
		t.Fatalf("bind policy: %v", err)
	}

	tier3Cap := new(big.Int).Mul(big.NewInt(50_000), big.NewInt(1_000_000))
	if err := policyEngine.RecordSpend(agent, relID, tier3Cap); err != nil {
		t.Fatalf("spend full cap: %v", err)
	}
	if err := policyEngine.RecordSpend(agent, relID, big.NewInt(1)); err != coreerrors.ErrBudgetExceeded {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	clock.advance(86400)
	if err := authEngine.Boost(principal, relID, scaled(1)); err != nil {
		t.Fatalf("boost to keep tier 3: %v", err)
	}
	spendAmount := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1_000_000))
	if err := policyEngine.RecordSpend(agent, relID, spendAmount); err != nil {
		t.Fatalf("spend after epoch reset: %v", err)
	}
	_, remaining, _, err := policyEngine.AgentStatus(relID)
	if err != nil {
		t.Fatalf("agent status: %v", err)
	}
	wantRemaining := new(big.Int).Mul(big.NewInt(40_000), big.NewInt(1_000_000))
	if remaining.Cmp(wantRemaining) != 0 {
		t.Fatalf("expected remaining budget %s, got %s", wantRemaining, remaining)
	}
}

// TestAgentStatusBelowAllTiers mirrors scenario 7's policy-side assertion.
func TestAgentStatusBelowAllTiers(t *testing.T) {
	authEngine, policyEngine, clock := newTestPolicyEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	decay := big.NewInt(277_777_777_777_778)
	relID, err := authEngine.Create(principal, agent, scaled(100), scaled(500), decay)
	if err != nil {
		t.Fatalf("create relationship: %v", err)
	}
	epoch, minAuthority, spendCap, canSubDelegate, whitelist := threeTierParams()
	policyID, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist)
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if err := policyEngine.BindPolicy(principal, relID, policyID); err != nil {
		t.Fatalf("bind policy: %v", err)
	}
	ttz, err := authEngine.TimeToZero(relID)
	if err != nil {
		t.Fatalf("time to zero: %v", err)
	}
	clock.advance(ttz + 1)
	tier, _, _, err := policyEngine.AgentStatus(relID)
	if err != nil {
		t.Fatalf("agent status: %v", err)
	}
	if tier != BelowAllTiersSentinel {
		t.Fatalf("expected below-all-tiers sentinel, got tier %d", tier)
	}
}

func TestRecordSpendRequiresAgent(t *testing.T) {
	authEngine, policyEngine, _ := newTestPolicyEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	relID, err := authEngine.Create(principal, agent, scaled(1000), scaled(5000), big.NewInt(1))
	if err != nil {
		t.Fatalf("create relationship: %v", err)
	}
	epoch, minAuthority, spendCap, canSubDelegate, whitelist := threeTierParams()
	policyID, err := policyEngine.CreatePolicy(epoch, minAuthority, spendCap, canSubDelegate, whitelist)
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if err := policyEngine.BindPolicy(principal, relID, policyID); err != nil {
		t.Fatalf("bind policy: %v", err)
	}
	if err := policyEngine.RecordSpend(principal, relID, big.NewInt(1)); err != coreerrors.ErrPolicyNotAgent {
		t.Fatalf("expected ErrPolicyNotAgent, got %v", err)
	}
}
