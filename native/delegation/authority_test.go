package delegation

import (
	"math/big"
	"testing"

	coreerrors "authdelegation/core/errors"
	"authdelegation/crypto"
)

func newTestEngine() (*AuthorityEngine, *fakeClock) {
	clock := &fakeClock{t: 1_000_000}
	engine := NewAuthorityEngine(NewMemStore())
	engine.SetClock(clock)
	return engine, clock
}

func scaled(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestCreateRejectsZeroAndSelfAgent(t *testing.T) {
	engine, _ := newTestEngine()
	principal := testAddress(0x01)

	var zeroAgent crypto.Address
	if _, err := engine.Create(principal, zeroAgent, scaled(1), scaled(10), big.NewInt(1)); err != coreerrors.ErrAgentIsZero {
		t.Fatalf("expected ErrAgentIsZero, got %v", err)
	}
	if _, err := engine.Create(principal, principal, scaled(1), scaled(10), big.NewInt(1)); err != coreerrors.ErrAgentIsPrincipal {
		t.Fatalf("expected ErrAgentIsPrincipal, got %v", err)
	}
}

func TestCreateBoundaryOnCeiling(t *testing.T) {
	engine, _ := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)

	if _, err := engine.Create(principal, agent, scaled(10), scaled(10), big.NewInt(1)); err != nil {
		t.Fatalf("initial == ceiling should succeed: %v", err)
	}
	over := new(big.Int).Add(scaled(10), big.NewInt(1))
	if _, err := engine.Create(principal, agent, over, scaled(10), big.NewInt(1)); err != coreerrors.ErrInitialAuthorityExceedsCeiling {
		t.Fatalf("expected ErrInitialAuthorityExceedsCeiling, got %v", err)
	}
}

// TestLinearDecay mirrors end-to-end scenario 1: after one hour, a decay
// rate of ~1 unit/hour brings a 50-unit balance down to ~49 units within a
// tolerance of 10^15.
func TestLinearDecay(t *testing.T) {
	engine, clock := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	decay := big.NewInt(277_777_777_777_778)

	id, err := engine.Create(principal, agent, scaled(50), scaled(500), decay)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.advance(3600)

	eff, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority: %v", err)
	}
	want := scaled(49)
	diff := new(big.Int).Sub(eff, want)
	diff.Abs(diff)
	tolerance := big.NewInt(1_000_000_000_000_000)
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("effective authority %s not within tolerance of %s", eff, want)
	}
}

// TestHeartbeatDoesNotRestore mirrors scenario 2: heartbeat materializes
// decay but never adds authority back, and resets the decay origin.
func TestHeartbeatDoesNotRestore(t *testing.T) {
	engine, clock := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	decay := big.NewInt(277_777_777_777_778)

	id, err := engine.Create(principal, agent, scaled(50), scaled(500), decay)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clock.advance(7200)

	before, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority: %v", err)
	}
	if err := engine.Heartbeat(principal, id); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	after, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority after heartbeat: %v", err)
	}
	if before.Cmp(after) != 0 {
		t.Fatalf("heartbeat changed effective authority: before=%s after=%s", before, after)
	}
	rel, err := engine.GetRelationship(id)
	if err != nil {
		t.Fatalf("get relationship: %v", err)
	}
	if rel.LastRefresh != clock.t {
		t.Fatalf("heartbeat did not reset decay origin: last_refresh=%d now=%d", rel.LastRefresh, clock.t)
	}
}

// TestHeartbeatIdempotent covers invariant 7: applying heartbeat twice with
// no time passing yields the same state as applying it once.
func TestHeartbeatIdempotent(t *testing.T) {
	engine, _ := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	id, err := engine.Create(principal, agent, scaled(50), scaled(500), big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Heartbeat(principal, id); err != nil {
		t.Fatalf("first heartbeat: %v", err)
	}
	once, _ := engine.GetRelationship(id)
	if err := engine.Heartbeat(principal, id); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
	twice, _ := engine.GetRelationship(id)
	if once.StoredAuthority.Cmp(twice.StoredAuthority) != 0 || once.LastRefresh != twice.LastRefresh {
		t.Fatalf("heartbeat not idempotent with no elapsed time")
	}
}

// TestBoostClampsToCeiling mirrors scenario 3.
func TestBoostClampsToCeiling(t *testing.T) {
	engine, _ := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	id, err := engine.Create(principal, agent, scaled(50), scaled(500), big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Boost(principal, id, scaled(500)); err != nil {
		t.Fatalf("boost: %v", err)
	}
	eff, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority: %v", err)
	}
	if eff.Cmp(scaled(500)) != 0 {
		t.Fatalf("expected boost to clamp to ceiling, got %s", eff)
	}
}

// TestBoostClampsWithoutOverflow covers the 2^128-1 boundary case.
func TestBoostClampsWithoutOverflow(t *testing.T) {
	engine, _ := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	id, err := engine.Create(principal, agent, scaled(50), scaled(500), big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	huge := new(big.Int).Set(maxUint128)
	if err := engine.Boost(principal, id, huge); err != nil {
		t.Fatalf("boost with huge amount should succeed via clamp: %v", err)
	}
	eff, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority: %v", err)
	}
	if eff.Cmp(scaled(500)) != 0 {
		t.Fatalf("expected clamp to ceiling, got %s", eff)
	}
}

// TestSlashCooldownAndFloor mirrors scenario 4.
func TestSlashCooldownAndFloor(t *testing.T) {
	engine, clock := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	slasherA, slasherB := testAddress(0x03), testAddress(0x04)

	id, err := engine.Create(principal, agent, scaled(100), scaled(500), big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Slash(slasherA, id, scaled(30)); err != nil {
		t.Fatalf("first slash: %v", err)
	}
	eff, _ := engine.EffectiveAuthority(id)
	if eff.Cmp(scaled(70)) != 0 {
		t.Fatalf("expected effective authority 70, got %s", eff)
	}
	if err := engine.Slash(slasherA, id, scaled(1)); err != coreerrors.ErrSlashCooldownActive {
		t.Fatalf("expected ErrSlashCooldownActive, got %v", err)
	}
	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	if err := engine.Slash(slasherB, id, huge); err != nil {
		t.Fatalf("second slasher should not be rate-limited: %v", err)
	}
	eff, _ = engine.EffectiveAuthority(id)
	if eff.Sign() != 0 {
		t.Fatalf("expected authority driven to zero, got %s", eff)
	}
	rel, _ := engine.GetRelationship(id)
	if !rel.Alive {
		t.Fatalf("slash must never kill a relationship")
	}
	_ = clock
}

// TestWalkaway mirrors scenario 7: after time_to_zero + 1, effective
// authority is exactly zero.
func TestWalkaway(t *testing.T) {
	engine, clock := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	decay := big.NewInt(277_777_777_777_778)
	id, err := engine.Create(principal, agent, scaled(100), scaled(500), decay)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ttz, err := engine.TimeToZero(id)
	if err != nil {
		t.Fatalf("time to zero: %v", err)
	}
	clock.advance(ttz + 1)
	eff, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority: %v", err)
	}
	if eff.Sign() != 0 {
		t.Fatalf("expected zero effective authority after walkaway, got %s", eff)
	}
}

// TestKillBlocksAllMutations covers the post-kill boundary behavior.
func TestKillBlocksAllMutations(t *testing.T) {
	engine, _ := newTestEngine()
	principal, agent := testAddress(0x01), testAddress(0x02)
	id, err := engine.Create(principal, agent, scaled(100), scaled(500), big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Kill(principal, id); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := engine.Heartbeat(principal, id); err != coreerrors.ErrNotAlive {
		t.Fatalf("expected ErrNotAlive from heartbeat, got %v", err)
	}
	if err := engine.Boost(principal, id, scaled(1)); err != coreerrors.ErrNotAlive {
		t.Fatalf("expected ErrNotAlive from boost, got %v", err)
	}
	if err := engine.Slash(agent, id, scaled(1)); err != coreerrors.ErrNotAlive {
		t.Fatalf("expected ErrNotAlive from slash, got %v", err)
	}
	eff, err := engine.EffectiveAuthority(id)
	if err != nil {
		t.Fatalf("effective authority: %v", err)
	}
	if eff.Sign() != 0 {
		t.Fatalf("expected zero effective authority after kill, got %s", eff)
	}
}

func TestNotPrincipalRejected(t *testing.T) {
	engine, _ := newTestEngine()
	principal, agent, stranger := testAddress(0x01), testAddress(0x02), testAddress(0x05)
	id, err := engine.Create(principal, agent, scaled(10), scaled(100), big.NewInt(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Heartbeat(stranger, id); err != coreerrors.ErrNotPrincipal {
		t.Fatalf("expected ErrNotPrincipal, got %v", err)
	}
}
