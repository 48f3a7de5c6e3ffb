package delegation

import (
	"log/slog"
	"math/big"

	coreerrors "authdelegation/core/errors"
	"authdelegation/core/events"
	"authdelegation/crypto"
)

// AuthorityReader is the narrow read-only view PolicyEngine takes of
// AuthorityEngine. PolicyEngine never writes authority state; it only
// resolves effective authority and the relationship's principal/agent/
// liveness to decide whether a call is authorized.
type AuthorityReader interface {
	GetRelationship(id Hash) (*Relationship, error)
	EffectiveAuthority(id Hash) (*big.Int, error)
}

// PolicyEngine owns policy registration, relationship bindings, and
// per-relationship epoch spend state. It depends on AuthorityEngine only
// through AuthorityReader.
type PolicyEngine struct {
	state     PolicyStore
	authority AuthorityReader
	emitter   events.Emitter
	clock     Clock
	log       *slog.Logger
}

// NewPolicyEngine constructs a PolicyEngine bound to the supplied store and
// authority reader.
func NewPolicyEngine(state PolicyStore, authority AuthorityReader) *PolicyEngine {
	return &PolicyEngine{
		state:     state,
		authority: authority,
		emitter:   events.NoopEmitter{},
		clock:     SystemClock{},
		log:       slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *PolicyEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source, primarily used in tests.
func (e *PolicyEngine) SetClock(c Clock) {
	if c == nil {
		c = SystemClock{}
	}
	e.clock = c
}

// SetLogger configures structured logging for the engine.
func (e *PolicyEngine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.log = logger
}

func (e *PolicyEngine) now() uint64 { return e.clock.Now() }

// CreatePolicy registers a new immutable, content-addressed policy.
func (e *PolicyEngine) CreatePolicy(epochDuration uint64, minAuthority, spendCap []*big.Int, canSubDelegate []bool, whitelist [][]crypto.Address) (Hash, error) {
	tierCount := len(minAuthority)
	if tierCount == 0 || tierCount > MaxTierCount {
		return Hash{}, coreerrors.ErrInvalidTierCount
	}
	if len(spendCap) != tierCount || len(canSubDelegate) != tierCount || len(whitelist) != tierCount {
		return Hash{}, coreerrors.ErrTierArrayLengthMismatch
	}
	if epochDuration == 0 {
		return Hash{}, coreerrors.ErrEpochDurationZero
	}

	tiers := make([]Tier, tierCount)
	for i := 0; i < tierCount; i++ {
		if err := validateAmount(minAuthority[i]); err != nil {
			return Hash{}, err
		}
		if err := validateAmount(spendCap[i]); err != nil {
			return Hash{}, err
		}
		if i > 0 && minAuthority[i].Cmp(minAuthority[i-1]) <= 0 {
			return Hash{}, coreerrors.ErrTierAuthoritiesNotAscending
		}
		tiers[i] = Tier{
			MinAuthority:   cloneAmount(minAuthority[i]),
			SpendCap:       cloneAmount(spendCap[i]),
			CanSubDelegate: canSubDelegate[i],
			Whitelist:      append([]crypto.Address(nil), whitelist[i]...),
		}
	}

	id := PolicyID(epochDuration, tiers)
	if _, ok, err := e.state.GetPolicy(id); err != nil {
		return Hash{}, err
	} else if ok {
		return Hash{}, coreerrors.ErrPolicyAlreadyRegistered
	}

	policy := &Policy{ID: id, EpochDuration: epochDuration, Tiers: tiers, Exists: true}
	if err := e.state.PutPolicy(policy); err != nil {
		return Hash{}, err
	}
	emit(e.emitter, newPolicyCreatedEvent(policy))
	e.log.Info("policy created", "policy", id, "tierCount", tierCount, "epochDuration", epochDuration)
	return id, nil
}

// BindPolicy attaches a registered policy to a relationship. One-shot,
// irreversible: a relationship may only ever bind once.
func (e *PolicyEngine) BindPolicy(caller crypto.Address, relID, policyID Hash) error {
	rel, err := e.authority.GetRelationship(relID)
	if err != nil {
		return err
	}
	if !rel.Principal.Equal(caller) {
		return coreerrors.ErrPolicyNotPrincipal
	}
	if !rel.Alive {
		return coreerrors.ErrPolicyNotAlive
	}
	if _, ok, err := e.state.GetPolicy(policyID); err != nil {
		return err
	} else if !ok {
		return coreerrors.ErrPolicyNotRegistered
	}
	if _, ok, err := e.state.GetBinding(relID); err != nil {
		return err
	} else if ok {
		return coreerrors.ErrAlreadyBound
	}
	if err := e.state.PutBinding(relID, policyID); err != nil {
		return err
	}
	emit(e.emitter, newPolicyBoundEvent(relID, policyID))
	e.log.Info("policy bound", "relationship", relID, "policy", policyID)
	return nil
}

// resolvedTier bundles what check_action, record_spend, and agent_status all
// need to recompute from a relationship id.
type resolvedTier struct {
	rel      *Relationship
	policy   *Policy
	tier     int
	auth     *big.Int
	spend    SpendState
	hasSpend bool
}

// resolve finds the relationship's binding and the highest tier its current
// effective authority qualifies for. tier is BelowAllTiersSentinel when
// unbound or below every tier's minimum.
func (e *PolicyEngine) resolve(relID Hash) (*resolvedTier, error) {
	rel, err := e.authority.GetRelationship(relID)
	if err != nil {
		return nil, err
	}
	policyID, ok, err := e.state.GetBinding(relID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &resolvedTier{rel: rel, tier: BelowAllTiersSentinel}, nil
	}
	policy, ok, err := e.state.GetPolicy(policyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &resolvedTier{rel: rel, tier: BelowAllTiersSentinel}, nil
	}
	auth, err := e.authority.EffectiveAuthority(relID)
	if err != nil {
		return nil, err
	}
	tier := BelowAllTiersSentinel
	for i := len(policy.Tiers) - 1; i >= 0; i-- {
		if auth.Cmp(policy.Tiers[i].MinAuthority) >= 0 {
			tier = i
			break
		}
	}
	spend, hasSpend, err := e.state.GetSpend(relID)
	if err != nil {
		return nil, err
	}
	return &resolvedTier{rel: rel, policy: policy, tier: tier, auth: auth, spend: spend, hasSpend: hasSpend}, nil
}

// CheckAction is an advisory query: it never mutates state.
func (e *PolicyEngine) CheckAction(relID Hash, target crypto.Address, amount *big.Int) (bool, int, error) {
	r, err := e.resolve(relID)
	if err != nil {
		return false, 0, err
	}
	if r.policy == nil {
		return false, 0, nil
	}
	if r.tier == BelowAllTiersSentinel {
		return false, 0, nil
	}
	tier := r.policy.Tiers[r.tier]
	if !tier.allows(target) {
		return false, r.tier, nil
	}
	epochExpired := r.spend.EpochStart == 0 || e.now() >= r.spend.EpochStart+r.policy.EpochDuration
	var remaining *big.Int
	if epochExpired {
		remaining = cloneAmount(tier.SpendCap)
	} else {
		remaining = saturatingSub(tier.SpendCap, r.spend.SpentInEpoch)
	}
	if amount != nil && amount.Cmp(remaining) > 0 {
		return false, r.tier, nil
	}
	return true, r.tier, nil
}

// RecordSpend is the sole authoritative mutator of epoch spend state. The
// caller must be the relationship's agent. It does not re-check the target
// whitelist: per spec, whitelist enforcement is advisory only here, a known
// defect of the source this was distilled from (see DESIGN.md).
func (e *PolicyEngine) RecordSpend(caller crypto.Address, relID Hash, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	r, err := e.resolve(relID)
	if err != nil {
		return err
	}
	if !r.rel.Alive {
		return coreerrors.ErrPolicyNotAlive
	}
	if !r.rel.Agent.Equal(caller) {
		return coreerrors.ErrPolicyNotAgent
	}
	if r.policy == nil {
		return coreerrors.ErrNotBound
	}
	if r.tier == BelowAllTiersSentinel {
		return coreerrors.ErrBelowAllTiers
	}
	tier := r.policy.Tiers[r.tier]
	now := e.now()
	spend := r.spend
	if !r.hasSpend || spend.EpochStart == 0 || now >= spend.EpochStart+r.policy.EpochDuration {
		spend = SpendState{EpochStart: now, SpentInEpoch: big.NewInt(0)}
	}
	newSpent := new(big.Int).Add(spend.SpentInEpoch, amount)
	if newSpent.Cmp(tier.SpendCap) > 0 {
		return coreerrors.ErrBudgetExceeded
	}
	spend.SpentInEpoch = newSpent
	if err := e.state.PutSpend(relID, spend); err != nil {
		return err
	}
	remaining := saturatingSub(tier.SpendCap, spend.SpentInEpoch)
	emit(e.emitter, newSpendRecordedEvent(relID, r.tier, amount, remaining))
	e.log.Info("spend recorded", "relationship", relID, "tier", r.tier, "amount", amount.String(), "remaining", remaining.String())
	return nil
}

// AgentStatus reports the current tier, remaining budget, and
// sub-delegation flag. Unbound or below-all-tiers relationships get the
// sentinel tier and zero values.
func (e *PolicyEngine) AgentStatus(relID Hash) (int, *big.Int, bool, error) {
	r, err := e.resolve(relID)
	if err != nil {
		return BelowAllTiersSentinel, big.NewInt(0), false, err
	}
	if r.policy == nil || r.tier == BelowAllTiersSentinel {
		return BelowAllTiersSentinel, big.NewInt(0), false, nil
	}
	tier := r.policy.Tiers[r.tier]
	epochExpired := r.spend.EpochStart == 0 || e.now() >= r.spend.EpochStart+r.policy.EpochDuration
	remaining := cloneAmount(tier.SpendCap)
	if !epochExpired {
		remaining = saturatingSub(tier.SpendCap, r.spend.SpentInEpoch)
	}
	return r.tier, remaining, tier.CanSubDelegate, nil
}

// AuthorityToNextTier reports how much more effective authority is needed
// to reach the next tier up, or 0 if unbound or already at the top tier.
func (e *PolicyEngine) AuthorityToNextTier(relID Hash) (*big.Int, error) {
	r, err := e.resolve(relID)
	if err != nil {
		return nil, err
	}
	if r.policy == nil {
		return big.NewInt(0), nil
	}
	if r.tier == BelowAllTiersSentinel {
		return saturatingSub(r.policy.Tiers[0].MinAuthority, r.auth), nil
	}
	if r.tier == len(r.policy.Tiers)-1 {
		return big.NewInt(0), nil
	}
	return saturatingSub(r.policy.Tiers[r.tier+1].MinAuthority, r.auth), nil
}

// GetPolicy returns stored policy fields verbatim.
func (e *PolicyEngine) GetPolicy(id Hash) (*Policy, error) {
	p, ok, err := e.state.GetPolicy(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.ErrPolicyNotRegistered
	}
	return p, nil
}

// GetTier returns a single tier's stored fields verbatim.
func (e *PolicyEngine) GetTier(policyID Hash, tierIndex int) (Tier, error) {
	p, ok, err := e.state.GetPolicy(policyID)
	if err != nil {
		return Tier{}, err
	}
	if !ok {
		return Tier{}, coreerrors.ErrPolicyNotRegistered
	}
	if tierIndex < 0 || tierIndex >= len(p.Tiers) {
		return Tier{}, coreerrors.ErrTierNotFound
	}
	return p.Tiers[tierIndex], nil
}
