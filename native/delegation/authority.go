package delegation

import (
	"log/slog"
	"math/big"

	coreerrors "authdelegation/core/errors"
	"authdelegation/core/events"
	"authdelegation/crypto"
)

// slashCooldownSeconds is the minimum spacing enforced between two
// successful slashes from the same slasher against the same relationship.
const slashCooldownSeconds = 3600

// AuthorityEngine owns the decaying-authority state machine for every
// relationship. It has no dependency on PolicyEngine or Ledger; they depend
// on it through the narrow read-only interface AuthorityReader.
type AuthorityEngine struct {
	state   AuthorityStore
	emitter events.Emitter
	clock   Clock
	log     *slog.Logger
}

// NewAuthorityEngine constructs an engine bound to the supplied store, with a
// no-op emitter, the system clock, and a logger that discards its output.
func NewAuthorityEngine(state AuthorityStore) *AuthorityEngine {
	return &AuthorityEngine{
		state:   state,
		emitter: events.NoopEmitter{},
		clock:   SystemClock{},
		log:     slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	}
}

// SetEmitter configures the event emitter used by the engine. A nil emitter
// resets it to a no-op.
func (e *AuthorityEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source, primarily used in tests.
func (e *AuthorityEngine) SetClock(c Clock) {
	if c == nil {
		c = SystemClock{}
	}
	e.clock = c
}

// SetLogger configures structured logging for accepted and rejected calls.
func (e *AuthorityEngine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.log = logger
}

func (e *AuthorityEngine) now() uint64 { return e.clock.Now() }

// effective computes max(0, stored - (now-last)*decay), clamped at zero.
func effective(stored, decayPerSecond *big.Int, lastRefresh, now uint64) *big.Int {
	if now <= lastRefresh {
		return cloneAmount(stored)
	}
	elapsed := new(big.Int).SetUint64(now - lastRefresh)
	decayed := new(big.Int).Mul(elapsed, decayPerSecond)
	return saturatingSub(stored, decayed)
}

// Create registers a new relationship for (caller, agent) and returns its
// deterministic identifier.
func (e *AuthorityEngine) Create(caller, agent crypto.Address, initialAuthority, ceiling, decayPerSecond *big.Int) (Hash, error) {
	if agent.IsZero() {
		return Hash{}, coreerrors.ErrAgentIsZero
	}
	if agent.Equal(caller) {
		return Hash{}, coreerrors.ErrAgentIsPrincipal
	}
	if decayPerSecond == nil || decayPerSecond.Sign() == 0 {
		return Hash{}, coreerrors.ErrDecayRateIsZero
	}
	if err := validateAmount(initialAuthority); err != nil {
		return Hash{}, err
	}
	if err := validateAmount(ceiling); err != nil {
		return Hash{}, err
	}
	if err := validateAmount(decayPerSecond); err != nil {
		return Hash{}, err
	}
	if initialAuthority.Cmp(ceiling) > 0 {
		return Hash{}, coreerrors.ErrInitialAuthorityExceedsCeiling
	}

	seq, err := e.state.NextSequence(caller)
	if err != nil {
		return Hash{}, err
	}
	id := RelationshipID(caller, agent, seq)
	now := e.now()
	rel := &Relationship{
		ID:              id,
		Principal:       caller,
		Agent:           agent,
		StoredAuthority: cloneAmount(initialAuthority),
		Ceiling:         cloneAmount(ceiling),
		DecayPerSecond:  cloneAmount(decayPerSecond),
		LastRefresh:     now,
		CreatedAt:       now,
		Alive:           true,
	}
	if err := e.state.PutRelationship(rel); err != nil {
		return Hash{}, err
	}
	if err := e.state.PutActiveIndex(caller, agent, id); err != nil {
		return Hash{}, err
	}
	emit(e.emitter, newRelationshipCreatedEvent(rel))
	e.log.Info("relationship created", "relationship", id, "principal", caller.String(), "agent", agent.String())
	return id, nil
}

func (e *AuthorityEngine) load(id Hash) (*Relationship, error) {
	rel, ok, err := e.state.GetRelationship(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.ErrRelationshipNotFound
	}
	return rel, nil
}

// Heartbeat materializes decay without restoring authority. Principal-only,
// alive-only.
func (e *AuthorityEngine) Heartbeat(caller crypto.Address, id Hash) error {
	rel, err := e.load(id)
	if err != nil {
		return err
	}
	if !rel.Principal.Equal(caller) {
		return coreerrors.ErrNotPrincipal
	}
	if !rel.Alive {
		return coreerrors.ErrNotAlive
	}
	now := e.now()
	rel.StoredAuthority = effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, now)
	rel.LastRefresh = now
	if err := e.state.PutRelationship(rel); err != nil {
		return err
	}
	emit(e.emitter, newHeartbeatEvent(rel))
	e.log.Info("heartbeat", "relationship", id, "authority", rel.StoredAuthority.String())
	return nil
}

// Boost materializes decay, then adds amount up to the ceiling.
// Principal-only, alive-only.
func (e *AuthorityEngine) Boost(caller crypto.Address, id Hash, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return coreerrors.ErrBoostAmountZero
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	rel, err := e.load(id)
	if err != nil {
		return err
	}
	if !rel.Principal.Equal(caller) {
		return coreerrors.ErrNotPrincipal
	}
	if !rel.Alive {
		return coreerrors.ErrNotAlive
	}
	now := e.now()
	decayed := effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, now)
	rel.StoredAuthority = clampToCeiling(decayed, amount, rel.Ceiling)
	rel.LastRefresh = now
	if err := e.state.PutRelationship(rel); err != nil {
		return err
	}
	emit(e.emitter, newBoostedEvent(rel, amount))
	e.log.Info("boost", "relationship", id, "amount", amount.String(), "authority", rel.StoredAuthority.String())
	return nil
}

// Slash is permissionless but rate-limited per (caller, relationship) to one
// call per hour. It never terminates the relationship.
func (e *AuthorityEngine) Slash(caller crypto.Address, id Hash, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return coreerrors.ErrSlashAmountZero
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	rel, err := e.load(id)
	if err != nil {
		return err
	}
	if !rel.Alive {
		return coreerrors.ErrNotAlive
	}
	lastSlash, ok, err := e.state.GetLastSlash(caller, id)
	if err != nil {
		return err
	}
	now := e.now()
	if ok && lastSlash != 0 && now-lastSlash < slashCooldownSeconds {
		return coreerrors.ErrSlashCooldownActive
	}
	decayed := effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, now)
	rel.StoredAuthority = saturatingSub(decayed, amount)
	rel.LastRefresh = now
	if err := e.state.PutRelationship(rel); err != nil {
		return err
	}
	if err := e.state.PutLastSlash(caller, id, now); err != nil {
		return err
	}
	emit(e.emitter, newSlashedEvent(rel, caller, amount))
	e.log.Info("slash", "relationship", id, "slasher", caller.String(), "amount", amount.String(), "authority", rel.StoredAuthority.String())
	return nil
}

// Kill terminates the relationship. Principal-only, alive-only, irreversible.
func (e *AuthorityEngine) Kill(caller crypto.Address, id Hash) error {
	rel, err := e.load(id)
	if err != nil {
		return err
	}
	if !rel.Principal.Equal(caller) {
		return coreerrors.ErrNotPrincipal
	}
	if !rel.Alive {
		return coreerrors.ErrNotAlive
	}
	rel.Alive = false
	rel.StoredAuthority = big.NewInt(0)
	if err := e.state.PutRelationship(rel); err != nil {
		return err
	}
	emit(e.emitter, newKilledEvent(rel))
	e.log.Info("killed", "relationship", id)
	return nil
}

// EffectiveAuthority returns 0 for a dead relationship, otherwise the
// decayed value as of now.
func (e *AuthorityEngine) EffectiveAuthority(id Hash) (*big.Int, error) {
	rel, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !rel.Alive {
		return big.NewInt(0), nil
	}
	return effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, e.now()), nil
}

// TimeToZero returns the number of seconds until effective authority
// reaches zero, or 0 if already dead or already zero.
func (e *AuthorityEngine) TimeToZero(id Hash) (uint64, error) {
	rel, err := e.load(id)
	if err != nil {
		return 0, err
	}
	if !rel.Alive {
		return 0, nil
	}
	eff := effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, e.now())
	if eff.Sign() == 0 {
		return 0, nil
	}
	quotient := new(big.Int).Div(eff, rel.DecayPerSecond)
	return quotient.Uint64(), nil
}

// AuthorityAt projects linear decay from last_refresh to t. For t at or
// before last_refresh it returns the stored value as-is (see SPEC_FULL.md /
// DESIGN.md for why this is not a true historical query).
func (e *AuthorityEngine) AuthorityAt(id Hash, t uint64) (*big.Int, error) {
	rel, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !rel.Alive {
		return big.NewInt(0), nil
	}
	return effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, t), nil
}

// GetRelationship returns all stored fields verbatim.
func (e *AuthorityEngine) GetRelationship(id Hash) (*Relationship, error) {
	return e.load(id)
}

// ActiveRelationshipInfo is the result of ActiveRelationship.
type ActiveRelationshipInfo struct {
	ID        Hash
	Effective *big.Int
	Alive     bool
}

// ActiveRelationship resolves the most recently created relationship for a
// (principal, agent) pair and reports its current effective authority and
// liveness. Older relationships for the same pair remain independently
// reachable by id; they are not surfaced here.
func (e *AuthorityEngine) ActiveRelationship(principal, agent crypto.Address) (*ActiveRelationshipInfo, error) {
	id, ok, err := e.state.GetActiveIndex(principal, agent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, coreerrors.ErrRelationshipNotFound
	}
	rel, err := e.load(id)
	if err != nil {
		return nil, err
	}
	eff := big.NewInt(0)
	if rel.Alive {
		eff = effective(rel.StoredAuthority, rel.DecayPerSecond, rel.LastRefresh, e.now())
	}
	return &ActiveRelationshipInfo{ID: id, Effective: eff, Alive: rel.Alive}, nil
}

// discardWriter is an io.Writer that drops everything written to it, used
// as the default logging sink when no *slog.Logger is configured.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
