package delegation

import (
	"math/big"

	"authdelegation/crypto"
)

// MaxTierCount bounds the number of privilege tiers a single policy may
// define.
const MaxTierCount = 8

// BelowAllTiersSentinel is returned by AgentStatus when the relationship's
// current authority does not clear even the lowest tier, or when it has no
// bound policy.
const BelowAllTiersSentinel = MaxTierCount

// Relationship is the per-delegation record the AuthorityEngine owns.
type Relationship struct {
	ID               Hash
	Principal        crypto.Address
	Agent            crypto.Address
	StoredAuthority  *big.Int
	Ceiling          *big.Int
	DecayPerSecond   *big.Int
	LastRefresh      uint64
	CreatedAt        uint64
	Alive            bool
}

// Clone returns a deep copy so callers cannot mutate stored state through an
// aliased pointer.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	clone := *r
	clone.StoredAuthority = cloneAmount(r.StoredAuthority)
	clone.Ceiling = cloneAmount(r.Ceiling)
	clone.DecayPerSecond = cloneAmount(r.DecayPerSecond)
	return &clone
}

// Tier is one privilege level within a Policy.
type Tier struct {
	MinAuthority   *big.Int
	SpendCap       *big.Int
	CanSubDelegate bool
	Whitelist      []crypto.Address
}

func (t Tier) clone() Tier {
	clone := Tier{
		MinAuthority:   cloneAmount(t.MinAuthority),
		SpendCap:       cloneAmount(t.SpendCap),
		CanSubDelegate: t.CanSubDelegate,
	}
	if len(t.Whitelist) > 0 {
		clone.Whitelist = append([]crypto.Address(nil), t.Whitelist...)
	}
	return clone
}

// allows reports whether target is permitted at this tier. An empty
// whitelist means any target is allowed.
func (t Tier) allows(target crypto.Address) bool {
	if len(t.Whitelist) == 0 {
		return true
	}
	for _, allowed := range t.Whitelist {
		if allowed.Equal(target) {
			return true
		}
	}
	return false
}

// Policy is an immutable, content-addressed set of tiers and an epoch
// duration, registered once and never mutated.
type Policy struct {
	ID             Hash
	EpochDuration  uint64
	Tiers          []Tier
	Exists         bool
}

func (p *Policy) clone() *Policy {
	if p == nil {
		return nil
	}
	clone := &Policy{ID: p.ID, EpochDuration: p.EpochDuration, Exists: p.Exists}
	clone.Tiers = make([]Tier, len(p.Tiers))
	for i, t := range p.Tiers {
		clone.Tiers[i] = t.clone()
	}
	return clone
}

// SpendState tracks the open epoch window for a single relationship.
type SpendState struct {
	EpochStart   uint64
	SpentInEpoch *big.Int
}

func (s SpendState) clone() SpendState {
	return SpendState{EpochStart: s.EpochStart, SpentInEpoch: cloneAmount(s.SpentInEpoch)}
}

// ActionKind enumerates the categories a ledger entry may record. The core
// never interprets these beyond storing and hashing them; they exist for
// downstream auditors.
type ActionKind uint8

const (
	ActionTransfer ActionKind = iota
	ActionSwap
	ActionProvideLP
	ActionBorrow
	ActionDeploy
	ActionDelegate
	ActionGovernance
	ActionCustom
)

// String returns the canonical lowercase name of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionTransfer:
		return "transfer"
	case ActionSwap:
		return "swap"
	case ActionProvideLP:
		return "provide_lp"
	case ActionBorrow:
		return "borrow"
	case ActionDeploy:
		return "deploy"
	case ActionDelegate:
		return "delegate"
	case ActionGovernance:
		return "governance"
	case ActionCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// LogEntry is one element of a relationship's append-only ledger.
type LogEntry struct {
	RelationshipID  Hash
	ActionKind      ActionKind
	Target          crypto.Address
	Value           *big.Int
	AuthorityAtTime *big.Int
	Timestamp       uint64
	PrevHash        Hash
}

func (e *LogEntry) clone() *LogEntry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Value = cloneAmount(e.Value)
	clone.AuthorityAtTime = cloneAmount(e.AuthorityAtTime)
	return &clone
}

// Summary aggregates a relationship's ledger in a single pass.
type Summary struct {
	TotalActions     uint64
	HighestAuthority *big.Int
	LowestAuthority  *big.Int
	TotalValue       *big.Int
	FirstAction      uint64
	LastAction       uint64
}
