package delegation

import (
	"fmt"
	"math/big"

	"authdelegation/core/events"
	"authdelegation/core/types"
	"authdelegation/crypto"
)

const (
	TypeRelationshipCreated = "delegation.relationship.created"
	TypeHeartbeat           = "delegation.heartbeat"
	TypeBoosted             = "delegation.boosted"
	TypeSlashed             = "delegation.slashed"
	TypeKilled              = "delegation.killed"
	TypePolicyCreated       = "delegation.policy.created"
	TypePolicyBound         = "delegation.policy.bound"
	TypeSpendRecorded       = "delegation.spend.recorded"
	TypeActionLogged        = "delegation.action.logged"
)

// delegationEvent adapts a *types.Event into the events.Event interface so
// it can travel through an events.Emitter.
type delegationEvent struct {
	evt *types.Event
}

func (d delegationEvent) EventType() string {
	if d.evt == nil {
		return ""
	}
	return d.evt.Type
}

func emit(emitter events.Emitter, evt *types.Event) {
	if emitter == nil || evt == nil {
		return
	}
	emitter.Emit(delegationEvent{evt: evt})
}

func amountStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newRelationshipCreatedEvent(r *Relationship) *types.Event {
	return &types.Event{
		Type: TypeRelationshipCreated,
		Attributes: map[string]string{
			"relationshipId":  fmt.Sprintf("%x", r.ID),
			"principal":       r.Principal.String(),
			"agent":           r.Agent.String(),
			"initialAuthority": amountStr(r.StoredAuthority),
			"ceiling":         amountStr(r.Ceiling),
			"decayPerSecond":  amountStr(r.DecayPerSecond),
			"createdAt":       fmt.Sprintf("%d", r.CreatedAt),
		},
	}
}

func newHeartbeatEvent(r *Relationship) *types.Event {
	return &types.Event{
		Type: TypeHeartbeat,
		Attributes: map[string]string{
			"relationshipId":     fmt.Sprintf("%x", r.ID),
			"materializedAuthority": amountStr(r.StoredAuthority),
			"lastRefresh":        fmt.Sprintf("%d", r.LastRefresh),
		},
	}
}

func newBoostedEvent(r *Relationship, amount *big.Int) *types.Event {
	return &types.Event{
		Type: TypeBoosted,
		Attributes: map[string]string{
			"relationshipId": fmt.Sprintf("%x", r.ID),
			"amount":         amountStr(amount),
			"newAuthority":   amountStr(r.StoredAuthority),
		},
	}
}

func newSlashedEvent(r *Relationship, slasher crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: TypeSlashed,
		Attributes: map[string]string{
			"relationshipId": fmt.Sprintf("%x", r.ID),
			"slasher":        slasher.String(),
			"amount":         amountStr(amount),
			"newAuthority":   amountStr(r.StoredAuthority),
		},
	}
}

func newKilledEvent(r *Relationship) *types.Event {
	return &types.Event{
		Type: TypeKilled,
		Attributes: map[string]string{
			"relationshipId": fmt.Sprintf("%x", r.ID),
		},
	}
}

func newPolicyCreatedEvent(p *Policy) *types.Event {
	return &types.Event{
		Type: TypePolicyCreated,
		Attributes: map[string]string{
			"policyId":      fmt.Sprintf("%x", p.ID),
			"epochDuration": fmt.Sprintf("%d", p.EpochDuration),
			"tierCount":     fmt.Sprintf("%d", len(p.Tiers)),
		},
	}
}

func newPolicyBoundEvent(relID, policyID Hash) *types.Event {
	return &types.Event{
		Type: TypePolicyBound,
		Attributes: map[string]string{
			"relationshipId": fmt.Sprintf("%x", relID),
			"policyId":       fmt.Sprintf("%x", policyID),
		},
	}
}

func newSpendRecordedEvent(relID Hash, tier int, amount, remaining *big.Int) *types.Event {
	return &types.Event{
		Type: TypeSpendRecorded,
		Attributes: map[string]string{
			"relationshipId": fmt.Sprintf("%x", relID),
			"tier":           fmt.Sprintf("%d", tier),
			"amount":         amountStr(amount),
			"remaining":      amountStr(remaining),
		},
	}
}

func newActionLoggedEvent(e *LogEntry, index uint64) *types.Event {
	return &types.Event{
		Type: TypeActionLogged,
		Attributes: map[string]string{
			"relationshipId": fmt.Sprintf("%x", e.RelationshipID),
			"index":          fmt.Sprintf("%d", index),
			"actionKind":     e.ActionKind.String(),
			"target":         e.Target.String(),
			"value":          amountStr(e.Value),
			"authorityAtTime": amountStr(e.AuthorityAtTime),
			"timestamp":      fmt.Sprintf("%d", e.Timestamp),
		},
	}
}
