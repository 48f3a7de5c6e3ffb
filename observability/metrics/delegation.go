package metrics

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	coreerrors "authdelegation/core/errors"
)

// DelegationMetrics exposes Prometheus instrumentation for the three core
// subsystems. Nothing in native/delegation depends on this package; a
// caller records outcomes through the Observe* and SetEffectiveAuthority
// methods.
type DelegationMetrics struct {
	relationshipsCreated *prometheus.CounterVec
	heartbeats           *prometheus.CounterVec
	boosts               *prometheus.CounterVec
	slashes              *prometheus.CounterVec
	kills                *prometheus.CounterVec
	rejections           *prometheus.CounterVec

	policiesRegistered prometheus.Counter
	policyBindings     *prometheus.CounterVec
	spendRecorded      *prometheus.CounterVec
	budgetExceeded     *prometheus.CounterVec

	entriesLogged     *prometheus.CounterVec
	chainVerification *prometheus.CounterVec
	effectiveAuthority *prometheus.GaugeVec
}

var (
	delegationOnce     sync.Once
	delegationRegistry *DelegationMetrics
)

// Delegation returns the process-wide DelegationMetrics singleton,
// constructing and registering it with the default registry on first use.
func Delegation() *DelegationMetrics {
	delegationOnce.Do(func() {
		delegationRegistry = &DelegationMetrics{
			relationshipsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_relationships_created_total",
				Help: "Count of relationships created.",
			}, []string{"outcome"}),
			heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_heartbeats_total",
				Help: "Count of heartbeat calls by outcome.",
			}, []string{"outcome"}),
			boosts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_boosts_total",
				Help: "Count of boost calls by outcome.",
			}, []string{"outcome"}),
			slashes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_slashes_total",
				Help: "Count of slash calls by outcome.",
			}, []string{"outcome"}),
			kills: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_kills_total",
				Help: "Count of kill calls by outcome.",
			}, []string{"outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_rejections_total",
				Help: "Count of any core operation rejected, by error kind.",
			}, []string{"error"}),
			policiesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "delegation_policies_registered_total",
				Help: "Count of distinct policies successfully registered.",
			}),
			policyBindings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_policy_bindings_total",
				Help: "Count of policy bindings by outcome.",
			}, []string{"outcome"}),
			spendRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_spend_recorded_total",
				Help: "Count of record_spend calls by outcome.",
			}, []string{"outcome"}),
			budgetExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_budget_exceeded_total",
				Help: "Count of record_spend calls rejected for exceeding the tier budget, by tier.",
			}, []string{"tier"}),
			entriesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_ledger_entries_total",
				Help: "Count of ledger entries appended by action kind.",
			}, []string{"action_kind"}),
			chainVerification: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "delegation_chain_verifications_total",
				Help: "Count of verify_chain calls by result.",
			}, []string{"result"}),
			effectiveAuthority: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "delegation_effective_authority",
				Help: "Last observed effective authority for a relationship, sampled by the daemon's polling loop.",
			}, []string{"relationship"}),
		}
		prometheus.MustRegister(
			delegationRegistry.relationshipsCreated,
			delegationRegistry.heartbeats,
			delegationRegistry.boosts,
			delegationRegistry.slashes,
			delegationRegistry.kills,
			delegationRegistry.rejections,
			delegationRegistry.policiesRegistered,
			delegationRegistry.policyBindings,
			delegationRegistry.spendRecorded,
			delegationRegistry.budgetExceeded,
			delegationRegistry.entriesLogged,
			delegationRegistry.chainVerification,
			delegationRegistry.effectiveAuthority,
		)
	})
	return delegationRegistry
}

func outcomeLabel(err error) string {
	if err == nil {
		return "accepted"
	}
	return "rejected"
}

func (m *DelegationMetrics) ObserveCreate(err error) {
	if m == nil {
		return
	}
	m.relationshipsCreated.WithLabelValues(outcomeLabel(err)).Inc()
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObserveHeartbeat(err error) {
	if m == nil {
		return
	}
	m.heartbeats.WithLabelValues(outcomeLabel(err)).Inc()
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObserveBoost(err error) {
	if m == nil {
		return
	}
	m.boosts.WithLabelValues(outcomeLabel(err)).Inc()
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObserveSlash(err error) {
	if m == nil {
		return
	}
	m.slashes.WithLabelValues(outcomeLabel(err)).Inc()
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObserveKill(err error) {
	if m == nil {
		return
	}
	m.kills.WithLabelValues(outcomeLabel(err)).Inc()
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObservePolicyRegistered() {
	if m == nil {
		return
	}
	m.policiesRegistered.Inc()
}

func (m *DelegationMetrics) ObservePolicyBinding(err error) {
	if m == nil {
		return
	}
	m.policyBindings.WithLabelValues(outcomeLabel(err)).Inc()
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObserveSpendRecorded(tier int, err error) {
	if m == nil {
		return
	}
	m.spendRecorded.WithLabelValues(outcomeLabel(err)).Inc()
	if errors.Is(err, coreerrors.ErrBudgetExceeded) {
		m.budgetExceeded.WithLabelValues(tierLabel(tier)).Inc()
	}
	m.observeRejection(err)
}

func (m *DelegationMetrics) ObserveEntryLogged(actionKind string) {
	if m == nil {
		return
	}
	m.entriesLogged.WithLabelValues(normaliseLabel(actionKind)).Inc()
}

func (m *DelegationMetrics) ObserveChainVerification(ok bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !ok {
		result = "broken"
	}
	m.chainVerification.WithLabelValues(result).Inc()
}

func (m *DelegationMetrics) SetEffectiveAuthority(relationship string, value float64) {
	if m == nil {
		return
	}
	m.effectiveAuthority.WithLabelValues(normaliseLabel(relationship)).Set(value)
}

func (m *DelegationMetrics) observeRejection(err error) {
	if err == nil {
		return
	}
	m.rejections.WithLabelValues(normaliseLabel(err.Error())).Inc()
}

func tierLabel(tier int) string {
	if tier < 0 {
		return "unknown"
	}
	return strconv.Itoa(tier)
}

func normaliseLabel(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
