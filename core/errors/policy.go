package errors

import stderrors "errors"

// Sentinel errors returned by native/delegation's PolicyEngine.
var (
	ErrInvalidTierCount          = stderrors.New("policy: tier count must be between 1 and 8")
	ErrTierAuthoritiesNotAscending = stderrors.New("policy: tier minimum authorities must be strictly ascending")
	ErrEpochDurationZero         = stderrors.New("policy: epoch duration must be positive")
	ErrTierArrayLengthMismatch   = stderrors.New("policy: tier parameter arrays disagree on length")
	ErrPolicyAlreadyRegistered   = stderrors.New("policy: already registered")
	ErrPolicyNotRegistered       = stderrors.New("policy: not registered")
	ErrPolicyNotPrincipal        = stderrors.New("policy: caller is not the relationship principal")
	ErrPolicyNotAlive            = stderrors.New("policy: relationship is not alive")
	ErrAlreadyBound              = stderrors.New("policy: relationship already bound to a policy")
	ErrNotBound                  = stderrors.New("policy: relationship has no bound policy")
	ErrPolicyNotAgent            = stderrors.New("policy: caller is not the relationship agent")
	ErrActionNotAllowed          = stderrors.New("policy: action not allowed at current tier")
	ErrBudgetExceeded            = stderrors.New("policy: spend exceeds tier budget")
	ErrTierNotFound              = stderrors.New("policy: tier index out of range")
	ErrBelowAllTiers             = stderrors.New("policy: authority below the lowest tier")
)
