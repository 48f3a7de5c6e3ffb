package errors

import stderrors "errors"

// Sentinel errors returned by native/delegation's AuthorityEngine.
var (
	ErrAgentIsZero                   = stderrors.New("authority: agent is the zero identity")
	ErrAgentIsPrincipal               = stderrors.New("authority: agent must differ from principal")
	ErrInitialAuthorityExceedsCeiling = stderrors.New("authority: initial authority exceeds ceiling")
	ErrDecayRateIsZero                = stderrors.New("authority: decay rate must be positive")
	ErrNotPrincipal                   = stderrors.New("authority: caller is not the relationship principal")
	ErrNotAlive                       = stderrors.New("authority: relationship is not alive")
	ErrSlashCooldownActive            = stderrors.New("authority: slash cooldown still active")
	ErrSlashAmountZero                = stderrors.New("authority: slash amount must be positive")
	ErrBoostAmountZero                = stderrors.New("authority: boost amount must be positive")
	ErrRelationshipNotFound           = stderrors.New("authority: relationship not found")
)
