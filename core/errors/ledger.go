package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors returned by native/delegation's Ledger.
var (
	ErrLedgerNotAgent      = stderrors.New("ledger: caller is not the relationship agent")
	ErrLedgerNotAlive      = stderrors.New("ledger: relationship is not alive")
	ErrLedgerIndexOutOfRange = stderrors.New("ledger: entry index out of range")
)

// ChainIntegrityBroken reports the index of the first entry whose prev_hash
// does not match the hash of the preceding entry.
type ChainIntegrityBroken struct {
	Index uint64
}

func (e *ChainIntegrityBroken) Error() string {
	return fmt.Sprintf("ledger: chain integrity broken at entry %d", e.Index)
}

// NewChainIntegrityBroken constructs the indexed chain-break error.
func NewChainIntegrityBroken(index uint64) error {
	return &ChainIntegrityBroken{Index: index}
}
