package delegation

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"authdelegation/crypto"
)

// Hash is the 32-byte keccak256 digest used uniformly for relationship
// identifiers, policy identifiers, and ledger entry/chain hashes. A single
// hash choice, used consistently everywhere, is the only requirement spec
// §6 places on the "Consumed" hash function.
type Hash [32]byte

// IsZero reports whether h is the zero hash (the chain-head sentinel for an
// empty ledger, and the prev_hash of an entry at index 0).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func keccak(parts ...[]byte) Hash {
	return Hash(ethcrypto.Keccak256Hash(parts...))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// encodeAmount128 left-pads v into a fixed 16-byte big-endian buffer.
// big.Int.FillBytes panics when v does not fit in 16 bytes, so callers must
// validateAmount first.
func encodeAmount128(v *big.Int) []byte {
	buf := make([]byte, 16)
	if v == nil {
		return buf
	}
	return v.FillBytes(buf)
}

func encodeAddress(a crypto.Address) []byte {
	b := a.Bytes()
	if len(b) == 0 {
		return make([]byte, 20)
	}
	return b
}

// RelationshipID computes the deterministic identifier for a newly created
// relationship: hash(principal || agent || sequence_number).
func RelationshipID(principal, agent crypto.Address, sequence uint64) Hash {
	return keccak(encodeAddress(principal), encodeAddress(agent), encodeUint64(sequence))
}

// canonicalPolicyEncoding builds the length-unambiguous byte sequence a
// PolicyID is derived from: epoch_duration, then per tier in index order
// min_authority, spend_cap, can_sub_delegate, whitelist length, and each
// whitelist address.
func canonicalPolicyEncoding(epochDuration uint64, tiers []Tier) []byte {
	parts := make([][]byte, 0, 1+len(tiers)*5)
	parts = append(parts, encodeUint64(epochDuration))
	for _, t := range tiers {
		parts = append(parts,
			encodeAmount128(t.MinAuthority),
			encodeAmount128(t.SpendCap),
			encodeBool(t.CanSubDelegate),
			encodeUint64(uint64(len(t.Whitelist))),
		)
		for _, addr := range t.Whitelist {
			parts = append(parts, encodeAddress(addr))
		}
	}
	return flatten(parts)
}

// PolicyID computes the content-addressed identifier for a policy: two
// calls with identical parameters must yield identical ids.
func PolicyID(epochDuration uint64, tiers []Tier) Hash {
	return keccak(canonicalPolicyEncoding(epochDuration, tiers))
}

// canonicalEntryEncoding builds the length-unambiguous byte sequence an
// entry hash is derived from, concatenating the seven LogEntry fields in
// their declaration order.
func canonicalEntryEncoding(e *LogEntry) []byte {
	return flatten([][]byte{
		e.RelationshipID[:],
		{byte(e.ActionKind)},
		encodeAddress(e.Target),
		encodeAmount128(e.Value),
		encodeAmount128(e.AuthorityAtTime),
		encodeUint64(e.Timestamp),
		e.PrevHash[:],
	})
}

// EntryHash computes H(entry), the canonical hash used both as the chain
// head after an append and as the prev_hash linkage target for the next.
func EntryHash(e *LogEntry) Hash {
	return keccak(canonicalEntryEncoding(e))
}

func flatten(parts [][]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
