package delegation

import (
	"authdelegation/crypto"
)

// testAddress builds a deterministic address for use across table tests,
// mirroring the byte-fill convention the native engine tests use.
func testAddress(fill byte) crypto.Address {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.MustNewAddress(crypto.DelegationPrefix, b)
}

// fakeClock lets a test drive the engines' time source deterministically.
type fakeClock struct {
	t uint64
}

func (c *fakeClock) Now() uint64 { return c.t }

func (c *fakeClock) advance(seconds uint64) { c.t += seconds }
