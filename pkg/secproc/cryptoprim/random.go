package cryptoprim

import (
	"crypto/rand"
	"math/rand/v2"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// RandomKind selects between the cryptographic DRBG and the pseudo-random
// generator (spec.md §4.5: "TRUE calls the cryptographic DRBG; PRNG calls
// the pseudo-random generator").
type RandomKind int

const (
	True RandomKind = iota
	PRNG
)

// Random produces n bytes from the requested generator.
func Random(kind RandomKind, n int) ([]byte, error) {
	if n < 0 {
		return nil, errcode.New("cryptoprim.Random", errcode.InvalidParameters, "negative length")
	}
	out := make([]byte, n)
	switch kind {
	case True:
		if _, err := rand.Read(out); err != nil {
			return nil, errcode.New("cryptoprim.Random", errcode.Failure, "%w", err)
		}
	case PRNG:
		// math/rand/v2's top-level functions are auto-seeded and not
		// cryptographically secure, matching the "PRNG" contract exactly —
		// this path is deliberately distinct from the DRBG above.
		for i := range out {
			out[i] = byte(rand.IntN(256))
		}
	default:
		return nil, errcode.New("cryptoprim.Random", errcode.InvalidParameters, "unknown random kind")
	}
	return out, nil
}
