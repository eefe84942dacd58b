package cryptoprim

import (
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/joseinweb/secproc/internal/zeroize"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// DigestAlgorithm enumerates the digest algorithms spec.md §4.5 requires.
type DigestAlgorithm int

const (
	SHA1 DigestAlgorithm = iota
	SHA256
)

// Size returns the output length in bytes for alg.
func (alg DigestAlgorithm) Size() int {
	switch alg {
	case SHA1:
		return sha1.Size // 20
	case SHA256:
		return sha256.Size // 32
	default:
		return 0
	}
}

func newHash(alg DigestAlgorithm) (hash.Hash, error) {
	switch alg {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, errcode.New("cryptoprim.newHash", errcode.InvalidParameters, "unknown digest algorithm")
	}
}

// DigestSession is a true streaming digest handle: Update may be called any
// number of times before Release.
type DigestSession struct {
	h hash.Hash
}

// NewDigestSession opens a digest session for alg.
func NewDigestSession(alg DigestAlgorithm) (*DigestSession, error) {
	h, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	return &DigestSession{h: h}, nil
}

// Update feeds bytes into the running digest.
func (s *DigestSession) Update(b []byte) {
	s.h.Write(b)
}

// UpdateKeyClearBytes feeds a key handle's unwrapped clear bytes into the
// digest. The caller-supplied buffer is zeroized before this call returns
// (spec.md §4.5: "the unwrapping happens inside the call and the buffer is
// zeroized before return").
func (s *DigestSession) UpdateKeyClearBytes(clear []byte) {
	defer zeroize.Guard(clear)()
	s.h.Write(clear)
}

// Release returns the final digest and resets internal state.
func (s *DigestSession) Release() []byte {
	sum := s.h.Sum(nil)
	s.h.Reset()
	return sum
}
