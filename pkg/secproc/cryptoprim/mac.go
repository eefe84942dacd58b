package cryptoprim

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/joseinweb/secproc/internal/zeroize"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// MACAlgorithm enumerates the MAC algorithms spec.md §4.5 requires.
type MACAlgorithm int

const (
	HMACSHA1 MACAlgorithm = iota
	HMACSHA256
	CMACAES128
)

// MACSession computes HMAC-SHA-1, HMAC-SHA-256, or CMAC-AES-128 over data
// fed through Update, finalized by Release. HMAC sessions stream
// incrementally via hash.Hash; CMAC buffers internally since RFC 4493's
// subkey selection depends on the total message length.
type MACSession struct {
	alg  MACAlgorithm
	hmac hash.Hash
	cmac *cmacAES128
}

// NewMACSession opens a MAC session keyed by key (16 bytes for CMAC-AES-128;
// any length accepted by HMAC for the HMAC algorithms).
func NewMACSession(alg MACAlgorithm, key []byte) (*MACSession, error) {
	switch alg {
	case HMACSHA1:
		return &MACSession{alg: alg, hmac: hmac.New(sha1.New, key)}, nil
	case HMACSHA256:
		return &MACSession{alg: alg, hmac: hmac.New(sha256.New, key)}, nil
	case CMACAES128:
		c, err := newCMACAES128(key)
		if err != nil {
			return nil, err
		}
		return &MACSession{alg: alg, cmac: c}, nil
	default:
		return nil, errcode.New("cryptoprim.NewMACSession", errcode.InvalidParameters, "unknown MAC algorithm")
	}
}

// Update feeds bytes into the running MAC.
func (s *MACSession) Update(b []byte) {
	if s.hmac != nil {
		s.hmac.Write(b)
		return
	}
	s.cmac.Write(b)
}

// UpdateKeyClearBytes feeds a key handle's unwrapped clear bytes into the
// MAC, zeroizing the caller's buffer before returning (spec.md §4.5, same
// contract as DigestSession.UpdateKeyClearBytes).
func (s *MACSession) UpdateKeyClearBytes(clear []byte) {
	defer zeroize.Guard(clear)()
	s.Update(clear)
}

// Release returns the final tag.
func (s *MACSession) Release() []byte {
	if s.hmac != nil {
		sum := s.hmac.Sum(nil)
		s.hmac.Reset()
		return sum
	}
	tag := s.cmac.Sum()
	s.cmac.buf = nil
	return tag
}
