package cryptoprim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// SignatureFlavor selects whether the session hashes the input itself
// ("data") or expects the caller to have already hashed it ("digest"),
// per spec.md §4.5.
type SignatureFlavor int

const (
	FlavorData SignatureFlavor = iota
	FlavorDigest
)

func (alg DigestAlgorithm) cryptoHash() crypto.Hash {
	switch alg {
	case SHA1:
		return crypto.SHA1
	case SHA256:
		return crypto.SHA256
	default:
		return 0
	}
}

// SignSession is an RSA-PKCS1 signing session over SHA-1 or SHA-256, in
// either data or digest flavor.
type SignSession struct {
	priv   *rsa.PrivateKey
	digest DigestAlgorithm
	flavor SignatureFlavor
	h      *DigestSession // only used in FlavorData
	buf    []byte         // only used in FlavorDigest
}

// NewSignSession opens a signing session under priv.
func NewSignSession(priv *rsa.PrivateKey, digest DigestAlgorithm, flavor SignatureFlavor) (*SignSession, error) {
	s := &SignSession{priv: priv, digest: digest, flavor: flavor}
	if flavor == FlavorData {
		h, err := NewDigestSession(digest)
		if err != nil {
			return nil, err
		}
		s.h = h
	}
	return s, nil
}

// Update feeds input. In FlavorData, bytes are hashed incrementally. In
// FlavorDigest, a single call is expected carrying the precomputed digest,
// whose length must equal the algorithm's digest length.
func (s *SignSession) Update(b []byte) error {
	if s.flavor == FlavorData {
		s.h.Update(b)
		return nil
	}
	if len(s.buf) > 0 {
		return errcode.New("cryptoprim.SignSession.Update", errcode.Failure, "digest flavor accepts exactly one Update call")
	}
	if len(b) != s.digest.Size() {
		return errcode.New("cryptoprim.SignSession.Update", errcode.InvalidInputSize, "digest must be %d bytes, got %d", s.digest.Size(), len(b))
	}
	s.buf = append(s.buf, b...)
	return nil
}

// Release signs the accumulated digest and returns the signature.
func (s *SignSession) Release() ([]byte, error) {
	var digest []byte
	if s.flavor == FlavorData {
		digest = s.h.Release()
	} else {
		digest = s.buf
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.priv, s.digest.cryptoHash(), digest)
	if err != nil {
		return nil, errcode.New("cryptoprim.SignSession.Release", errcode.Failure, "%w", err)
	}
	return sig, nil
}

// VerifySession mirrors SignSession for verification.
type VerifySession struct {
	pub    *rsa.PublicKey
	digest DigestAlgorithm
	flavor SignatureFlavor
	h      *DigestSession
	buf    []byte
}

// NewVerifySession opens a verification session under pub.
func NewVerifySession(pub *rsa.PublicKey, digest DigestAlgorithm, flavor SignatureFlavor) (*VerifySession, error) {
	s := &VerifySession{pub: pub, digest: digest, flavor: flavor}
	if flavor == FlavorData {
		h, err := NewDigestSession(digest)
		if err != nil {
			return nil, err
		}
		s.h = h
	}
	return s, nil
}

// Update behaves as SignSession.Update.
func (s *VerifySession) Update(b []byte) error {
	if s.flavor == FlavorData {
		s.h.Update(b)
		return nil
	}
	if len(s.buf) > 0 {
		return errcode.New("cryptoprim.VerifySession.Update", errcode.Failure, "digest flavor accepts exactly one Update call")
	}
	if len(b) != s.digest.Size() {
		return errcode.New("cryptoprim.VerifySession.Update", errcode.InvalidInputSize, "digest must be %d bytes, got %d", s.digest.Size(), len(b))
	}
	s.buf = append(s.buf, b...)
	return nil
}

// Release verifies sig against the accumulated digest, returning
// errcode.VerificationFailed on mismatch.
func (s *VerifySession) Release(sig []byte) error {
	var digest []byte
	if s.flavor == FlavorData {
		digest = s.h.Release()
	} else {
		digest = s.buf
	}
	if err := rsa.VerifyPKCS1v15(s.pub, s.digest.cryptoHash(), digest, sig); err != nil {
		return errcode.ErrVerificationFailed
	}
	return nil
}
