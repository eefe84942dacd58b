// Package cryptoprim implements the L0 cryptographic primitives (spec.md
// §4.5, §2 "L0 Primitives ~10%"): thin, validated sessions over the
// standard library's crypto/... packages — the "vetted crypto library"
// spec.md §1 treats as an external collaborator. Every session follows the
// same three-call shape (GetInstance/Process-or-Update/Release) and the
// single-shot "lastInput" state machine described in spec.md §4.7.
package cryptoprim

// KeyType enumerates the object types spec.md §3 defines. Key length is a
// pure function of KeyType.
type KeyType int

const (
	KeyTypeUnknown KeyType = iota
	AES128
	AES256
	HMAC128
	HMAC160
	HMAC256
	RSA1024Priv
	RSA2048Priv
	RSA1024Pub
	RSA2048Pub
)

// Len returns the byte length mandated for raw symmetric key material of t,
// or 0 for asymmetric types (whose length is derived from the parsed key).
func (t KeyType) Len() int {
	switch t {
	case AES128, HMAC128:
		return 16
	case AES256:
		return 32
	case HMAC160:
		return 20
	case HMAC256:
		return 32
	default:
		return 0
	}
}

// RSAModulusBytes returns the expected big-endian modulus byte length for
// the RSA key types, or 0 for non-RSA types.
func (t KeyType) RSAModulusBytes() int {
	switch t {
	case RSA1024Priv, RSA1024Pub:
		return 128
	case RSA2048Priv, RSA2048Pub:
		return 256
	default:
		return 0
	}
}

func (t KeyType) IsSymmetric() bool {
	switch t {
	case AES128, AES256, HMAC128, HMAC160, HMAC256:
		return true
	default:
		return false
	}
}

func (t KeyType) IsRSAPrivate() bool {
	return t == RSA1024Priv || t == RSA2048Priv
}

func (t KeyType) IsRSAPublic() bool {
	return t == RSA1024Pub || t == RSA2048Pub
}
