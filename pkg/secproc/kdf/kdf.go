// Package kdf implements the key-derivation engine (spec.md §4.6): a
// uniform per-nonce base-key provisioning boundary, and the four concrete
// derivations (HKDF, Concat-KDF, PBKDF2, VendorAes128) plus the
// KeyLadderAes128 placeholder that feed from it.
package kdf

import (
	"crypto/aes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// BaseKey is the per-nonce AES-128/HMAC-128 pair produced by
// ProvisionBaseKey (spec.md §4.6 step 3). It is the caller's responsibility
// to store these under objectid.BaseKeyAES / objectid.BaseKeyMAC,
// RAM-soft-wrapped, if the processor layer wants them addressable by id —
// kdf itself holds no store reference, keeping it a pure derivation
// boundary.
type BaseKey struct {
	AES [16]byte
	MAC [16]byte
}

// Digest selects the hash underlying a KDF step.
type Digest int

const (
	SHA1 Digest = iota
	SHA256
)

func (d Digest) new() hash.Hash {
	switch d {
	case SHA1:
		return sha1.New()
	default:
		return sha256.New()
	}
}

func (d Digest) size() int {
	switch d {
	case SHA1:
		return sha1.Size
	default:
		return sha256.Size
	}
}

// ladderInput derives one of the four 16-byte AES-ECB ladder inputs
// deterministically from the nonce and a set of semantic tag strings
// (spec.md §4.6 step 1: "SIV-SHA-1" / "aesEcbNone" are semantic tags, not
// protocol negotiation — the exact derivation is unspecified beyond
// determinism, so this hashes the nonce and tags together with a per-step
// domain separator).
func ladderInput(nonce []byte, derivationString, cipherString, digestAlg string, step byte) [16]byte {
	h := sha256.New()
	h.Write(nonce)
	h.Write([]byte(derivationString))
	h.Write([]byte(cipherString))
	h.Write([]byte(digestAlg))
	h.Write([]byte{step})
	sum := h.Sum(nil)
	var out [16]byte
	copy(out[:], sum[:16])
	return out
}

// ProvisionBaseKey computes the per-nonce base key pair by chaining four
// AES-ECB single-block encryptions starting from the device root key
// (spec.md §4.6 steps 1-2). The same nonce always yields the same base
// keys.
func ProvisionBaseKey(rootKey [16]byte, nonce []byte) (BaseKey, error) {
	c1 := ladderInput(nonce, "derive", "aesEcbNone", "SIV-SHA-1", 1)
	c2 := ladderInput(nonce, "derive", "aesEcbNone", "SIV-SHA-1", 2)
	c3 := ladderInput(nonce, "derive", "aesEcbNone", "SIV-SHA-1", 3)
	c4 := ladderInput(nonce, "derive", "aesEcbNone", "SIV-SHA-1", 4)

	key := rootKey
	for _, c := range [][16]byte{c1, c2, c3, c4} {
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return BaseKey{}, errcode.New("kdf.ProvisionBaseKey", errcode.Failure, "%w", err)
		}
		var next [16]byte
		block.Encrypt(next[:], c[:])
		key = next
	}

	return BaseKey{AES: key, MAC: key}, nil
}

// HKDF implements RFC 5869 Extract-then-Expand over the MAC base key,
// producing length bytes of derived key material (spec.md §4.6).
func HKDF(digest Digest, macBaseKey [16]byte, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, errcode.New("kdf.HKDF", errcode.InvalidParameters, "non-positive length")
	}
	hashFn := func() hash.Hash { return digest.new() }
	r := hkdf.New(hashFn, macBaseKey[:], salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errcode.New("kdf.HKDF", errcode.Failure, "%w", err)
	}
	return out, nil
}

// ConcatKDF implements NIST SP 800-56A's single-step concatenation KDF as
// specified in spec.md §4.6: for i=1..r, H_i = digest(BE32(i) ||
// base_key_aes_clear || otherInfo); concatenate and truncate to length.
func ConcatKDF(digest Digest, aesBaseKey [16]byte, otherInfo []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, errcode.New("kdf.ConcatKDF", errcode.InvalidParameters, "non-positive length")
	}
	h := digest.size()
	r := (length + h - 1) / h

	out := make([]byte, 0, r*h)
	for i := 1; i <= r; i++ {
		d := digest.new()
		var counter [4]byte
		binary.BigEndian.PutUint32(counter[:], uint32(i))
		d.Write(counter[:])
		d.Write(aesBaseKey[:])
		d.Write(otherInfo)
		out = d.Sum(out)
	}
	return out[:length], nil
}

// PBKDF2 implements spec.md §4.6's PBKDF2 description, which is RFC 2898's
// algorithm verbatim with the MAC base key as password and HMAC(digest) as
// PRF.
func PBKDF2(digest Digest, macBaseKey [16]byte, salt []byte, iterations, length int) ([]byte, error) {
	if length <= 0 || iterations <= 0 {
		return nil, errcode.New("kdf.PBKDF2", errcode.InvalidParameters, "non-positive length or iteration count")
	}
	hashFn := func() hash.Hash { return digest.new() }
	return pbkdf2.Key(macBaseKey[:], salt, iterations, length, hashFn), nil
}

// VendorAes128 is the vendor-specific AES-128 derivation (spec.md §4.6):
// SHA-256(input) split into two 16-byte halves, returned as the raw
// 32-byte payload of a "derived" container (input1||input2).
func VendorAes128(input []byte) [32]byte {
	sum := sha256.Sum256(input)
	var out [32]byte
	copy(out[:], sum[:])
	return out
}

// LadderDepth is the fixed key-ladder depth reported by both
// GetKeyLadderMinDepth and GetKeyLadderMaxDepth (spec.md §9 open question:
// "returns the same value (2) for both"; SPEC_FULL.md §6 decision 2 keeps
// the two accessors distinct rather than collapsing them into one).
const LadderDepth = 2

// Root names the key-ladder root selector for KeyLadderAes128. Only Unique
// is accepted (spec.md §4.6: "root ≠ UNIQUE is rejected").
type Root int

const (
	Unique Root = iota
	otherRoot
)

// ExpandDerived expands a "derived" container's 32-byte payload
// (input1(16)||input2(16)) into a 16-byte AES-128 key via two chained
// AES-ECB encryptions under the device root key, per the GLOSSARY's
// "Derived container" definition. Every derived container — the processor's
// own soft-wrapped store keys, VendorAes128 outputs, KeyLadderAes128
// outputs — expands the same way.
func ExpandDerived(rootKey [16]byte, payload [32]byte) ([16]byte, error) {
	block, err := aes.NewCipher(rootKey[:])
	if err != nil {
		return [16]byte{}, errcode.New("kdf.ExpandDerived", errcode.Failure, "%w", err)
	}
	var step1 [16]byte
	block.Encrypt(step1[:], payload[:16])

	block2, err := aes.NewCipher(step1[:])
	if err != nil {
		return [16]byte{}, errcode.New("kdf.ExpandDerived", errcode.Failure, "%w", err)
	}
	var step2 [16]byte
	block2.Encrypt(step2[:], payload[16:])
	return step2, nil
}

// DeriveStoreKeys returns the "derived" placeholder payloads for the two
// soft-wrapped internal keys the key-store envelope is keyed by — K_store
// (AES) and K_mac (HMAC) (spec.md §4.2: "wrapped derived records
// provisioned at processor boot ... using the emulated two-step AES-ECB
// ladder"). The payloads are fixed, domain-separated constants and do not
// depend on rootKey; the root key enters when ExpandDerived expands them,
// so the same root key always reproduces the same store keys.
func DeriveStoreKeys(rootKey [16]byte) (kStorePayload, kMacPayload [32]byte) {
	kStorePayload = ladderConstant("secproc-store-key")
	kMacPayload = ladderConstant("secproc-mac-gen-key")
	return
}

func ladderConstant(tag string) [32]byte {
	var out [32]byte
	h1 := sha256.Sum256([]byte(tag + "-input1"))
	h2 := sha256.Sum256([]byte(tag + "-input2"))
	copy(out[:16], h1[:16])
	copy(out[16:], h2[:16])
	return out
}

// KeyLadderAes128 validates and packages the two-input key-ladder
// emulation into a "derived" container payload (spec.md §4.6). input3/
// input4 have no Go-level representation — Go's fixed arity already
// enforces their absence.
func KeyLadderAes128(root Root, input1, input2 [16]byte) ([32]byte, error) {
	if root != Unique {
		return [32]byte{}, errcode.New("kdf.KeyLadderAes128", errcode.InvalidParameters, "root must be UNIQUE")
	}
	var out [32]byte
	copy(out[:16], input1[:])
	copy(out[16:], input2[:])
	return out, nil
}
