// Package keycontainer implements the multi-encoding key provisioner
// (spec.md §4.3): the single entry point mapping (container_type, bytes) to
// a normalized key payload and user header, ready for the caller to seal
// into a key-store envelope.
package keycontainer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"math/big"

	youmarkpkcs8 "github.com/youmark/pkcs8"

	"github.com/joseinweb/secproc/pkg/secproc/cryptoprim"
	"github.com/joseinweb/secproc/pkg/secproc/envelope"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// MaxPayload is the container maximum payload size on this platform
// (spec.md §4.3: "≈ 2 KiB").
const MaxPayload = 2048

// rejectingPassword is passed to youmark/pkcs8 for every PEM/PKCS#8 parse.
// It never matches a real passphrase, so any encrypted private key is
// rejected — the Go expression of spec.md §4.3's "a passphrase callback
// that always rejects".
var rejectingPassword []byte

// UnknownHook is the application-registered handler for container types
// the core does not itself understand (spec.md §4.3, §9: re-expressed as
// processor-scoped configuration rather than a process-wide callback).
type UnknownHook func(raw []byte) (payload []byte, keyType cryptoprim.KeyType, err error)

// Options carries the few inputs Provision needs beyond (type, bytes) that
// are not shaped like container bytes themselves.
type Options struct {
	// PreWrappedMACKey is K_mac, required only when provisioning
	// envelope.ContainerPreWrappedStore.
	PreWrappedMACKey []byte
	// Unknown is invoked for envelope.ContainerUnknown; nil means
	// "unimplemented feature" (spec.md §4.3).
	Unknown UnknownHook
}

// Result is what Provision produces: either a plaintext payload + header
// ready to be sealed with envelope.Seal (NeedsSeal true), or — for the
// pre-wrapped-store case — an already-sealed envelope to store verbatim.
type Result struct {
	Header    envelope.Header
	Payload   []byte
	NeedsSeal bool
}

// Provision maps (originalType, raw) to a Result per spec.md §4.3. keyType
// is the caller's declared type for raw/DER/PEM symmetric or RSA material;
// it is ignored for Derived, PreWrappedStore, and Unknown.
func Provision(originalType envelope.ContainerType, raw []byte, keyType cryptoprim.KeyType, opts Options) (Result, error) {
	if len(raw) > MaxPayload {
		return Result{}, errcode.New("keycontainer.Provision", errcode.InvalidParameters, "payload exceeds %d bytes", MaxPayload)
	}

	switch originalType {
	case envelope.ContainerRawSymmetric:
		return provisionRawSymmetric(keyType, raw)
	case envelope.ContainerRawRSAPrivate:
		return provisionRawRSAPrivate(originalType, keyType, raw)
	case envelope.ContainerRawRSAPublic:
		return provisionRawRSAPublic(originalType, keyType, raw)
	case envelope.ContainerDERPKCS8Private, envelope.ContainerDERAutoDetectPrivate:
		return provisionDERPrivate(raw)
	case envelope.ContainerDERPublicBareRSA, envelope.ContainerDERPublicSPKI:
		return provisionDERPublic(raw)
	case envelope.ContainerPEMPrivate:
		return provisionPEMPrivate(raw)
	case envelope.ContainerPEMPublic:
		return provisionPEMPublic(raw)
	case envelope.ContainerDerived:
		return provisionDerived(raw)
	case envelope.ContainerPreWrappedStore:
		return provisionPreWrapped(raw, opts.PreWrappedMACKey)
	case envelope.ContainerUnknown:
		return provisionUnknown(raw, opts.Unknown)
	default:
		return Result{}, errcode.New("keycontainer.Provision", errcode.InvalidParameters, "unrecognized container type %d", originalType)
	}
}

func provisionRawSymmetric(keyType cryptoprim.KeyType, raw []byte) (Result, error) {
	want := keyType.Len()
	if want == 0 || len(raw) != want {
		return Result{}, errcode.New("keycontainer.provisionRawSymmetric", errcode.InvalidInputSize, "type requires %d bytes, got %d", want, len(raw))
	}
	payload := make([]byte, len(raw))
	copy(payload, raw)
	return Result{
		Header:    envelope.Header{ContainerType: envelope.ContainerRawSymmetric, InnerKind: envelope.InnerRaw, KeyType: uint8(keyType)},
		Payload:   payload,
		NeedsSeal: true,
	}, nil
}

// encodeRawRSAPrivate writes N(modLen) || E(4, BE) || D(modLen), the fixed
// struct spec.md §4.3 calls "big-endian moduli and exponents".
func encodeRawRSAPrivate(priv *rsa.PrivateKey, modLen int) []byte {
	out := make([]byte, modLen+4+modLen)
	priv.N.FillBytes(out[:modLen])
	binary.BigEndian.PutUint32(out[modLen:modLen+4], uint32(priv.E))
	priv.D.FillBytes(out[modLen+4:])
	return out
}

func decodeRawRSAPrivate(raw []byte, modLen int) (*rsa.PrivateKey, error) {
	if len(raw) != modLen+4+modLen {
		return nil, errcode.New("keycontainer.decodeRawRSAPrivate", errcode.InvalidInputSize, "expected %d bytes, got %d", modLen+4+modLen, len(raw))
	}
	n := new(big.Int).SetBytes(raw[:modLen])
	e := binary.BigEndian.Uint32(raw[modLen : modLen+4])
	d := new(big.Int).SetBytes(raw[modLen+4:])
	return &rsa.PrivateKey{PublicKey: rsa.PublicKey{N: n, E: int(e)}, D: d}, nil
}

func encodeRawRSAPublic(pub *rsa.PublicKey, modLen int) []byte {
	out := make([]byte, modLen+4)
	pub.N.FillBytes(out[:modLen])
	binary.BigEndian.PutUint32(out[modLen:modLen+4], uint32(pub.E))
	return out
}

func decodeRawRSAPublic(raw []byte, modLen int) (*rsa.PublicKey, error) {
	if len(raw) != modLen+4 {
		return nil, errcode.New("keycontainer.decodeRawRSAPublic", errcode.InvalidInputSize, "expected %d bytes, got %d", modLen+4, len(raw))
	}
	n := new(big.Int).SetBytes(raw[:modLen])
	e := binary.BigEndian.Uint32(raw[modLen : modLen+4])
	return &rsa.PublicKey{N: n, E: int(e)}, nil
}

func rsaPrivateKeyType(priv *rsa.PrivateKey) cryptoprim.KeyType {
	if priv.N.BitLen() <= 1024 {
		return cryptoprim.RSA1024Priv
	}
	return cryptoprim.RSA2048Priv
}

func rsaPublicKeyType(pub *rsa.PublicKey) cryptoprim.KeyType {
	if pub.N.BitLen() <= 1024 {
		return cryptoprim.RSA1024Pub
	}
	return cryptoprim.RSA2048Pub
}

func provisionRawRSAPrivate(originalType envelope.ContainerType, keyType cryptoprim.KeyType, raw []byte) (Result, error) {
	modLen := keyType.RSAModulusBytes()
	if modLen == 0 {
		return Result{}, errcode.New("keycontainer.provisionRawRSAPrivate", errcode.InvalidParameters, "keyType is not an RSA private type")
	}
	priv, err := decodeRawRSAPrivate(raw, modLen)
	if err != nil {
		return Result{}, err
	}
	return packageRSAPrivate(originalType, priv)
}

func packageRSAPrivate(originalType envelope.ContainerType, priv *rsa.PrivateKey) (Result, error) {
	keyType := rsaPrivateKeyType(priv)
	modLen := keyType.RSAModulusBytes()
	payload := encodeRawRSAPrivate(priv, modLen)
	return Result{
		Header:    envelope.Header{ContainerType: originalType, InnerKind: envelope.InnerRaw, KeyType: uint8(keyType)},
		Payload:   payload,
		NeedsSeal: true,
	}, nil
}

func provisionRawRSAPublic(originalType envelope.ContainerType, keyType cryptoprim.KeyType, raw []byte) (Result, error) {
	modLen := keyType.RSAModulusBytes()
	if modLen == 0 {
		return Result{}, errcode.New("keycontainer.provisionRawRSAPublic", errcode.InvalidParameters, "keyType is not an RSA public type")
	}
	pub, err := decodeRawRSAPublic(raw, modLen)
	if err != nil {
		return Result{}, err
	}
	return packageRSAPublic(originalType, pub)
}

func packageRSAPublic(originalType envelope.ContainerType, pub *rsa.PublicKey) (Result, error) {
	keyType := rsaPublicKeyType(pub)
	modLen := keyType.RSAModulusBytes()
	payload := encodeRawRSAPublic(pub, modLen)
	return Result{
		Header:    envelope.Header{ContainerType: originalType, InnerKind: envelope.InnerRaw, KeyType: uint8(keyType)},
		Payload:   payload,
		NeedsSeal: true,
	}, nil
}

// provisionDERPrivate implements spec.md §4.3's "DER RSA private": attempt
// PKCS#8 first; on failure auto-detect as raw PKCS#1 DER. The recorded
// original container type reflects which path actually matched, so a later
// re-export recovers the encoding that was really given.
func provisionDERPrivate(der []byte) (Result, error) {
	if parsed, err := youmarkpkcs8.ParsePKCS8PrivateKey(der, rejectingPassword); err == nil {
		priv, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return Result{}, errcode.New("keycontainer.provisionDERPrivate", errcode.InvalidParameters, "PKCS#8 key is not RSA")
		}
		return packageRSAPrivate(envelope.ContainerDERPKCS8Private, priv)
	}
	if priv, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return packageRSAPrivate(envelope.ContainerDERAutoDetectPrivate, priv)
	}
	return Result{}, errcode.New("keycontainer.provisionDERPrivate", errcode.InvalidParameters, "DER parses as neither PKCS#8 nor PKCS#1 RSA")
}

// provisionDERPublic implements spec.md §4.3's "DER RSA public": attempt
// bare RSAPublicKey (PKCS#1) first, then SubjectPublicKeyInfo.
func provisionDERPublic(der []byte) (Result, error) {
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return packageRSAPublic(envelope.ContainerDERPublicBareRSA, pub)
	}
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		if pub, ok := parsed.(*rsa.PublicKey); ok {
			return packageRSAPublic(envelope.ContainerDERPublicSPKI, pub)
		}
	}
	return Result{}, errcode.New("keycontainer.provisionDERPublic", errcode.InvalidParameters, "DER parses as neither bare RSAPublicKey nor SubjectPublicKeyInfo RSA")
}

func provisionPEMPrivate(raw []byte) (Result, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return Result{}, errcode.New("keycontainer.provisionPEMPrivate", errcode.InvalidParameters, "not a PEM block")
	}
	if isEncryptedPEM(block) {
		// youmark/pkcs8 is the library that would decrypt this; fed a
		// passphrase that never matches, it always errors, so the parse is
		// never attempted against a real secret.
		_, err := youmarkpkcs8.ParsePKCS8PrivateKey(block.Bytes, rejectingPassword)
		if err == nil {
			return Result{}, errcode.New("keycontainer.provisionPEMPrivate", errcode.Failure, "encrypted PEM unexpectedly decrypted under a rejecting passphrase")
		}
		return Result{}, errcode.New("keycontainer.provisionPEMPrivate", errcode.Failure, "encrypted PEM private keys are rejected")
	}
	res, err := provisionDERPrivate(block.Bytes)
	if err != nil {
		return Result{}, err
	}
	res.Header.ContainerType = envelope.ContainerPEMPrivate
	return res, nil
}

func provisionPEMPublic(raw []byte) (Result, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return Result{}, errcode.New("keycontainer.provisionPEMPublic", errcode.InvalidParameters, "not a PEM block")
	}
	res, err := provisionDERPublic(block.Bytes)
	if err != nil {
		return Result{}, err
	}
	res.Header.ContainerType = envelope.ContainerPEMPublic
	return res, nil
}

func isEncryptedPEM(block *pem.Block) bool {
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		return true
	}
	_, encrypted := block.Headers["DEK-Info"]
	return encrypted
}

// provisionDerived handles the "derived" placeholder: exactly two 16-byte
// inputs (spec.md §3, §4.3, §6).
func provisionDerived(raw []byte) (Result, error) {
	if len(raw) != 32 {
		return Result{}, errcode.New("keycontainer.provisionDerived", errcode.InvalidInputSize, "derived payload must be exactly 32 bytes, got %d", len(raw))
	}
	payload := make([]byte, 32)
	copy(payload, raw)
	return Result{
		Header:    envelope.Header{ContainerType: envelope.ContainerDerived, InnerKind: envelope.InnerDerived},
		Payload:   payload,
		NeedsSeal: true,
	}, nil
}

// provisionPreWrapped validates an already-sealed envelope blob's MAC
// against K_mac and stores it verbatim (spec.md §4.3).
func provisionPreWrapped(blob, macKey []byte) (Result, error) {
	if len(macKey) == 0 {
		return Result{}, errcode.New("keycontainer.provisionPreWrapped", errcode.InvalidParameters, "pre-wrapped provisioning requires the MAC key")
	}
	if err := envelope.VerifyMACOnly(macKey, blob); err != nil {
		return Result{}, err
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	return Result{Payload: stored, NeedsSeal: false}, nil
}

// DecodeRawRSAPrivate parses the canonical raw layout (N||E||D) this
// package stores RSA private keys in, keyed by the record's declared
// KeyType. Used at retrieval time to reconstruct an *rsa.PrivateKey from an
// unwrapped envelope payload.
func DecodeRawRSAPrivate(keyType cryptoprim.KeyType, raw []byte) (*rsa.PrivateKey, error) {
	modLen := keyType.RSAModulusBytes()
	if modLen == 0 {
		return nil, errcode.New("keycontainer.DecodeRawRSAPrivate", errcode.InvalidParameters, "keyType is not an RSA private type")
	}
	return decodeRawRSAPrivate(raw, modLen)
}

// DecodeRawRSAPublic mirrors DecodeRawRSAPrivate for public keys.
func DecodeRawRSAPublic(keyType cryptoprim.KeyType, raw []byte) (*rsa.PublicKey, error) {
	modLen := keyType.RSAModulusBytes()
	if modLen == 0 {
		return nil, errcode.New("keycontainer.DecodeRawRSAPublic", errcode.InvalidParameters, "keyType is not an RSA public type")
	}
	return decodeRawRSAPublic(raw, modLen)
}

func provisionUnknown(raw []byte, hook UnknownHook) (Result, error) {
	if hook == nil {
		return Result{}, errcode.ErrUnimplementedFeature
	}
	payload, keyType, err := hook(raw)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Header:    envelope.Header{ContainerType: envelope.ContainerUnknown, InnerKind: envelope.InnerRaw, KeyType: uint8(keyType)},
		Payload:   payload,
		NeedsSeal: true,
	}, nil
}
