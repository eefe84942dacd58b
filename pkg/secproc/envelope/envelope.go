// Package envelope implements the key-store container: the fixed-header,
// MAC-and-encrypt wrapper that every persisted key payload is sealed inside
// (spec.md §4.2, byte layout in §6). It has no notion of where K_store and
// K_mac come from — callers resolve those from the soft-wrapped AES/MAC
// store keys and pass the raw bytes in.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"github.com/joseinweb/secproc/internal/zeroize"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// Magic is the fixed 8-byte tag at offset 0 of every envelope.
const Magic = "SECSTORE"

const (
	ivSize  = 16
	macSize = 32

	// headerSize is the fixed encoding of Header: ContainerType(1) +
	// InnerKind(1) + KeyType(1) + reserved(1) + PayloadLen(4).
	headerSize = 8
)

// ContainerType records the original encoding the payload was provisioned
// from, so a later round-trip (e.g. re-export) can recover it (spec.md §3,
// §4.3).
type ContainerType uint8

const (
	ContainerUnknown ContainerType = iota
	ContainerRawSymmetric
	ContainerRawRSAPrivate
	ContainerRawRSAPublic
	ContainerDERPKCS8Private
	ContainerDERAutoDetectPrivate
	ContainerDERPublicSPKI
	ContainerDERPublicBareRSA
	ContainerPEMPrivate
	ContainerPEMPublic
	ContainerDerived
	ContainerPreWrappedStore
)

// InnerKind is the envelope's own notion of what the sealed payload is:
// raw key bytes, or the two-input "derived" placeholder (spec.md §3).
type InnerKind uint8

const (
	InnerRaw InnerKind = iota
	InnerDerived
)

// Header is the envelope's fixed-size user header (spec.md §4.2, §6):
// original container type, inner container kind, key-type tag, and payload
// length.
type Header struct {
	ContainerType ContainerType
	InnerKind     InnerKind
	KeyType       uint8 // cryptoprim.KeyType, stored untyped to avoid an import cycle
	PayloadLen    uint32
}

func (h Header) marshal() []byte {
	b := make([]byte, headerSize)
	b[0] = byte(h.ContainerType)
	b[1] = byte(h.InnerKind)
	b[2] = h.KeyType
	b[3] = 0 // reserved
	binary.LittleEndian.PutUint32(b[4:8], h.PayloadLen)
	return b
}

func unmarshalHeader(b []byte) Header {
	return Header{
		ContainerType: ContainerType(b[0]),
		InnerKind:     InnerKind(b[1]),
		KeyType:       b[2],
		PayloadLen:    binary.LittleEndian.Uint32(b[4:8]),
	}
}

// Seal wraps payload under kStore/kMac, producing the on-disk envelope
// bytes: magic || header || IV || AES-CBC-PKCS7(payload) || HMAC-SHA-256(all
// preceding bytes).
func Seal(kStore, kMac []byte, header Header, payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(kStore)
	if err != nil {
		return nil, errcode.New("envelope.Seal", errcode.Failure, "%w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errcode.New("envelope.Seal", errcode.Failure, "%w", err)
	}

	padded := pkcs7Pad(payload, aes.BlockSize)
	defer zeroize.Bytes(padded)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	header.PayloadLen = uint32(len(payload))

	buf := new(bytes.Buffer)
	buf.WriteString(Magic)
	buf.Write(header.marshal())
	buf.Write(iv)
	buf.Write(ciphertext)

	mac := hmac.New(sha256.New, kMac)
	mac.Write(buf.Bytes())
	buf.Write(mac.Sum(nil))

	return buf.Bytes(), nil
}

// Open validates and unwraps blob, returning the header and the original
// payload. The MAC is recomputed and compared in constant time; the
// decrypted (still-padded) buffer is zeroized before every return,
// regardless of outcome, per spec.md §4.2 and §5.
func Open(kStore, kMac []byte, blob []byte) (Header, []byte, error) {
	min := len(Magic) + headerSize + ivSize + macSize
	if len(blob) < min {
		return Header{}, nil, errcode.New("envelope.Open", errcode.InvalidInputSize, "blob too short")
	}
	if string(blob[:len(Magic)]) != Magic {
		return Header{}, nil, errcode.New("envelope.Open", errcode.VerificationFailed, "bad magic")
	}

	body := blob[:len(blob)-macSize]
	gotMAC := blob[len(blob)-macSize:]

	mac := hmac.New(sha256.New, kMac)
	mac.Write(body)
	wantMAC := mac.Sum(nil)
	if !hmac.Equal(gotMAC, wantMAC) {
		return Header{}, nil, errcode.ErrVerificationFailed
	}

	off := len(Magic)
	header := unmarshalHeader(blob[off : off+headerSize])
	off += headerSize
	iv := blob[off : off+ivSize]
	off += ivSize
	ciphertext := body[off:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return Header{}, nil, errcode.New("envelope.Open", errcode.InvalidInputSize, "ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(kStore)
	if err != nil {
		return Header{}, nil, errcode.New("envelope.Open", errcode.Failure, "%w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	defer zeroize.Bytes(padded)

	payload, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return Header{}, nil, errcode.ErrInvalidPadding
	}
	if uint32(len(payload)) != header.PayloadLen {
		zeroize.Bytes(payload)
		return Header{}, nil, errcode.New("envelope.Open", errcode.VerificationFailed, "declared length mismatch")
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return header, out, nil
}

// VerifyMACOnly recomputes the trailing HMAC-SHA-256 over blob's preceding
// bytes and compares it to the embedded tag, without touching the
// ciphertext. It is used for the "pre-wrapped store" container type
// (spec.md §4.3), where an already-sealed envelope is re-validated and
// stored verbatim rather than unwrapped.
func VerifyMACOnly(kMac, blob []byte) error {
	min := len(Magic) + headerSize + ivSize + macSize
	if len(blob) < min {
		return errcode.New("envelope.VerifyMACOnly", errcode.InvalidInputSize, "blob too short")
	}
	body := blob[:len(blob)-macSize]
	gotMAC := blob[len(blob)-macSize:]

	mac := hmac.New(sha256.New, kMac)
	mac.Write(body)
	if !hmac.Equal(gotMAC, mac.Sum(nil)) {
		return errcode.ErrVerificationFailed
	}
	return nil
}

func pkcs7Pad(in []byte, blockSize int) []byte {
	padLen := blockSize - len(in)%blockSize
	out := make([]byte, len(in)+padLen)
	copy(out, in)
	for i := len(in); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(in []byte, blockSize int) ([]byte, error) {
	if len(in) == 0 || len(in)%blockSize != 0 {
		return nil, errcode.ErrInvalidPadding
	}
	padLen := int(in[len(in)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(in) {
		return nil, errcode.ErrInvalidPadding
	}
	for _, b := range in[len(in)-padLen:] {
		if int(b) != padLen {
			return nil, errcode.ErrInvalidPadding
		}
	}
	return in[:len(in)-padLen], nil
}
