package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// cmacAES128 implements CMAC-AES-128 per RFC 4493. No example repo in the
// retrieved corpus imports a third-party CMAC library (AES-SIV
// implementations build their own S2V on top of crypto/aes/cipher directly,
// the same approach taken here), so this is built on crypto/aes/crypto/subtle
// rather than an ecosystem dependency — see DESIGN.md.
type cmacAES128 struct {
	block cipher.Block
	k1    [16]byte
	k2    [16]byte

	buf []byte
}

const cmacConstRb = 0x87

func newCMACAES128(key []byte) (*cmacAES128, error) {
	if len(key) != 16 {
		return nil, errcode.New("cryptoprim.newCMACAES128", errcode.InvalidInputSize, "CMAC-AES-128 requires a 16-byte key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errcode.New("cryptoprim.newCMACAES128", errcode.InvalidParameters, "%w", err)
	}

	var zero, l [16]byte
	block.Encrypt(l[:], zero[:])

	k1 := cmacShiftXorRb(l)
	k2 := cmacShiftXorRb(k1)

	return &cmacAES128{block: block, k1: k1, k2: k2}, nil
}

// cmacShiftXorRb left-shifts a 16-byte block by one bit, XORing in the
// RFC 4493 constant Rb when the shifted-out bit was 1.
func cmacShiftXorRb(in [16]byte) [16]byte {
	var out [16]byte
	carry := byte(0)
	for i := 15; i >= 0; i-- {
		v := in[i]
		out[i] = (v << 1) | carry
		carry = v >> 7
	}
	if carry != 0 {
		out[15] ^= cmacConstRb
	}
	return out
}

func (c *cmacAES128) Write(b []byte) {
	c.buf = append(c.buf, b...)
}

func (c *cmacAES128) Sum() []byte {
	const bs = 16
	n := len(c.buf)

	var lastBlock, subkey [16]byte
	var leading []byte

	if n != 0 && n%bs == 0 {
		// Complete final block: use K1 directly.
		leading = c.buf[:n-bs]
		copy(lastBlock[:], c.buf[n-bs:])
		subkey = c.k1
	} else {
		// Partial (or empty) final block: pad with 0x80 00...00, use K2.
		full := (n / bs) * bs
		leading = c.buf[:full]
		padded := make([]byte, bs)
		copy(padded, c.buf[full:])
		padded[n-full] = 0x80
		copy(lastBlock[:], padded)
		subkey = c.k2
	}

	var x [16]byte
	for off := 0; off < len(leading); off += bs {
		var y [16]byte
		for i := 0; i < bs; i++ {
			y[i] = x[i] ^ leading[off+i]
		}
		c.block.Encrypt(x[:], y[:])
	}

	var y [16]byte
	for i := 0; i < bs; i++ {
		y[i] = x[i] ^ lastBlock[i] ^ subkey[i]
	}
	var tag [16]byte
	c.block.Encrypt(tag[:], y[:])
	return tag[:]
}

func cmacEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
