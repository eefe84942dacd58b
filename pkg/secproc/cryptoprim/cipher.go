package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/joseinweb/secproc/internal/zeroize"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// CipherAlgorithm enumerates the algorithms spec.md §4.5 requires.
type CipherAlgorithm int

const (
	AESECBNoPad CipherAlgorithm = iota
	AESECBPKCS7
	AESCBCNoPad
	AESCBCPKCS7
	AESCTR
	RSAPKCS1
	RSAOAEP
)

func (a CipherAlgorithm) isAESBlockMode() bool {
	return a == AESECBNoPad || a == AESECBPKCS7 || a == AESCBCNoPad || a == AESCBCPKCS7
}

func (a CipherAlgorithm) pkcs7() bool {
	return a == AESECBPKCS7 || a == AESCBCPKCS7
}

// CipherDirection selects encrypt vs decrypt.
type CipherDirection int

const (
	Encrypt CipherDirection = iota
	Decrypt
)

// Window describes one (offset, size, period) window for the fragmented
// cipher mode (spec.md §4.5): the block cipher is applied to each window
// of Size bytes starting at Offset, Offset+Period, Offset+2*Period, ...
// within the larger buffer; bytes outside every window pass through
// unmodified.
type Window struct {
	Offset int
	Size   int
	Period int
}

// CipherParams configures a cipher session.
type CipherParams struct {
	Algorithm CipherAlgorithm
	IV        []byte // required for AESCBC*/AESCTR
	Fragment  *Window
}

// CipherSession is a single-shot-last cipher handle (spec.md §4.7): zero or
// more Process calls accumulate input; the call with lastInput=true
// performs the actual transform (applying or validating PKCS#7 as
// configured) and finalizes the session. A second call after lastInput=true
// returns errcode.Failure.
type CipherSession struct {
	dir    CipherDirection
	params CipherParams

	block cipher.Block // nil for RSA algorithms
	rsaPub *rsa.PublicKey
	rsaPriv *rsa.PrivateKey

	buf  []byte
	done bool
}

// NewCipherSession opens a session for the given direction and key. key is
// the clear key material (AES key bytes, or an *rsa.PublicKey/*rsa.PrivateKey
// for the RSA algorithms); the caller is responsible for zeroizing any AES
// key slice it owns. The session keeps only the aes.Block built from the
// key; Release clears buffered input, not that key schedule.
func NewCipherSession(dir CipherDirection, params CipherParams, key any) (*CipherSession, error) {
	s := &CipherSession{dir: dir, params: params}

	switch params.Algorithm {
	case RSAPKCS1, RSAOAEP:
		switch k := key.(type) {
		case *rsa.PublicKey:
			s.rsaPub = k
		case *rsa.PrivateKey:
			s.rsaPriv = k
		default:
			return nil, errcode.New("cryptoprim.NewCipherSession", errcode.InvalidParameters, "RSA algorithms require an *rsa.PublicKey or *rsa.PrivateKey")
		}
		return s, nil
	default:
		keyBytes, ok := key.([]byte)
		if !ok {
			return nil, errcode.New("cryptoprim.NewCipherSession", errcode.InvalidParameters, "AES algorithms require raw key bytes")
		}
		block, err := aes.NewCipher(keyBytes)
		if err != nil {
			return nil, errcode.New("cryptoprim.NewCipherSession", errcode.InvalidParameters, "aes.NewCipher: %w", err)
		}
		s.block = block

		if params.Algorithm == AESCBCNoPad || params.Algorithm == AESCBCPKCS7 || params.Algorithm == AESCTR {
			if len(params.IV) != aes.BlockSize {
				return nil, errcode.New("cryptoprim.NewCipherSession", errcode.InvalidParameters, "CBC/CTR require a %d-byte IV", aes.BlockSize)
			}
		}
		return s, nil
	}
}

// Process feeds input into the session. When lastInput is true the
// configured transform runs over the whole accumulated buffer (including
// input) and the result is returned; the session is then terminal. Any
// further Process call on a terminal session, whatever its lastInput, is an
// error (spec.md §4.7, §8 scenario 5).
func (s *CipherSession) Process(input []byte, lastInput bool) ([]byte, error) {
	if s.done {
		return nil, errcode.New("cryptoprim.Process", errcode.Failure, "session already finalized")
	}
	s.buf = append(s.buf, input...)
	if !lastInput {
		return nil, nil
	}
	s.done = true

	switch s.params.Algorithm {
	case RSAPKCS1:
		return s.finishRSAPKCS1()
	case RSAOAEP:
		return s.finishRSAOAEP()
	default:
		return s.finishAES()
	}
}

func (s *CipherSession) finishAES() ([]byte, error) {
	data := s.buf
	alg := s.params.Algorithm

	if s.dir == Encrypt && alg.pkcs7() {
		data = pkcs7Pad(data, aes.BlockSize)
	}
	if alg != AESCTR && len(data)%aes.BlockSize != 0 {
		return nil, errcode.New("cryptoprim.finishAES", errcode.InvalidInputSize, "input not a multiple of the block size")
	}

	transform := func(block cipher.Block, iv []byte) cipher.BlockMode {
		if s.dir == Encrypt {
			return cipher.NewCBCEncrypter(block, iv)
		}
		return cipher.NewCBCDecrypter(block, iv)
	}

	var out []byte
	switch alg {
	case AESECBNoPad, AESECBPKCS7:
		out = make([]byte, len(data))
		if w := s.params.Fragment; w != nil {
			copy(out, data)
			bs := s.block.BlockSize()
			if w.Size <= 0 || w.Size%bs != 0 {
				return nil, errcode.New("cryptoprim.finishAES", errcode.InvalidParameters, "fragmented window size must be a positive multiple of the block size")
			}
			ecb := newECB(s.block, s.dir)
			for off := w.Offset; off+w.Size <= len(out); off += w.Period {
				ecb.CryptBlocks(out[off:off+w.Size], out[off:off+w.Size])
			}
		} else {
			ecb := newECB(s.block, s.dir)
			ecb.CryptBlocks(out, data)
		}
	case AESCBCNoPad, AESCBCPKCS7:
		out = make([]byte, len(data))
		mode := transform(s.block, s.params.IV)
		mode.CryptBlocks(out, data)
	case AESCTR:
		out = make([]byte, len(data))
		stream := cipher.NewCTR(s.block, s.params.IV)
		stream.XORKeyStream(out, data)
	}

	if s.dir == Decrypt && alg.pkcs7() {
		unpadded, err := pkcs7Unpad(out, aes.BlockSize)
		if err != nil {
			zeroize.Bytes(out)
			return nil, err
		}
		return unpadded, nil
	}
	return out, nil
}

func (s *CipherSession) finishRSAPKCS1() ([]byte, error) {
	if s.dir == Encrypt {
		return rsa.EncryptPKCS1v15(rand.Reader, s.rsaPub, s.buf)
	}
	out, err := rsa.DecryptPKCS1v15(rand.Reader, s.rsaPriv, s.buf)
	if err != nil {
		return nil, errcode.New("cryptoprim.finishRSAPKCS1", errcode.VerificationFailed, "%w", err)
	}
	return out, nil
}

func (s *CipherSession) finishRSAOAEP() ([]byte, error) {
	h := sha256.New()
	if s.dir == Encrypt {
		return rsa.EncryptOAEP(h, rand.Reader, s.rsaPub, s.buf, nil)
	}
	out, err := rsa.DecryptOAEP(h, rand.Reader, s.rsaPriv, s.buf, nil)
	if err != nil {
		return nil, errcode.New("cryptoprim.finishRSAOAEP", errcode.VerificationFailed, "%w", err)
	}
	return out, nil
}

// Release zeroizes any buffered plaintext/ciphertext still held by the
// session. Safe to call multiple times.
func (s *CipherSession) Release() {
	zeroize.Bytes(s.buf)
	s.buf = nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errcode.New("cryptoprim.pkcs7Unpad", errcode.InvalidPadding, "ciphertext not block-aligned")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errcode.New("cryptoprim.pkcs7Unpad", errcode.InvalidPadding, "pad length out of range")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errcode.New("cryptoprim.pkcs7Unpad", errcode.InvalidPadding, "inconsistent padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}

// ecbMode adapts crypto/aes's raw block cipher into cipher.BlockMode for ECB,
// which the standard library deliberately omits a public implementation of
// (ECB is unsafe for general use; ours stays internal and callers must opt
// in to AESECBNoPad/AESECBPKCS7 explicitly, as spec.md §4.5 requires).
type ecbMode struct {
	block cipher.Block
	dir   CipherDirection
}

func newECB(block cipher.Block, dir CipherDirection) cipher.BlockMode {
	return &ecbMode{block: block, dir: dir}
}

func (e *ecbMode) BlockSize() int { return e.block.BlockSize() }

func (e *ecbMode) CryptBlocks(dst, src []byte) {
	bs := e.block.BlockSize()
	for len(src) > 0 {
		if e.dir == Encrypt {
			e.block.Encrypt(dst, src)
		} else {
			e.block.Decrypt(dst, src)
		}
		src = src[bs:]
		dst = dst[bs:]
	}
}
