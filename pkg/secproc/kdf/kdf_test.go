package kdf_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseinweb/secproc/pkg/secproc/kdf"
)

func deviceRoot() [16]byte {
	var root [16]byte
	for i := range root {
		root[i] = byte(i)
	}
	return root
}

func TestProvisionBaseKeyIsDeterministic(t *testing.T) {
	root := deviceRoot()
	nonce := []byte("a-fixed-test-nonce")

	a, err := kdf.ProvisionBaseKey(root, nonce)
	require.NoError(t, err)
	b, err := kdf.ProvisionBaseKey(root, nonce)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestProvisionBaseKeyDiffersAcrossNonces(t *testing.T) {
	root := deviceRoot()
	a, err := kdf.ProvisionBaseKey(root, []byte("nonce-one"))
	require.NoError(t, err)
	b, err := kdf.ProvisionBaseKey(root, []byte("nonce-two"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHKDFIsDeterministicAndCorrectLength(t *testing.T) {
	root := deviceRoot()
	base, err := kdf.ProvisionBaseKey(root, []byte("hkdf-nonce"))
	require.NoError(t, err)

	salt := []byte("salt-value")
	info := []byte("context-info")

	a, err := kdf.HKDF(kdf.SHA256, base.MAC, salt, info, 32)
	require.NoError(t, err)
	b, err := kdf.HKDF(kdf.SHA256, base.MAC, salt, info, 32)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

// TestConcatKDFTestVector is spec.md §8 scenario 3: nonce, otherInfo,
// digest, and device root are all fixed, so the 32-byte HMAC-256-typed
// output must be bit-identical across runs for the same inputs.
func TestConcatKDFTestVector(t *testing.T) {
	root := deviceRoot()
	nonce := []byte("abcdefghijklmnopqr\x00\x00")
	otherInfo := []byte("certMacKey" + "hmacSha256" + "concatKdfSha1")

	base, err := kdf.ProvisionBaseKey(root, nonce)
	require.NoError(t, err)

	a, err := kdf.ConcatKDF(kdf.SHA1, base.AES, otherInfo, 32)
	require.NoError(t, err)
	b, err := kdf.ConcatKDF(kdf.SHA1, base.AES, otherInfo, 32)
	require.NoError(t, err)

	require.Len(t, a, 32)
	require.Equal(t, a, b)
}

func TestConcatKDFTruncatesToRequestedLength(t *testing.T) {
	root := deviceRoot()
	base, err := kdf.ProvisionBaseKey(root, []byte("n"))
	require.NoError(t, err)

	out, err := kdf.ConcatKDF(kdf.SHA1, base.AES, []byte("info"), 17)
	require.NoError(t, err)
	require.Len(t, out, 17)
}

func TestPBKDF2IsDeterministicAndCorrectLength(t *testing.T) {
	root := deviceRoot()
	base, err := kdf.ProvisionBaseKey(root, []byte("pbkdf2-nonce"))
	require.NoError(t, err)

	a, err := kdf.PBKDF2(kdf.SHA256, base.MAC, []byte("salt"), 1000, 32)
	require.NoError(t, err)
	b, err := kdf.PBKDF2(kdf.SHA256, base.MAC, []byte("salt"), 1000, 32)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestVendorAes128SplitsIntoTwoHalves(t *testing.T) {
	out := kdf.VendorAes128([]byte("any input"))
	require.Len(t, out, 32)
	sum := sha256.Sum256([]byte("any input"))
	require.Equal(t, sum[:16], out[:16])
	require.Equal(t, sum[16:], out[16:])
	again := kdf.VendorAes128([]byte("any input"))
	require.Equal(t, out, again)
}

func TestKeyLadderAes128RequiresUniqueRoot(t *testing.T) {
	var in1, in2 [16]byte
	_, err := kdf.KeyLadderAes128(kdf.Unique, in1, in2)
	require.NoError(t, err)

	_, err = kdf.KeyLadderAes128(kdf.Root(99), in1, in2)
	require.Error(t, err)
}

func TestExpandDerivedIsDeterministic(t *testing.T) {
	root := deviceRoot()
	var payload [32]byte
	for i := range payload {
		payload[i] = byte(i)
	}

	a, err := kdf.ExpandDerived(root, payload)
	require.NoError(t, err)
	b, err := kdf.ExpandDerived(root, payload)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDeriveStoreKeysProducesDistinctKeys(t *testing.T) {
	root := deviceRoot()
	kStorePayload, kMacPayload := kdf.DeriveStoreKeys(root)
	require.NotEqual(t, kStorePayload, kMacPayload)

	kStore, err := kdf.ExpandDerived(root, kStorePayload)
	require.NoError(t, err)
	kMac, err := kdf.ExpandDerived(root, kMacPayload)
	require.NoError(t, err)
	require.NotEqual(t, kStore, kMac)

	// Deterministic across calls for the same root key.
	kStorePayload2, kMacPayload2 := kdf.DeriveStoreKeys(root)
	require.Equal(t, kStorePayload, kStorePayload2)
	require.Equal(t, kMacPayload, kMacPayload2)
}

func TestKeyLadderAes128PackagesInputsVerbatim(t *testing.T) {
	in1 := [16]byte{1, 2, 3}
	in2 := [16]byte{4, 5, 6}
	out, err := kdf.KeyLadderAes128(kdf.Unique, in1, in2)
	require.NoError(t, err)
	require.Equal(t, in1[:], out[:16])
	require.Equal(t, in2[:], out[16:])
}
