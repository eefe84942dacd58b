package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseinweb/secproc/pkg/secproc/envelope"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

func testKeys() (kStore, kMac []byte) {
	kStore = make([]byte, 16)
	kMac = make([]byte, 32)
	for i := range kStore {
		kStore[i] = byte(i)
	}
	for i := range kMac {
		kMac[i] = byte(i + 1)
	}
	return
}

func TestSealOpenRoundTrip(t *testing.T) {
	kStore, kMac := testKeys()
	payload := []byte("a symmetric key's sixteen bytes")

	header := envelope.Header{
		ContainerType: envelope.ContainerRawSymmetric,
		InnerKind:     envelope.InnerRaw,
		KeyType:       1,
	}

	blob, err := envelope.Seal(kStore, kMac, header, payload)
	require.NoError(t, err)

	gotHeader, gotPayload, err := envelope.Open(kStore, kMac, blob)
	require.NoError(t, err)
	require.Equal(t, payload, gotPayload)
	require.Equal(t, header.ContainerType, gotHeader.ContainerType)
	require.Equal(t, header.InnerKind, gotHeader.InnerKind)
	require.Equal(t, uint32(len(payload)), gotHeader.PayloadLen)
}

func TestSealOpenEmptyPayload(t *testing.T) {
	kStore, kMac := testKeys()
	blob, err := envelope.Seal(kStore, kMac, envelope.Header{ContainerType: envelope.ContainerDerived, InnerKind: envelope.InnerDerived}, nil)
	require.NoError(t, err)

	_, payload, err := envelope.Open(kStore, kMac, blob)
	require.NoError(t, err)
	require.Len(t, payload, 0)
}

// TestTamperedByteFailsVerification covers spec.md §8: tampering with any
// byte of a persisted envelope causes the next Open to fail with a
// MAC/verification error, not silent corruption.
func TestTamperedByteFailsVerification(t *testing.T) {
	kStore, kMac := testKeys()
	blob, err := envelope.Seal(kStore, kMac, envelope.Header{ContainerType: envelope.ContainerRawSymmetric}, []byte("0123456789abcdef"))
	require.NoError(t, err)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)/2] ^= 0x01

	_, _, err = envelope.Open(kStore, kMac, tampered)
	require.Error(t, err)
	require.Equal(t, errcode.VerificationFailed, errcode.Of(err))
}

func TestOpenWrongMacKeyFails(t *testing.T) {
	kStore, kMac := testKeys()
	blob, err := envelope.Seal(kStore, kMac, envelope.Header{}, []byte("payload"))
	require.NoError(t, err)

	wrongMac := make([]byte, 32)
	copy(wrongMac, kMac)
	wrongMac[0] ^= 0xFF

	_, _, err = envelope.Open(kStore, wrongMac, blob)
	require.Error(t, err)
	require.Equal(t, errcode.VerificationFailed, errcode.Of(err))
}

func TestOpenRejectsTooShortBlob(t *testing.T) {
	kStore, kMac := testKeys()
	_, _, err := envelope.Open(kStore, kMac, []byte("too short"))
	require.Error(t, err)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	kStore, kMac := testKeys()
	blob, err := envelope.Seal(kStore, kMac, envelope.Header{}, []byte("payload"))
	require.NoError(t, err)
	blob[0] ^= 0xFF

	_, _, err = envelope.Open(kStore, kMac, blob)
	require.Error(t, err)
}

func TestSealProducesDistinctIVsAcrossCalls(t *testing.T) {
	kStore, kMac := testKeys()
	blobA, err := envelope.Seal(kStore, kMac, envelope.Header{}, []byte("same payload"))
	require.NoError(t, err)
	blobB, err := envelope.Seal(kStore, kMac, envelope.Header{}, []byte("same payload"))
	require.NoError(t, err)
	require.NotEqual(t, blobA, blobB)
}
