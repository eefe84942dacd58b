package cryptoprim_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseinweb/secproc/pkg/secproc/cryptoprim"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

func genRSAKey(t *testing.T, bits int) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, bits)
	require.NoError(t, err)
	return k
}

// TestSignVerifyDataFlavorRoundTrip covers spec.md §8: sign-then-verify with
// the matching key pair succeeds.
func TestSignVerifyDataFlavorRoundTrip(t *testing.T) {
	priv := genRSAKey(t, 1024)
	msg := []byte("the message to sign")

	sign, err := cryptoprim.NewSignSession(priv, cryptoprim.SHA256, cryptoprim.FlavorData)
	require.NoError(t, err)
	sign.Update(msg)
	sig, err := sign.Release()
	require.NoError(t, err)

	verify, err := cryptoprim.NewVerifySession(&priv.PublicKey, cryptoprim.SHA256, cryptoprim.FlavorData)
	require.NoError(t, err)
	verify.Update(msg)
	require.NoError(t, verify.Release(sig))
}

// TestVerifyWithDifferentKeyFails covers spec.md §8: verifying against a
// public key that doesn't match the signer returns VERIFICATION_FAILED.
func TestVerifyWithDifferentKeyFails(t *testing.T) {
	priv := genRSAKey(t, 1024)
	other := genRSAKey(t, 1024)
	msg := []byte("the message to sign")

	sign, err := cryptoprim.NewSignSession(priv, cryptoprim.SHA256, cryptoprim.FlavorData)
	require.NoError(t, err)
	sign.Update(msg)
	sig, err := sign.Release()
	require.NoError(t, err)

	verify, err := cryptoprim.NewVerifySession(&other.PublicKey, cryptoprim.SHA256, cryptoprim.FlavorData)
	require.NoError(t, err)
	verify.Update(msg)
	err = verify.Release(sig)
	require.Error(t, err)
	require.Equal(t, errcode.VerificationFailed, errcode.Of(err))
}

func TestSignVerifyDigestFlavorRoundTrip(t *testing.T) {
	priv := genRSAKey(t, 1024)

	digester, err := cryptoprim.NewDigestSession(cryptoprim.SHA256)
	require.NoError(t, err)
	digester.Update([]byte("precomputed digest input"))
	digest := digester.Release()

	sign, err := cryptoprim.NewSignSession(priv, cryptoprim.SHA256, cryptoprim.FlavorDigest)
	require.NoError(t, err)
	require.NoError(t, sign.Update(digest))
	sig, err := sign.Release()
	require.NoError(t, err)

	verify, err := cryptoprim.NewVerifySession(&priv.PublicKey, cryptoprim.SHA256, cryptoprim.FlavorDigest)
	require.NoError(t, err)
	require.NoError(t, verify.Update(digest))
	require.NoError(t, verify.Release(sig))
}

func TestSignDigestFlavorRejectsWrongLength(t *testing.T) {
	priv := genRSAKey(t, 1024)
	sign, err := cryptoprim.NewSignSession(priv, cryptoprim.SHA256, cryptoprim.FlavorDigest)
	require.NoError(t, err)
	err = sign.Update([]byte("too short"))
	require.Error(t, err)
	require.Equal(t, errcode.InvalidInputSize, errcode.Of(err))
}

func TestSignDigestFlavorRejectsSecondUpdate(t *testing.T) {
	priv := genRSAKey(t, 1024)
	sign, err := cryptoprim.NewSignSession(priv, cryptoprim.SHA256, cryptoprim.FlavorDigest)
	require.NoError(t, err)
	digest := make([]byte, cryptoprim.SHA256.Size())
	require.NoError(t, sign.Update(digest))
	err = sign.Update(digest)
	require.Error(t, err)
}
