package certstore_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseinweb/secproc/pkg/secproc/certstore"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

func selfSignedDER(t *testing.T, cn string) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Unix(0, 0),
		NotAfter:              time.Unix(0, 0).AddDate(10, 0, 0),
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	return der, priv
}

func TestIngestDERThenLoadRoundTrips(t *testing.T) {
	der, _ := selfSignedDER(t, "der-leaf")
	macKey := []byte("cert-mac-key")

	rec, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	cert, err := certstore.Load(rec, macKey)
	require.NoError(t, err)
	require.Equal(t, "der-leaf", cert.Subject.CommonName)
}

// TestIngestPEMThenLoadRoundTrips covers spec.md §8: PEM-in, DER-export
// round-trips to a certificate with an identical MAC.
func TestIngestPEMThenLoadRoundTrips(t *testing.T) {
	der, _ := selfSignedDER(t, "pem-leaf")
	macKey := []byte("cert-mac-key")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	recFromPEM, err := certstore.Ingest(pemBytes, macKey)
	require.NoError(t, err)
	recFromDER, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	require.Equal(t, recFromDER.MAC, recFromPEM.MAC)
	require.Equal(t, recFromDER.DER, recFromPEM.DER)

	cert, err := certstore.Load(recFromPEM, macKey)
	require.NoError(t, err)
	require.Equal(t, "pem-leaf", cert.Subject.CommonName)
}

func TestIngestRejectsGarbage(t *testing.T) {
	_, err := certstore.Ingest([]byte("not a certificate"), []byte("key"))
	require.Error(t, err)
}

// TestTamperedDERFailsVerification is spec.md §8 scenario 4: flipping one
// byte of the stored DER causes Load to fail with VERIFICATION_FAILED.
func TestTamperedDERFailsVerification(t *testing.T) {
	der, _ := selfSignedDER(t, "tamper-leaf")
	macKey := []byte("cert-mac-key")

	rec, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	rec.DER[len(rec.DER)/2] ^= 0x01

	_, err = certstore.Load(rec, macKey)
	require.Error(t, err)
	require.Equal(t, errcode.VerificationFailed, errcode.Of(err))
}

func TestExtractPublicKeyRoundTrips(t *testing.T) {
	der, priv := selfSignedDER(t, "pubkey-leaf")
	macKey := []byte("cert-mac-key")

	rec, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	raw, err := certstore.ExtractPublicKey(rec, macKey)
	require.NoError(t, err)

	modLen := len(priv.N.Bytes())
	// FillBytes pads to the key's full modulus byte length; accept either.
	require.True(t, len(raw) == modLen+4 || len(raw) == modLen+1+4)
}

func TestVerifySignedBySelfSignedCert(t *testing.T) {
	der, _ := selfSignedDER(t, "self-signed")
	macKey := []byte("cert-mac-key")

	rec, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	require.NoError(t, certstore.VerifySignedBy(rec, rec, macKey))
}

func TestVerifyWithKeyAgainstSigningKey(t *testing.T) {
	der, priv := selfSignedDER(t, "key-leaf")
	macKey := []byte("cert-mac-key")

	rec, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	require.NoError(t, certstore.VerifyWithKey(rec, &priv.PublicKey, macKey))
}

func TestVerifyWithKeyAgainstWrongKeyFails(t *testing.T) {
	der, _ := selfSignedDER(t, "key-leaf")
	other, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	macKey := []byte("cert-mac-key")

	rec, err := certstore.Ingest(der, macKey)
	require.NoError(t, err)

	err = certstore.VerifyWithKey(rec, &other.PublicKey, macKey)
	require.Error(t, err)
	require.Equal(t, errcode.VerificationFailed, errcode.Of(err))
}

func TestVerifySignedByWrongSignerFails(t *testing.T) {
	derA, _ := selfSignedDER(t, "leaf-a")
	derB, _ := selfSignedDER(t, "leaf-b")
	macKey := []byte("cert-mac-key")

	recA, err := certstore.Ingest(derA, macKey)
	require.NoError(t, err)
	recB, err := certstore.Ingest(derB, macKey)
	require.NoError(t, err)

	err = certstore.VerifySignedBy(recA, recB, macKey)
	require.Error(t, err)
	require.Equal(t, errcode.VerificationFailed, errcode.Of(err))
}
