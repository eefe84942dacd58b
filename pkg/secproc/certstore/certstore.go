// Package certstore implements the certificate pipeline (spec.md §4.4):
// PEM/DER ingest, DER normalization, HMAC-SHA-256 sealing under the
// cert-store MAC key, verify-on-load, public-key extraction, and signature
// verification against a key handle.
package certstore

import (
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// Record is the on-disk/in-memory certificate record (spec.md §3): the
// DER-normalized bytes plus their HMAC-SHA-256 tag under the cert-MAC key.
type Record struct {
	DER []byte
	MAC [32]byte
}

// Ingest accepts PEM or DER X.509, normalizes to DER, and seals a Record
// under macKey. PEM is tried first (a DER blob never parses as PEM).
func Ingest(raw, macKey []byte) (Record, error) {
	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return Record{}, errcode.New("certstore.Ingest", errcode.InvalidParameters, "%w", err)
	}
	return seal(der, macKey), nil
}

func seal(der, macKey []byte) Record {
	var rec Record
	rec.DER = append([]byte(nil), der...)
	mac := hmac.New(sha256.New, macKey)
	mac.Write(rec.DER)
	copy(rec.MAC[:], mac.Sum(nil))
	return rec
}

// Verify recomputes the HMAC over rec.DER under macKey and compares it to
// rec.MAC, returning errcode.ErrVerificationFailed on any mismatch
// (spec.md §4.4, and the tamper scenario in spec.md §8 item 4).
func Verify(rec Record, macKey []byte) error {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(rec.DER)
	want := mac.Sum(nil)
	if !hmac.Equal(want, rec.MAC[:]) {
		return errcode.ErrVerificationFailed
	}
	return nil
}

// Load is Verify followed by parsing, so a caller never observes an
// unauthenticated certificate (spec.md §3 invariant: "loading verifies this
// before the certificate becomes observable").
func Load(rec Record, macKey []byte) (*x509.Certificate, error) {
	if err := Verify(rec, macKey); err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(rec.DER)
	if err != nil {
		return nil, errcode.New("certstore.Load", errcode.Failure, "%w", err)
	}
	return cert, nil
}

// ExtractPublicKey returns the embedded RSA public key in the canonical
// raw-RSA public layout keycontainer.Provision would produce for a DER
// SubjectPublicKeyInfo input (spec.md §4.4: "in the canonical raw-RSA
// public layout").
func ExtractPublicKey(rec Record, macKey []byte) ([]byte, error) {
	cert, err := Load(rec, macKey)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errcode.New("certstore.ExtractPublicKey", errcode.InvalidParameters, "certificate public key is not RSA")
	}
	return rawRSAPublicFromCert(pub)
}

// VerifySignedBy verifies cert's own X.509 signature against the public key
// extracted from MAC-sealed cert record signerRec — the case where the
// signer is itself a provisioned certificate, not just a bare key (spec.md
// §4.4). It uses CheckSignatureFrom, so the signer certificate must also
// carry CA basic constraints (and cert-sign key usage, if any key usage is
// set).
func VerifySignedBy(rec, signerRec Record, macKey []byte) error {
	cert, err := Load(rec, macKey)
	if err != nil {
		return err
	}
	signer, err := Load(signerRec, macKey)
	if err != nil {
		return err
	}
	if err := cert.CheckSignatureFrom(signer); err != nil {
		return errcode.ErrVerificationFailed
	}
	return nil
}

// VerifyWithKey verifies cert's own X.509 signature directly against pub —
// "verification against a key handle extracts the key's public half and
// verifies the X.509 signature" (spec.md §4.4) for the case where the
// trust anchor is a provisioned raw/DER/PEM RSA key rather than a second
// ingested certificate. CheckSignature (not CheckSignatureFrom) is used
// deliberately: pub has no issuer chain or key-usage bits to check against,
// only a signature to verify.
func VerifyWithKey(rec Record, pub *rsa.PublicKey, macKey []byte) error {
	cert, err := Load(rec, macKey)
	if err != nil {
		return err
	}
	signer := &x509.Certificate{PublicKey: pub}
	if err := signer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return errcode.ErrVerificationFailed
	}
	return nil
}

// rawRSAPublicFromCert packages pub in the same N||E(4,BE) layout
// keycontainer uses internally for raw RSA public keys.
func rawRSAPublicFromCert(pub *rsa.PublicKey) ([]byte, error) {
	modLen := (pub.N.BitLen() + 7) / 8
	out := make([]byte, modLen+4)
	pub.N.FillBytes(out[:modLen])
	out[modLen] = byte(pub.E >> 24)
	out[modLen+1] = byte(pub.E >> 16)
	out[modLen+2] = byte(pub.E >> 8)
	out[modLen+3] = byte(pub.E)
	return out, nil
}
