// Package secproc implements the core of a software secure-processor
// simulator (spec.md §1-§9): an object manager over keys, certificates, and
// bundles; an authenticated key-store envelope; and a key-derivation engine,
// wired together behind a single Processor handle.
package secproc

import (
	"crypto/rsa"
	"crypto/x509"

	"github.com/joseinweb/secproc/internal/logging"
	"github.com/joseinweb/secproc/internal/zeroize"
	"github.com/joseinweb/secproc/pkg/secproc/certstore"
	"github.com/joseinweb/secproc/pkg/secproc/cryptoprim"
	"github.com/joseinweb/secproc/pkg/secproc/envelope"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
	"github.com/joseinweb/secproc/pkg/secproc/kdf"
	"github.com/joseinweb/secproc/pkg/secproc/keycontainer"
	"github.com/joseinweb/secproc/pkg/secproc/objectid"
	"github.com/joseinweb/secproc/pkg/secproc/store"
)

// Processor is a single secure-processor instance (spec.md §3 "Processor
// handle"). It owns three object stores (keys, certs, bundles) and the
// RAM-only bootstrap keys that anchor the key-store envelope's trust chain.
// Not safe for concurrent use by multiple goroutines without external
// synchronization — the same caller responsibility store.Store documents.
type Processor struct {
	keys    *store.Store[KeyRecord]
	certs   *store.Store[certstore.Record]
	bundles *store.Store[[]byte]

	deviceID [16]byte
	rootKey  [16]byte

	// kStore/kMac key and authenticate every persisted key-store envelope;
	// certMacKey authenticates every persisted certificate record. All
	// three are RAM-only and never themselves sealed (spec.md §4.2, §4.4).
	kStore, kMac [16]byte
	certMacKey   [32]byte

	unknownHook keycontainer.UnknownHook
	logger      logging.Logger
	released    bool
}

// New constructs a Processor from cfg, creating its on-disk store
// directories and deriving its bootstrap keys from the (possibly default)
// root key (spec.md §4.2, §4.6, §9).
func New(cfg Config) (*Processor, error) {
	cfg = cfg.resolve()

	keys, err := store.New[KeyRecord](cfg.KeyDir, ".key", ".keyinfo", keyRecordCodec{})
	if err != nil {
		return nil, err
	}
	certs, err := store.New[certstore.Record](cfg.CertDir, ".cert", ".certinfo", certRecordCodec{})
	if err != nil {
		return nil, err
	}
	bundles, err := store.New[[]byte](cfg.BundleDir, ".bundle", "", bundleCodec{})
	if err != nil {
		return nil, err
	}

	p := &Processor{
		keys:        keys,
		certs:       certs,
		bundles:     bundles,
		unknownHook: cfg.UnknownContainerHandler,
		logger:      cfg.Logger,
	}

	if cfg.DeviceID != nil {
		p.deviceID = *cfg.DeviceID
	} else {
		p.deviceID = defaultDeviceID
	}
	if cfg.RootKey != nil {
		p.rootKey = *cfg.RootKey
	} else {
		p.rootKey = defaultRootKey
	}

	if err := p.bootstrap(); err != nil {
		return nil, err
	}

	p.logger.Info("processor initialized", map[string]any{"key_dir": cfg.KeyDir, "cert_dir": cfg.CertDir, "bundle_dir": cfg.BundleDir})
	return p, nil
}

// bootstrap derives K_store, K_mac, and the certificate-store MAC key from
// the root key and records them as unsealed, RAM-soft-wrapped KeyRecords
// under their reserved identifiers (spec.md §4.2, §4.4, §4.6).
func (p *Processor) bootstrap() error {
	kStorePayload, kMacPayload := kdf.DeriveStoreKeys(p.rootKey)

	kStore, err := kdf.ExpandDerived(p.rootKey, kStorePayload)
	if err != nil {
		return err
	}
	kMac, err := kdf.ExpandDerived(p.rootKey, kMacPayload)
	if err != nil {
		return err
	}
	p.kStore = kStore
	p.kMac = kMac

	// The cert-store MAC key is a full HMAC-SHA-256 key, derived from a
	// fixed nonce's base key via Concat-KDF (spec.md §8 scenario 3's
	// "certMacKey" worked example names this exact derivation).
	base, err := kdf.ProvisionBaseKey(p.rootKey, []byte("abcdefghijklmnopqr\x00\x00"))
	if err != nil {
		return err
	}
	certMac, err := kdf.ConcatKDF(kdf.SHA1, base.AES, []byte("certMacKey"+"hmacSha256"+"concatKdfSha1"), 32)
	if err != nil {
		return err
	}
	copy(p.certMacKey[:], certMac)
	zeroize.Bytes(certMac)

	if err := p.storeBootstrapKey(objectid.AESStoreKey, cryptoprim.AES128, p.kStore[:]); err != nil {
		return err
	}
	if err := p.storeBootstrapKey(objectid.MACGenStoreKey, cryptoprim.HMAC128, p.kMac[:]); err != nil {
		return err
	}
	if err := p.storeBootstrapKey(objectid.CertStoreMACKey, cryptoprim.HMAC256, p.certMacKey[:]); err != nil {
		return err
	}
	return nil
}

func (p *Processor) storeBootstrapKey(id objectid.ID, keyType cryptoprim.KeyType, raw []byte) error {
	payload := make([]byte, len(raw))
	copy(payload, raw)
	return p.keys.Store(id, objectid.RAMSoftWrapped, KeyRecord{
		Info:     KeyInfo{KeyType: uint8(keyType), OriginalContainerType: envelope.ContainerRawSymmetric, InnerKind: envelope.InnerRaw, Sealed: false},
		Envelope: payload,
	})
}

// Release invalidates the processor handle: in-memory-only records are
// dropped, the bootstrap keys and root key are zeroized, and file-backed
// records are left untouched (spec.md §3 "Lifecycles"). It is idempotent;
// a Processor already released returns errcode.ErrInvalidHandle on every
// subsequent call, including a second Release.
func (p *Processor) Release() error {
	if p.released {
		return errcode.ErrInvalidHandle
	}
	p.keys.ClearMemory()
	p.certs.ClearMemory()
	p.bundles.ClearMemory()

	zeroize.Bytes(p.rootKey[:])
	zeroize.Bytes(p.kStore[:])
	zeroize.Bytes(p.kMac[:])
	zeroize.Bytes(p.certMacKey[:])

	p.released = true
	p.logger.Info("processor released", nil)
	return nil
}

func (p *Processor) checkReleased() error {
	if p.released {
		return errcode.ErrInvalidHandle
	}
	return nil
}

// GetDeviceId returns the processor's 16-byte device identifier (spec.md §8
// scenario 1).
func (p *Processor) GetDeviceId() ([16]byte, error) {
	if err := p.checkReleased(); err != nil {
		return [16]byte{}, err
	}
	return p.deviceID, nil
}

// GetKeyLadderMinDepth returns the key ladder's minimum depth
// (SecProcessor_GetKeyLadderMinDepth, spec.md §9). Kept as a distinct
// accessor from GetKeyLadderMaxDepth rather than collapsed into one
// function, matching spec.md's duplicate-surfaced API shape.
func (p *Processor) GetKeyLadderMinDepth() (int, error) {
	if err := p.checkReleased(); err != nil {
		return 0, err
	}
	return kdf.LadderDepth, nil
}

// GetKeyLadderMaxDepth returns the key ladder's maximum depth
// (SecProcessor_GetKeyLadderMaxDepth, spec.md §9). It returns the same
// constant as GetKeyLadderMinDepth; spec.md §9 documents this as
// intentional rather than an unfinished API.
func (p *Processor) GetKeyLadderMaxDepth() (int, error) {
	if err := p.checkReleased(); err != nil {
		return 0, err
	}
	return kdf.LadderDepth, nil
}

// ProvisionKey runs raw through the key-container provisioner and stores the
// resulting envelope (sealing it first, unless the container was already a
// pre-wrapped store blob) under id at loc (spec.md §4.1, §4.3). It rejects
// an id that already resolves with errcode.ErrItemAlreadyProvisioned
// (SecKey_Generate, spec.md §9) — callers that want overwrite semantics
// must DeleteKey first.
func (p *Processor) ProvisionKey(id objectid.ID, loc objectid.Location, ctype envelope.ContainerType, raw []byte, keyType cryptoprim.KeyType) error {
	if err := p.checkReleased(); err != nil {
		return err
	}

	if _, _, err := p.keys.Retrieve(id); err == nil {
		return errcode.ErrItemAlreadyProvisioned
	}

	res, err := keycontainer.Provision(ctype, raw, keyType, keycontainer.Options{
		PreWrappedMACKey: p.kMac[:],
		Unknown:          p.unknownHook,
	})
	if err != nil {
		return err
	}

	rec := KeyRecord{
		Info: KeyInfo{
			KeyType:               res.Header.KeyType,
			OriginalContainerType: res.Header.ContainerType,
			InnerKind:             res.Header.InnerKind,
			Sealed:                res.NeedsSeal,
		},
	}

	if res.NeedsSeal {
		sealed, err := envelope.Seal(p.kStore[:], p.kMac[:], res.Header, res.Payload)
		zeroize.Bytes(res.Payload)
		if err != nil {
			return err
		}
		rec.Envelope = sealed
	} else {
		rec.Envelope = res.Payload
	}

	p.logger.Debug("key provisioned", map[string]any{"id": uint64(id), "location": loc.String(), "key_type": rec.Info.KeyType})
	return p.keys.Store(id, loc, rec)
}

// resolvePayload unwraps the KeyRecord at id down to its plaintext payload,
// branching on whether the record is sealed and, if so, on its inner kind
// (spec.md §4.2, §4.6). The returned bytes are freshly allocated.
func (p *Processor) resolvePayload(id objectid.ID) (KeyRecord, []byte, error) {
	rec, _, err := p.keys.Retrieve(id)
	if err != nil {
		return KeyRecord{}, nil, err
	}

	if !rec.Info.Sealed {
		payload := make([]byte, len(rec.Envelope))
		copy(payload, rec.Envelope)
		return rec, payload, nil
	}

	_, payload, err := envelope.Open(p.kStore[:], p.kMac[:], rec.Envelope)
	if err != nil {
		return KeyRecord{}, nil, err
	}

	if rec.Info.InnerKind == envelope.InnerDerived {
		if len(payload) != 32 {
			zeroize.Bytes(payload)
			return KeyRecord{}, nil, errcode.New("secproc.resolvePayload", errcode.InvalidInputSize, "derived payload must be 32 bytes, got %d", len(payload))
		}
		var buf [32]byte
		copy(buf[:], payload)
		defer zeroize.GuardAll(payload, buf[:])()

		expanded, err := kdf.ExpandDerived(p.rootKey, buf)
		if err != nil {
			return KeyRecord{}, nil, err
		}
		out := make([]byte, 16)
		copy(out, expanded[:])
		zeroize.Bytes(expanded[:])
		return rec, out, nil
	}
	return rec, payload, nil
}

// ResolveSymmetricKey unwraps id and returns its raw symmetric key bytes,
// ready for cryptoprim.NewCipherSession or cryptoprim.NewMACSession.
func (p *Processor) ResolveSymmetricKey(id objectid.ID) ([]byte, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	rec, payload, err := p.resolvePayload(id)
	if err != nil {
		return nil, err
	}
	if !cryptoprim.KeyType(rec.Info.KeyType).IsSymmetric() && rec.Info.InnerKind != envelope.InnerDerived {
		zeroize.Bytes(payload)
		return nil, errcode.New("secproc.ResolveSymmetricKey", errcode.InvalidParameters, "id %d is not a symmetric key", id)
	}
	return payload, nil
}

// ResolveRSAPrivate unwraps id and reconstructs its *rsa.PrivateKey.
func (p *Processor) ResolveRSAPrivate(id objectid.ID) (*rsa.PrivateKey, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	rec, payload, err := p.resolvePayload(id)
	if err != nil {
		return nil, err
	}
	defer zeroize.Bytes(payload)
	if !cryptoprim.KeyType(rec.Info.KeyType).IsRSAPrivate() {
		return nil, errcode.New("secproc.ResolveRSAPrivate", errcode.InvalidParameters, "id %d is not an RSA private key", id)
	}
	return keycontainer.DecodeRawRSAPrivate(cryptoprim.KeyType(rec.Info.KeyType), payload)
}

// ResolveRSAPublic unwraps id and reconstructs its *rsa.PublicKey.
func (p *Processor) ResolveRSAPublic(id objectid.ID) (*rsa.PublicKey, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	rec, payload, err := p.resolvePayload(id)
	if err != nil {
		return nil, err
	}
	defer zeroize.Bytes(payload)
	if !cryptoprim.KeyType(rec.Info.KeyType).IsRSAPublic() {
		return nil, errcode.New("secproc.ResolveRSAPublic", errcode.InvalidParameters, "id %d is not an RSA public key", id)
	}
	return keycontainer.DecodeRawRSAPublic(cryptoprim.KeyType(rec.Info.KeyType), payload)
}

// DeleteKey removes id from the key store (spec.md §8 scenario 6).
func (p *Processor) DeleteKey(id objectid.ID) error {
	if err := p.checkReleased(); err != nil {
		return err
	}
	return p.keys.Delete(id)
}

// IngestCertificate parses and MACs raw (PEM or DER) under certMacKey and
// stores the resulting record under id at loc (spec.md §4.4).
func (p *Processor) IngestCertificate(id objectid.ID, loc objectid.Location, raw []byte) error {
	if err := p.checkReleased(); err != nil {
		return err
	}
	rec, err := certstore.Ingest(raw, p.certMacKey[:])
	if err != nil {
		return err
	}
	return p.certs.Store(id, loc, rec)
}

// Certificate retrieves and re-authenticates the certificate stored at id.
func (p *Processor) Certificate(id objectid.ID) (*x509.Certificate, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	rec, _, err := p.certs.Retrieve(id)
	if err != nil {
		return nil, err
	}
	return certstore.Load(rec, p.certMacKey[:])
}

// VerifyCertificateSignedByKey verifies the certificate stored at certID
// against the RSA public key stored at keyID — "verification against a key
// handle" (spec.md §4.4) for a trust anchor that was provisioned as a bare
// key rather than ingested as a second certificate.
func (p *Processor) VerifyCertificateSignedByKey(certID, keyID objectid.ID) error {
	if err := p.checkReleased(); err != nil {
		return err
	}
	rec, _, err := p.certs.Retrieve(certID)
	if err != nil {
		return err
	}
	pub, err := p.ResolveRSAPublic(keyID)
	if err != nil {
		return err
	}
	return certstore.VerifyWithKey(rec, pub, p.certMacKey[:])
}

// DeleteCertificate removes id from the certificate store.
func (p *Processor) DeleteCertificate(id objectid.ID) error {
	if err := p.checkReleased(); err != nil {
		return err
	}
	return p.certs.Delete(id)
}

// StoreBundle persists an uninterpreted byte blob under id at loc (spec.md
// §3 "Bundle record").
func (p *Processor) StoreBundle(id objectid.ID, loc objectid.Location, raw []byte) error {
	if err := p.checkReleased(); err != nil {
		return err
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return p.bundles.Store(id, loc, cp)
}

// Bundle retrieves the raw bytes stored under id.
func (p *Processor) Bundle(id objectid.ID) ([]byte, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	rec, _, err := p.bundles.Retrieve(id)
	return rec, err
}

// DeleteBundle removes id from the bundle store.
func (p *Processor) DeleteBundle(id objectid.ID) error {
	if err := p.checkReleased(); err != nil {
		return err
	}
	return p.bundles.Delete(id)
}

// ListKeys, ListCertificates, and ListBundles expose each store's resolvable
// identifiers across both tiers (spec.md §4.1).
func (p *Processor) ListKeys() ([]objectid.ID, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	return p.keys.List(), nil
}

func (p *Processor) ListCertificates() ([]objectid.ID, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	return p.certs.List(), nil
}

func (p *Processor) ListBundles() ([]objectid.ID, error) {
	if err := p.checkReleased(); err != nil {
		return nil, err
	}
	return p.bundles.List(), nil
}

// Snapshot is a read-only debug accessor reporting per-store, per-tier
// record counts (spec.md §9 supplemented feature). It is used only by
// tests and the illustrative cmd/ binary — no operation in this package
// relies on it.
type Snapshot struct {
	Keys    store.Stats
	Certs   store.Stats
	Bundles store.Stats
}

func (p *Processor) Snapshot() (Snapshot, error) {
	if err := p.checkReleased(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Keys:    p.keys.Stats(),
		Certs:   p.certs.Stats(),
		Bundles: p.bundles.Stats(),
	}, nil
}
