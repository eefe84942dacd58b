package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joseinweb/secproc/internal/logging"
	"github.com/joseinweb/secproc/pkg/secproc"
	"github.com/joseinweb/secproc/pkg/secproc/cryptoprim"
	"github.com/joseinweb/secproc/pkg/secproc/envelope"
	"github.com/joseinweb/secproc/pkg/secproc/objectid"
)

func main() {
	dataDir := flag.String("data-dir", "secproc-data", "base directory for key/cert/bundle stores")
	verbose := flag.Bool("verbose", false, "enable console logging")
	flag.Parse()

	cfg := secproc.Config{
		KeyDir:    *dataDir + "/keys",
		CertDir:   *dataDir + "/certs",
		BundleDir: *dataDir + "/bundles",
	}
	if *verbose {
		cfg.Logger = logging.Stderr(false)
	}

	p, err := secproc.New(cfg)
	if err != nil {
		log.Fatalf("open processor: %v", err)
	}
	defer func() {
		if err := p.Release(); err != nil {
			log.Printf("release: %v", err)
		}
	}()

	id, err := p.GetDeviceId()
	if err != nil {
		log.Fatalf("get device id: %v", err)
	}
	fmt.Printf("device id: %x\n", id)

	aesKey := make([]byte, 16)
	for i := range aesKey {
		aesKey[i] = byte(i)
	}
	// Re-running against the same -data-dir would otherwise collide with a
	// key this binary provisioned on a prior run.
	_ = p.DeleteKey(100)
	if err := p.ProvisionKey(100, objectid.File, envelope.ContainerRawSymmetric, aesKey, cryptoprim.AES128); err != nil {
		log.Fatalf("provision key: %v", err)
	}

	resolved, err := p.ResolveSymmetricKey(100)
	if err != nil {
		log.Fatalf("resolve key: %v", err)
	}

	iv := make([]byte, 16)
	sess, err := cryptoprim.NewCipherSession(cryptoprim.Encrypt, cryptoprim.CipherParams{Algorithm: cryptoprim.AESCBCPKCS7, IV: iv}, resolved)
	if err != nil {
		log.Fatalf("open cipher session: %v", err)
	}
	ciphertext, err := sess.Process([]byte("hello from the secure processor"), true)
	sess.Release()
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}

	fmt.Printf("ciphertext (%d bytes): %x\n", len(ciphertext), ciphertext)

	snap, err := p.Snapshot()
	if err != nil {
		log.Fatalf("snapshot: %v", err)
	}
	fmt.Printf("keys: ram=%d file=%d  certs: ram=%d file=%d  bundles: ram=%d file=%d\n",
		snap.Keys.RAM, snap.Keys.File, snap.Certs.RAM, snap.Certs.File, snap.Bundles.RAM, snap.Bundles.File)
}
