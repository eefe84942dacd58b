package secproc

import (
	"github.com/joseinweb/secproc/internal/logging"
	"github.com/joseinweb/secproc/pkg/secproc/keycontainer"
)

// defaultKeyDir, defaultCertDir, and defaultBundleDir are the per-platform
// fallbacks used when Config leaves a directory unset (spec.md §6).
const (
	defaultKeyDir    = "secproc-data/keys"
	defaultCertDir   = "secproc-data/certs"
	defaultBundleDir = "secproc-data/bundles"
)

// defaultDeviceID and defaultRootKey are the hard-coded platform constants
// used only when the caller supplies none (spec.md §9 "Fixed device id and
// root key": "injectable at processor construction, with the hard-coded
// values used only when the caller supplies none"). defaultDeviceID matches
// the literal scenario in spec.md §8 item 1; defaultRootKey matches the
// 00..0F convention used throughout spec.md §8's worked examples.
var (
	defaultDeviceID = [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 0, 0, 0, 0, 0, 0, 0, 0}
	defaultRootKey  = [16]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
)

// Config configures a new Processor (spec.md §3 "Processor handle", §6
// "Configuration").
type Config struct {
	// KeyDir, CertDir, BundleDir are the per-store on-disk directories.
	// Empty strings fall back to the per-platform defaults.
	KeyDir, CertDir, BundleDir string

	// DeviceID and RootKey override the hard-coded platform constants; nil
	// means "use the default" (spec.md §9).
	DeviceID *[16]byte
	RootKey  *[16]byte

	// UnknownContainerHandler is invoked for key-container types the core
	// does not itself understand (spec.md §4.3, §9 — processor-scoped
	// configuration rather than a process-wide callback).
	UnknownContainerHandler keycontainer.UnknownHook

	// Logger receives structured diagnostics; nil discards everything.
	Logger logging.Logger
}

func (c Config) resolve() Config {
	out := c
	if out.KeyDir == "" {
		out.KeyDir = defaultKeyDir
	}
	if out.CertDir == "" {
		out.CertDir = defaultCertDir
	}
	if out.BundleDir == "" {
		out.BundleDir = defaultBundleDir
	}
	if out.Logger == nil {
		out.Logger = logging.Discard()
	}
	return out
}
