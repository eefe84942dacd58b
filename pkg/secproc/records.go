package secproc

import (
	"github.com/joseinweb/secproc/pkg/secproc/certstore"
	"github.com/joseinweb/secproc/pkg/secproc/envelope"
	"github.com/joseinweb/secproc/pkg/secproc/errcode"
)

// KeyInfo is the key record's small metadata struct (spec.md §3: "info:
// {key_type, original_container_type, inner_container_kind}"), persisted
// alongside the envelope in the `.keyinfo` sidecar.
type KeyInfo struct {
	KeyType               uint8
	OriginalContainerType envelope.ContainerType
	InnerKind             envelope.InnerKind
	// Sealed is false only for the handful of processor-internal bootstrap
	// keys (the soft-wrapped store/MAC-gen/cert-MAC keys) that anchor the
	// envelope trust chain itself and so cannot be sealed by it — they live
	// RAM-soft-wrapped and unsealed for the life of the processor.
	Sealed bool
}

// KeyRecord is the key object stored under every key identifier (spec.md
// §3): Envelope is the sealed bytes (or, for unsealed bootstrap keys, the
// raw payload) that Info.Sealed describes how to interpret.
type KeyRecord struct {
	Info     KeyInfo
	Envelope []byte
}

const keyInfoSize = 3

// keyRecordCodec implements store.Codec[KeyRecord]: primary is the envelope
// bytes (`.key`), sidecar is the 4-byte KeyInfo (`.keyinfo`): the three
// type/kind bytes followed by the Sealed flag.
type keyRecordCodec struct{}

func (keyRecordCodec) Marshal(rec KeyRecord) ([]byte, []byte, error) {
	sidecar := []byte{rec.Info.KeyType, byte(rec.Info.OriginalContainerType), byte(rec.Info.InnerKind)}
	if rec.Info.Sealed {
		sidecar = append(sidecar, 1)
	} else {
		sidecar = append(sidecar, 0)
	}
	return rec.Envelope, sidecar, nil
}

func (keyRecordCodec) Unmarshal(primary, sidecar []byte) (KeyRecord, error) {
	if len(sidecar) != keyInfoSize+1 {
		return KeyRecord{}, errcode.New("secproc.keyRecordCodec.Unmarshal", errcode.InvalidInputSize, "keyinfo sidecar must be %d bytes, got %d", keyInfoSize+1, len(sidecar))
	}
	return KeyRecord{
		Info: KeyInfo{
			KeyType:               sidecar[0],
			OriginalContainerType: envelope.ContainerType(sidecar[1]),
			InnerKind:             envelope.InnerKind(sidecar[2]),
			Sealed:                sidecar[3] != 0,
		},
		Envelope: primary,
	}, nil
}

// certRecordCodec implements store.Codec for certstore.Record: primary is
// the DER bytes (`.cert`), sidecar is the 32-byte MAC (`.certinfo`),
// matching spec.md §6.
type certRecordCodec struct{}

func (certRecordCodec) Marshal(rec certstore.Record) ([]byte, []byte, error) {
	return rec.DER, rec.MAC[:], nil
}

func (certRecordCodec) Unmarshal(primary, sidecar []byte) (certstore.Record, error) {
	if len(sidecar) != 32 {
		return certstore.Record{}, errcode.New("secproc.certRecordCodec.Unmarshal", errcode.InvalidInputSize, "cert MAC sidecar must be 32 bytes, got %d", len(sidecar))
	}
	var rec certstore.Record
	rec.DER = primary
	copy(rec.MAC[:], sidecar)
	return rec, nil
}

// bundleCodec implements store.Codec[[]byte]: bundles are uninterpreted
// bytes with no sidecar (spec.md §3 "Bundle record: {bytes, len} —
// uninterpreted").
type bundleCodec struct{}

func (bundleCodec) Marshal(rec []byte) ([]byte, []byte, error) {
	return rec, nil, nil
}

func (bundleCodec) Unmarshal(primary, _ []byte) ([]byte, error) {
	return primary, nil
}
