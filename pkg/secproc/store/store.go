// Package store implements the object manager's L1 storage tier: an
// in-memory, identifier-indexed set backed by an on-disk mirror, used
// identically for keys, certificates, and bundles (spec.md §4.1).
//
// The teacher's stores were intrusive singly-linked lists walked linearly;
// spec.md §9 notes that requirement is really "identifier-indexed unique
// set" and any conforming implementation (hash map, ordered map) satisfies
// it, so this uses a map instead while keeping the same retrieve/store/
// delete/list shape and resolution order.
package store

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
	"github.com/joseinweb/secproc/pkg/secproc/objectid"
)

// Codec converts a record of type T to and from its on-disk representation.
// Sidecar may be nil when a kind has no metadata sidecar (bundles).
type Codec[T any] interface {
	Marshal(rec T) (primary []byte, sidecar []byte, err error)
	Unmarshal(primary []byte, sidecar []byte) (T, error)
}

// Store is a single object kind's storage tier (keys, certs, or bundles).
// It is not safe for concurrent use without external synchronization —
// spec.md §5 makes this an explicit caller responsibility.
type Store[T any] struct {
	dir        string
	primaryExt string
	sidecarExt string // empty when this kind has no sidecar file
	codec      Codec[T]

	mu  sync.Mutex // guards mem only; see doc comment above re: external sync
	mem map[objectid.ID]T
}

// New creates a Store rooted at dir, using primaryExt/sidecarExt as the
// on-disk filename suffixes (spec.md §6: "{id}.key"/"{id}.keyinfo" etc).
// dir is created if absent; a trailing separator is appended if missing
// (spec.md §6).
func New[T any](dir, primaryExt, sidecarExt string, codec Codec[T]) (*Store[T], error) {
	if dir == "" {
		return nil, errcode.New("store.New", errcode.InvalidParameters, "empty directory")
	}
	if dir[len(dir)-1] != filepath.Separator {
		dir = dir + string(filepath.Separator)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errcode.New("store.New", errcode.Failure, "mkdir %s: %w", dir, err)
	}
	return &Store[T]{
		dir:        dir,
		primaryExt: primaryExt,
		sidecarExt: sidecarExt,
		codec:      codec,
		mem:        make(map[objectid.ID]T),
	}, nil
}

func (s *Store[T]) primaryPath(id objectid.ID) string {
	return filepath.Join(s.dir, strconv.FormatUint(uint64(id), 10)+s.primaryExt)
}

func (s *Store[T]) sidecarPath(id objectid.ID) string {
	return filepath.Join(s.dir, strconv.FormatUint(uint64(id), 10)+s.sidecarExt)
}

// Retrieve resolves id against memory first, then the filesystem, then the
// reserved OEM range (which never resolves on this platform). It returns
// errcode.NoSuchItem when nothing matches any tier.
func (s *Store[T]) Retrieve(id objectid.ID) (T, objectid.Location, error) {
	var zero T
	if id == objectid.Invalid {
		return zero, 0, errcode.New("store.Retrieve", errcode.InvalidParameters, "invalid object id")
	}

	s.mu.Lock()
	rec, ok := s.mem[id]
	s.mu.Unlock()
	if ok {
		return rec, objectid.RAM, nil
	}

	primary, err := os.ReadFile(s.primaryPath(id))
	if err == nil {
		var sidecar []byte
		if s.sidecarExt != "" {
			sidecar, err = os.ReadFile(s.sidecarPath(id))
			if err != nil {
				return zero, 0, errcode.New("store.Retrieve", errcode.Failure, "read sidecar for %d: %w", id, err)
			}
		}
		rec, err := s.codec.Unmarshal(primary, sidecar)
		if err != nil {
			return zero, 0, errcode.New("store.Retrieve", errcode.VerificationFailed, "decode %d: %w", id, err)
		}
		return rec, objectid.File, nil
	}
	if !os.IsNotExist(err) {
		return zero, 0, errcode.New("store.Retrieve", errcode.Failure, "read %d: %w", id, err)
	}

	// Reserved identifier ranges (OEM) resolve nowhere on this platform.
	return zero, 0, errcode.ErrNoSuchItem
}

// Store persists rec at id in the requested location, first purging any
// existing record under id from both tiers (spec.md §3 invariant: at most
// one live record per identifier across memory and file).
func (s *Store[T]) Store(id objectid.ID, loc objectid.Location, rec T) error {
	if id == objectid.Invalid {
		return errcode.New("store.Store", errcode.InvalidParameters, "invalid object id")
	}
	if loc == objectid.OEM {
		return errcode.ErrUnimplementedFeature
	}

	// Delete-then-insert: purge any existing record under id from both
	// tiers before writing (spec.md §4.1).
	s.purge(id)

	switch {
	case loc.IsRAM():
		s.mu.Lock()
		s.mem[id] = rec
		s.mu.Unlock()
		return nil
	case loc.IsFile():
		primary, sidecar, err := s.codec.Marshal(rec)
		if err != nil {
			return errcode.New("store.Store", errcode.InvalidParameters, "encode %d: %w", id, err)
		}
		if err := os.WriteFile(s.primaryPath(id), primary, 0o600); err != nil {
			return errcode.New("store.Store", errcode.Failure, "write %d: %w", id, err)
		}
		if s.sidecarExt != "" {
			if err := os.WriteFile(s.sidecarPath(id), sidecar, 0o600); err != nil {
				// Best-effort cleanup of the half-written pair.
				_ = os.Remove(s.primaryPath(id))
				return errcode.New("store.Store", errcode.Failure, "write sidecar %d: %w", id, err)
			}
		}
		return nil
	default:
		return errcode.New("store.Store", errcode.InvalidParameters, "unknown location %v", loc)
	}
}

// purge removes id from both storage tiers without reporting an error for a
// tier that had nothing to remove — used internally by Store's
// delete-then-insert semantics, where a missing prior record is expected.
func (s *Store[T]) purge(id objectid.ID) {
	s.mu.Lock()
	delete(s.mem, id)
	s.mu.Unlock()

	_ = os.Remove(s.primaryPath(id))
	if s.sidecarExt != "" {
		_ = os.Remove(s.sidecarPath(id))
	}
}

// Delete removes id from both tiers. It returns errcode.NoSuchItem only when
// neither tier matched; if a match existed but a file could not be removed
// it returns errcode.ItemNonRemovable (spec.md §4.1).
func (s *Store[T]) Delete(id objectid.ID) error {
	if id == objectid.Invalid {
		return errcode.New("store.Delete", errcode.InvalidParameters, "invalid object id")
	}

	s.mu.Lock()
	_, inMem := s.mem[id]
	delete(s.mem, id)
	s.mu.Unlock()

	_, statErr := os.Stat(s.primaryPath(id))
	onDisk := statErr == nil

	if !inMem && !onDisk {
		return errcode.ErrNoSuchItem
	}

	if onDisk {
		if err := os.Remove(s.primaryPath(id)); err != nil {
			return errcode.New("store.Delete", errcode.ItemNonRemovable, "remove %d: %w", id, err)
		}
		if s.sidecarExt != "" {
			if err := os.Remove(s.sidecarPath(id)); err != nil && !os.IsNotExist(err) {
				return errcode.New("store.Delete", errcode.ItemNonRemovable, "remove sidecar %d: %w", id, err)
			}
		}
	}
	return nil
}

// List returns every identifier currently resolvable, from both the
// in-memory and on-disk tiers, deduplicated.
func (s *Store[T]) List() []objectid.ID {
	seen := make(map[objectid.ID]struct{})

	s.mu.Lock()
	for id := range s.mem {
		seen[id] = struct{}{}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			if s.primaryExt == "" || !hasSuffix(name, s.primaryExt) {
				continue
			}
			idStr := name[:len(name)-len(s.primaryExt)]
			n, err := strconv.ParseUint(idStr, 10, 64)
			if err != nil {
				continue
			}
			seen[objectid.ID(n)] = struct{}{}
		}
	}

	out := make([]objectid.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Stats is a point-in-time count of a Store's records per tier, used for
// debug/diagnostic reporting only (spec.md §9 supplemented feature).
type Stats struct {
	RAM  int
	File int
}

// Stats reports how many records currently resolve from each tier. The two
// counts are taken independently and are not a consistent snapshot under
// concurrent mutation.
func (s *Store[T]) Stats() Stats {
	s.mu.Lock()
	ram := len(s.mem)
	s.mu.Unlock()

	file := 0
	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			if s.primaryExt == "" || !hasSuffix(name, s.primaryExt) {
				continue
			}
			if _, err := strconv.ParseUint(name[:len(name)-len(s.primaryExt)], 10, 64); err == nil {
				file++
			}
		}
	}
	return Stats{RAM: ram, File: file}
}

// ClearMemory drops every in-memory record without touching the file tier
// — used by processor release, which deletes in-memory records but leaves
// file-backed records intact (spec.md §3 "Lifecycles").
func (s *Store[T]) ClearMemory() {
	s.mu.Lock()
	s.mem = make(map[objectid.ID]T)
	s.mu.Unlock()
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
