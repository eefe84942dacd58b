package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseinweb/secproc/pkg/secproc/errcode"
	"github.com/joseinweb/secproc/pkg/secproc/objectid"
	"github.com/joseinweb/secproc/pkg/secproc/store"
)

type blob struct {
	data []byte
}

type blobCodec struct{}

func (blobCodec) Marshal(b blob) ([]byte, []byte, error) {
	return b.data, nil, nil
}

func (blobCodec) Unmarshal(primary, _ []byte) (blob, error) {
	return blob{data: primary}, nil
}

func newBlobStore(t *testing.T) *store.Store[blob] {
	t.Helper()
	s, err := store.New[blob](filepath.Join(t.TempDir(), "bundles"), ".bundle", "", blobCodec{})
	require.NoError(t, err)
	return s
}

func TestStoreRetrieveRAM(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(42, objectid.RAM, blob{data: []byte("hello")}))

	got, loc, err := s.Retrieve(42)
	require.NoError(t, err)
	require.Equal(t, objectid.RAM, loc)
	require.Equal(t, []byte("hello"), got.data)
}

func TestStoreRetrieveFile(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(7, objectid.File, blob{data: []byte("on disk")}))

	got, loc, err := s.Retrieve(7)
	require.NoError(t, err)
	require.Equal(t, objectid.File, loc)
	require.Equal(t, []byte("on disk"), got.data)
}

func TestStoreDeleteThenRetrieveIsNoSuchItem(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(42, objectid.File, blob{data: []byte("x")}))
	require.NoError(t, s.Delete(42))

	_, _, err := s.Retrieve(42)
	require.Error(t, err)
	require.Equal(t, errcode.NoSuchItem, errcode.Of(err))
	require.True(t, errors.Is(err, errcode.ErrNoSuchItem))
}

func TestDeleteTwiceSecondIsNoSuchItem(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(42, objectid.File, blob{data: []byte("x")}))
	require.NoError(t, s.Delete(42))

	err := s.Delete(42)
	require.True(t, errors.Is(err, errcode.ErrNoSuchItem))
}

func TestStoreOverwritesPriorLocation(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(1, objectid.File, blob{data: []byte("file")}))
	require.NoError(t, s.Store(1, objectid.RAM, blob{data: []byte("ram")}))

	got, loc, err := s.Retrieve(1)
	require.NoError(t, err)
	require.Equal(t, objectid.RAM, loc)
	require.Equal(t, []byte("ram"), got.data)

	// The file-tier copy must have been purged by the delete-then-insert
	// semantics, not left as a stale duplicate.
	_, _, err = s.Retrieve(1)
	require.NoError(t, err)
	require.Equal(t, 0, s.Stats().File)
}

func TestOEMWriteIsUnimplemented(t *testing.T) {
	s := newBlobStore(t)
	err := s.Store(9, objectid.OEM, blob{data: []byte("x")})
	require.True(t, errors.Is(err, errcode.ErrUnimplementedFeature))
}

func TestSoftWrappedAliasesBehaveLikePlain(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(5, objectid.RAMSoftWrapped, blob{data: []byte("soft")}))
	got, loc, err := s.Retrieve(5)
	require.NoError(t, err)
	require.Equal(t, objectid.RAM, loc)
	require.Equal(t, []byte("soft"), got.data)
}

func TestListReturnsBothTiers(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(1, objectid.RAM, blob{data: []byte("a")}))
	require.NoError(t, s.Store(2, objectid.File, blob{data: []byte("b")}))

	ids := s.List()
	require.Len(t, ids, 2)
}

func TestRetrieveInvalidID(t *testing.T) {
	s := newBlobStore(t)
	_, _, err := s.Retrieve(objectid.Invalid)
	require.Equal(t, errcode.InvalidParameters, errcode.Of(err))
}

func TestStatsCountsBothTiersIndependently(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(1, objectid.RAM, blob{data: []byte("a")}))
	require.NoError(t, s.Store(2, objectid.File, blob{data: []byte("b")}))
	require.NoError(t, s.Store(3, objectid.File, blob{data: []byte("c")}))

	stats := s.Stats()
	require.Equal(t, 1, stats.RAM)
	require.Equal(t, 2, stats.File)
}

func TestClearMemoryLeavesFileTierIntact(t *testing.T) {
	s := newBlobStore(t)
	require.NoError(t, s.Store(1, objectid.RAM, blob{data: []byte("ram")}))
	require.NoError(t, s.Store(2, objectid.File, blob{data: []byte("file")}))

	s.ClearMemory()

	_, _, err := s.Retrieve(1)
	require.True(t, errors.Is(err, errcode.ErrNoSuchItem))

	got, loc, err := s.Retrieve(2)
	require.NoError(t, err)
	require.Equal(t, objectid.File, loc)
	require.Equal(t, []byte("file"), got.data)
}
