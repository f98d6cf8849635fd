package msc

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/softusb/pkg"
)

func TestMemoryStorageReadWriteRoundTrip(t *testing.T) {
	s := NewMemoryStorage(4096, 512)

	require.Equal(t, uint32(512), s.BlockSize())
	require.Equal(t, uint64(8), s.BlockCount())

	block := bytes.Repeat([]byte{0x5A}, 512)
	n, err := s.Write(2, 1, block)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)

	out := make([]byte, 512)
	n, err = s.Read(2, 1, out)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
	require.Equal(t, block, out)
}

func TestMemoryStorageReadPastEndFails(t *testing.T) {
	s := NewMemoryStorage(1024, 512)
	_, err := s.Read(5, 1, make([]byte, 512))
	require.ErrorIs(t, err, io.EOF)
}

func TestMemoryStorageReadOnlyRejectsWrite(t *testing.T) {
	s := NewMemoryStorage(1024, 512)
	s.SetReadOnly(true)
	_, err := s.Write(0, 1, make([]byte, 512))
	require.ErrorIs(t, err, os.ErrPermission)
}

func TestMemoryStorageEjectRequiresRemovable(t *testing.T) {
	s := NewMemoryStorage(1024, 512)
	require.ErrorIs(t, s.Eject(), os.ErrPermission)

	s.SetRemovable(true)
	require.NoError(t, s.Eject())
	require.False(t, s.IsPresent())
}

func TestMemoryStorageLockPreventsEject(t *testing.T) {
	s := NewMemoryStorage(1024, 512)
	s.SetRemovable(true)

	require.NoError(t, s.Lock(true))
	require.ErrorIs(t, s.Eject(), pkg.ErrBusy)

	require.NoError(t, s.Lock(false))
	require.NoError(t, s.Eject())
}

func TestMemoryStorageLockRequiresRemovable(t *testing.T) {
	s := NewMemoryStorage(1024, 512)
	require.ErrorIs(t, s.Lock(true), os.ErrPermission)
}

func TestFileStorageLockUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 512), 0o644))

	s, err := NewFileStorage(path, 512, false)
	require.NoError(t, err)
	defer s.Close()

	require.ErrorIs(t, s.Lock(true), os.ErrPermission)
}

func TestFileStorageReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	s, err := NewFileStorage(path, 512, false)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(8), s.BlockCount())

	block := bytes.Repeat([]byte{0x77}, 512)
	n, err := s.Write(3, 1, block)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
	require.NoError(t, s.Sync())

	out := make([]byte, 512)
	n, err = s.Read(3, 1, out)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
	require.Equal(t, block, out)
}

func TestFileStorageReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 512), 0o644))

	s, err := NewFileStorage(path, 512, true)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.IsReadOnly())
	_, err = s.Write(0, 1, make([]byte, 512))
	require.ErrorIs(t, err, os.ErrPermission)
}
