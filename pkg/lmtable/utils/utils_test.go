package utils

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "file.bin")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestWriteFileAtomicAbortsOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return errors.New("boom")
	})
	require.Error(t, err)
	require.False(t, FileExists(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp file must be removed")
}

func TestMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0644))

	m, err := MapFile(path, unix.MADV_RANDOM)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, m.Data())
	require.NoError(t, m.Close())
}

func TestChecksums(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("abc"), 0644))

	sums, err := ComputeBLAKE3Files(dir, "a")
	require.NoError(t, err)
	require.Equal(t, ComputeBLAKE3([]byte("abc")), sums["a"])

	_, err = ComputeBLAKE3Files(dir, "missing")
	require.Error(t, err)

	h := NewCRC32C()
	h.Write([]byte("abc"))
	require.True(t, VerifyCRC32C([]byte("abc"), h.Sum32()))
}
