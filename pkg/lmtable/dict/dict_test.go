package dict

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddEncodeDecode(t *testing.T) {
	d := New()
	a := d.Add("a")
	b := d.Add("b")
	require.Equal(t, uint32(0), a)
	require.Equal(t, uint32(1), b)
	require.Equal(t, a, d.Add("a"))

	id, ok := d.Encode("b")
	require.True(t, ok)
	require.Equal(t, b, id)

	w, ok := d.Decode(a)
	require.True(t, ok)
	require.Equal(t, "a", w)

	_, ok = d.Decode(99)
	require.False(t, ok)
	require.Equal(t, 2, d.Len())
}

func TestNormalization(t *testing.T) {
	d := New()
	composed := d.Add("caf\u00e9")
	decomposed, ok := d.Encode("cafe\u0301")
	require.True(t, ok)
	require.Equal(t, composed, decomposed)
}

func TestEncodeAllUnknown(t *testing.T) {
	d := New()
	d.Add("a")
	_, ok := d.EncodeAll([]string{"a", "zzz"})
	require.False(t, ok)

	unk := d.Add(Unknown)
	ids, ok := d.EncodeAll([]string{"a", "zzz"})
	require.True(t, ok)
	require.Equal(t, []uint32{0, unk}, ids)
}

func TestSubset(t *testing.T) {
	d := New()
	d.Add("a")
	d.Add("b")
	d.Add("c")
	bm := d.Subset([]string{"a", "c", "missing"})
	require.Equal(t, uint64(2), bm.GetCardinality())
	require.True(t, bm.Contains(0))
	require.True(t, bm.Contains(2))
}

func TestWriteRead(t *testing.T) {
	d := New()
	for _, w := range []string{"<s>", "</s>", "hello"} {
		d.Add(w)
	}
	var buf bytes.Buffer
	_, err := d.WriteTo(&buf)
	require.NoError(t, err)

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, d.Words(), got.Words())

	_, err = Read(strings.NewReader("a\na\n"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, d.SaveFile(path))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, d.Words(), loaded.Words())
}
