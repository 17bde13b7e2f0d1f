package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arpa = `\data\
ngram 1=4
ngram 2=2

\1-grams:
-99	<s>	-0.5
-0.8	a	-0.3
-1.2	b	-0.2
-0.9	</s>

\2-grams:
-0.4	<s> a
-0.6	a b

\end\
`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	require.NoError(t, rootCmd.Execute(), "lmtool %v", args)
	return out.String()
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmtool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bigram_cache_entries: 10\nuse_mmap: false\n"), 0644))

	o, err := loadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 10, o.BigramCacheEntries)
	assert.False(t, o.UseMmap)
	assert.Equal(t, 3, o.WordWidth)

	_, err = loadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBuildCheckScoreFilter(t *testing.T) {
	dir := t.TempDir()
	arpaPath := filepath.Join(dir, "model.arpa")
	require.NoError(t, os.WriteFile(arpaPath, []byte(arpa), 0644))
	model := filepath.Join(dir, "model")

	run(t, "build", "--arpa", arpaPath, "--out", model)
	out := run(t, "check", "--model", model)
	assert.Contains(t, out, "order=2")
	assert.Contains(t, out, "OK")

	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("a b\n"), 0644))
	out = run(t, "score", "--model", model, "--workers", "2", input)
	assert.True(t, strings.HasPrefix(out, "-"), out)
	assert.Contains(t, out, "\ta b\n")

	vocab := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(vocab, []byte("<s> a </s>\n"), 0644))
	filtered := filepath.Join(dir, "filtered")
	run(t, "filter", "--model", model, "--vocab", vocab, "--out", filtered, "--buffer", "64B")
	out = run(t, "check", "--model", filtered)
	assert.Contains(t, out, "level 2: leaf records=1")

	out = run(t, "dump", "--model", filtered)
	assert.Contains(t, out, "-0.4\t<s> a")
	assert.NotContains(t, out, "a b")
}
