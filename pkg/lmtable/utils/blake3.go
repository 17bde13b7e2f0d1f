package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	blake3 "lukechampine.com/blake3"
)

// ComputeBLAKE3 computes the BLAKE3 hash of the given bytes and returns a hex string.
func ComputeBLAKE3(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// ComputeBLAKE3File computes the BLAKE3 hash of a file path and returns a hex string.
func ComputeBLAKE3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// ComputeBLAKE3Files hashes each name relative to dir.
func ComputeBLAKE3Files(dir string, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		sum, err := ComputeBLAKE3File(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", name, err)
		}
		out[name] = sum
	}
	return out, nil
}
