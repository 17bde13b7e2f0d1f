package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// AtomicFile writes to a temporary file and renames it into place on Commit.
type AtomicFile struct {
	path     string
	tempPath string
	file     *os.File
	mu       sync.Mutex
}

// NewAtomicFile creates a new atomic file writer.
func NewAtomicFile(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &AtomicFile{
		path:     path,
		tempPath: tempPath,
		file:     file,
	}, nil
}

// Write writes data to the temporary file.
func (af *AtomicFile) Write(p []byte) (n int, err error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.file == nil {
		return 0, fmt.Errorf("file is closed")
	}
	return af.file.Write(p)
}

// Commit syncs and atomically renames the temporary file to the final path.
func (af *AtomicFile) Commit() error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.file == nil {
		return fmt.Errorf("file is closed")
	}
	if err := af.file.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	if err := af.file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	af.file = nil

	if err := os.Rename(af.tempPath, af.path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	if err := SyncDir(filepath.Dir(af.path)); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

// Close removes the temporary file unless Commit succeeded.
func (af *AtomicFile) Close() error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.file != nil {
		af.file.Close()
		af.file = nil
		os.Remove(af.tempPath)
	}
	return nil
}

// WriteFileAtomic writes the output of fn to path via an AtomicFile.
func WriteFileAtomic(path string, fn func(w io.Writer) error) error {
	af, err := NewAtomicFile(path)
	if err != nil {
		return err
	}
	defer af.Close()
	if err := fn(af); err != nil {
		return err
	}
	return af.Commit()
}

// SyncDir syncs a directory to ensure file operations are persisted.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MemoryMap is a read-only memory-mapped file.
type MemoryMap struct {
	data []byte
	file *os.File
}

// MapFile memory-maps a file for reading. advice is passed to madvise
// (e.g. unix.MADV_RANDOM for binary-searched arrays).
func MapFile(path string, advice int) (*MemoryMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if stat.Size() == 0 {
		return &MemoryMap{data: []byte{}, file: file}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, err
	}
	_ = unix.Madvise(data, advice)

	return &MemoryMap{data: data, file: file}, nil
}

// Data returns the mapped data.
func (m *MemoryMap) Data() []byte {
	return m.data
}

// Close unmaps the file and closes it.
func (m *MemoryMap) Close() error {
	if len(m.data) > 0 {
		if err := unix.Munmap(m.data); err != nil {
			m.file.Close()
			return err
		}
		m.data = nil
	}
	return m.file.Close()
}
