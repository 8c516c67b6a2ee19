package command

import (
	"io"
	"io/fs"
	"os"
	"syscall"
)

// LocalBackend performs file I/O on the local filesystem.
type LocalBackend struct{}

// NewLocalBackend creates a local filesystem backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Name() string { return "local" }

// ReadFile opens path, rejects directories up front so every platform
// reports the same failure, and reads the whole file. The handle is closed
// before returning.
func (b *LocalBackend) ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: path, Err: syscall.EISDIR}
	}

	return io.ReadAll(f)
}

func (b *LocalBackend) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}
