package command

import "io/fs"

// FilesystemBackend abstracts the two filesystem calls the commands make.
type FilesystemBackend interface {
	// ReadFile reads the named regular file and returns its contents.
	// Directories fail with a *fs.PathError wrapping syscall.EISDIR.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path, following symlinks.
	Stat(path string) (fs.FileInfo, error)
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
