package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Storage is a directory of files addressed by client paths that can never
// escape the root.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &Storage{root: abs}, nil
}

func (s *Storage) RootAbs() string {
	return s.root
}

func (s *Storage) Resolve(clientPath string) (string, error) {
	return resolveWithin(s.root, clientPath)
}

func (s *Storage) Stat(clientPath string) (fs.FileInfo, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return nil, err
	}

	return os.Stat(resolved)
}

func (s *Storage) Remove(clientPath string) error {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return err
	}

	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %q: %w", clientPath, err)
	}

	return nil
}

func (s *Storage) OpenForRead(clientPath string) (*os.File, error) {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return nil, err
	}

	return os.Open(resolved)
}

// WriteFile writes data to a temp file next to the target and renames it into
// place, so readers never observe a partial file.
func (s *Storage) WriteFile(clientPath string, data []byte) error {
	resolved, err := s.Resolve(clientPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("write %q: %w", clientPath, writeErr)
		}
		return fmt.Errorf("close %q: %w", clientPath, closeErr)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, resolved); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into %q: %w", clientPath, err)
	}

	return nil
}
