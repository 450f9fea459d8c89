package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// collectionExt is the file extension of a collection file.
const collectionExt = ".json"

// maxNameLen bounds database and collection names.
const maxNameLen = 128

// FileStore maps databases and collections to the file system:
// - Databases: directories directly under the root
// - Collections: <database>/<collection>.json
type FileStore struct {
	rootDir string
}

// NewFileStore initializes a FileStore with the given root directory,
// creating it if needed.
func NewFileStore(rootDir string) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &FileStore{rootDir: abs}, nil
}

// RootDir returns the root directory path.
func (fs *FileStore) RootDir() string {
	return fs.rootDir
}

// ValidateName checks that name can be used as a database or collection
// name. Names map directly to path segments, so separators, parent
// references and hidden names are rejected.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("name is empty")
	case len(name) > maxNameLen:
		return fmt.Errorf("name is longer than %d bytes", maxNameLen)
	case strings.HasPrefix(name, "."):
		return errors.New("name must not start with '.'")
	case strings.ContainsAny(name, "/\\\x00:"):
		return errors.New("name must not contain path separators")
	}
	return nil
}

// DatabaseDir returns the directory of a database.
func (fs *FileStore) DatabaseDir(db string) string {
	return filepath.Join(fs.rootDir, db)
}

// CollectionPath returns the file of a collection.
func (fs *FileStore) CollectionPath(db, coll string) string {
	return filepath.Join(fs.rootDir, db, coll+collectionExt)
}

// EnsureDatabase creates the database directory if needed.
func (fs *FileStore) EnsureDatabase(db string) error {
	if err := os.MkdirAll(fs.DatabaseDir(db), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// Databases returns the sorted names of all databases.
func (fs *FileStore) Databases() ([]string, error) {
	entries, err := os.ReadDir(fs.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Collections returns the sorted names of the collections of a database.
func (fs *FileStore) Collections(db string) ([]string, error) {
	entries, err := os.ReadDir(fs.DatabaseDir(db))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	var out []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), collectionExt)
		if ok && !e.IsDir() && ValidateName(name) == nil {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Remove deletes a collection file. It returns an error wrapping
// os.ErrNotExist when the file is absent.
func (fs *FileStore) Remove(db, coll string) error {
	if err := os.Remove(fs.CollectionPath(db, coll)); err != nil {
		return fmt.Errorf("failed to remove collection: %w", err)
	}
	return nil
}

// ParsePath maps a path under the root back to its database and collection.
func (fs *FileStore) ParsePath(path string) (db, coll string, ok bool) {
	rel, err := filepath.Rel(fs.rootDir, path)
	if err != nil {
		return "", "", false
	}
	db, file, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found || strings.Contains(file, "/") {
		return "", "", false
	}
	coll, found = strings.CutSuffix(file, collectionExt)
	if !found || ValidateName(db) != nil || ValidateName(coll) != nil {
		return "", "", false
	}
	return db, coll, true
}
