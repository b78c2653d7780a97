package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/id"
)

// Store persists content-addressed bytes on the local filesystem.
// Safe for concurrent use: writes land through a temp file and an atomic
// rename, so readers never observe partial objects.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root, creating the directory if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("content root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Location returns the slash-separated location of (hash, variant) relative to
// the root. It is the path component used in CDN URLs.
func Location(hash Hash, variant Variant) string {
	h := string(hash)
	return path.Join(string(variant), h[0:2], h[2:4], h)
}

// Path returns the absolute filesystem path for (hash, variant).
func (s *Store) Path(hash Hash, variant Variant) string {
	return filepath.Join(s.root, filepath.FromSlash(Location(hash, variant)))
}

// Put hashes data and persists it as the original variant.
// Repeated calls with identical bytes perform no write and return the same
// hash; created reports whether this call wrote the object.
func (s *Store) Put(data []byte) (hash Hash, created bool, err error) {
	hash = Sum(data)
	created, err = s.Write(hash, data)
	return hash, created, err
}

// Write persists data under an already computed hash as the original variant.
func (s *Store) Write(hash Hash, data []byte) (bool, error) {
	if len(data) == 0 {
		return false, domainerrors.InvalidArgument("content cannot be empty")
	}

	final := s.Path(hash, Original)
	if _, err := os.Stat(final); err == nil {
		return false, nil
	}

	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, domainerrors.IO(err, "create content directory")
	}

	suffix, err := id.Suffix(8)
	if err != nil {
		return false, domainerrors.IO(err, "create temp name")
	}
	tmp, err := os.CreateTemp(dir, "."+string(hash)+"-"+suffix+"-*")
	if err != nil {
		return false, domainerrors.IO(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, domainerrors.IO(err, "write content")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, domainerrors.IO(err, "sync content")
	}
	if err := tmp.Close(); err != nil {
		return false, domainerrors.IO(err, "close content")
	}

	if err := os.Rename(tmpName, final); err != nil {
		// Another writer may have won the race with identical bytes.
		if _, statErr := os.Stat(final); statErr == nil {
			return false, nil
		}
		return false, domainerrors.IO(err, "commit content")
	}
	return true, nil
}

// Get returns the bytes stored for (hash, variant).
func (s *Store) Get(hash Hash, variant Variant) ([]byte, error) {
	data, err := os.ReadFile(s.Path(hash, variant))
	if err != nil {
		return nil, s.classify(err, hash, variant)
	}
	return data, nil
}

// Open returns a read handle for (hash, variant). The caller closes it.
func (s *Store) Open(hash Hash, variant Variant) (*os.File, error) {
	f, err := os.Open(s.Path(hash, variant))
	if err != nil {
		return nil, s.classify(err, hash, variant)
	}
	return f, nil
}

// Exists reports whether (hash, variant) is stored.
func (s *Store) Exists(hash Hash, variant Variant) bool {
	_, err := os.Stat(s.Path(hash, variant))
	return err == nil
}

// Delete removes every stored variant of hash. Missing objects are not an error.
func (s *Store) Delete(hash Hash) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return domainerrors.IO(err, "list variants")
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p := s.Path(hash, Variant(entry.Name()))
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return domainerrors.IO(err, "delete content")
		}
	}
	return nil
}

// Check verifies the root is reachable.
func (s *Store) Check() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return domainerrors.IO(err, "stat content root")
	}
	if !info.IsDir() {
		return domainerrors.IO(fmt.Errorf("%s is not a directory", s.root), "stat content root")
	}
	return nil
}

func (s *Store) classify(err error, hash Hash, variant Variant) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domainerrors.NotFoundf("%s variant of %s not found", variant, hash)
	}
	return domainerrors.IO(err, "read content")
}
