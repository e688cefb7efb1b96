package manifest

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/mdouchement/modelshuttle/internal/xpath"
	"github.com/pkg/errors"
)

// A Resolver reads manifests from the store without ever mutating it.
type Resolver interface {
	// Resolve returns the manifest of id.
	Resolve(id model.Identity) (*model.Manifest, error)
	// List lazily enumerates the identities present in the store.
	// Each call is a fresh snapshot.
	List() iter.Seq2[model.Identity, error]
}

// A Store resolves manifests and, for the transfer engine only, writes and removes them.
type Store struct {
	root string
}

// NewStore returns a Store for the given store root.
func NewStore(root string) *Store {
	return &Store{
		root: root,
	}
}

// Root returns the store root.
func (s *Store) Root() string {
	return s.root
}

// Exists reports whether a manifest is present for id.
func (s *Store) Exists(id model.Identity) bool {
	_, err := s.locate(id)
	return err == nil
}

// Resolve locates and parses the manifest of id.
func (s *Store) Resolve(id model.Identity) (*model.Manifest, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	p, err := s.locate(id)
	if err != nil {
		return nil, err
	}

	// The runtime may remove the manifest after locate, which is a NotFound too.
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, storeerr.FromOS("resolve", id.String(), err)
	}

	m, err := model.ParseManifest(raw)
	if err != nil {
		return nil, storeerr.New(storeerr.Corrupt, "resolve", id.String(), err)
	}
	return m, nil
}

// locate returns the manifest file of id.
// Older layouts stored a directory at the tag path holding the manifest.
func (s *Store) locate(id model.Identity) (string, error) {
	p := xpath.ManifestPath(s.root, id)

	fi, err := os.Stat(p)
	if err != nil {
		return "", storeerr.FromOS("resolve", id.String(), err)
	}
	if !fi.IsDir() {
		return p, nil
	}

	for _, name := range []string{id.Tag, "manifest", "manifest.json"} {
		alt := filepath.Join(p, name)
		if fi, err := os.Stat(alt); err == nil && !fi.IsDir() {
			return alt, nil
		}
	}
	return "", storeerr.Errorf(storeerr.NotFound, "resolve", id.String(), "no manifest in %s", p)
}

// List walks the manifest namespace.
func (s *Store) List() iter.Seq2[model.Identity, error] {
	return func(yield func(model.Identity, error) bool) {
		base := filepath.Join(s.root, xpath.ManifestsDir)

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					// Empty store or entry removed while walking.
					return nil
				}
				return err
			}
			if strings.HasPrefix(d.Name(), ".") && path != base {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			depth := len(strings.Split(filepath.ToSlash(rel), "/"))
			if rel == "." || depth < 4 {
				return nil
			}

			id, ok := xpath.IdentityFromManifestPath(rel)
			if ok && !yield(id, nil) {
				return fs.SkipAll
			}
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			yield(model.Identity{}, storeerr.FromOS("list manifests", base, err))
		}
	}
}

// Write atomically publishes m as the manifest of id.
// An existing legacy directory at the tag path is only replaced once the new manifest is on disk.
func (s *Store) Write(id model.Identity, m *model.Manifest) error {
	if err := id.Validate(); err != nil {
		return err
	}

	p := xpath.ManifestPath(s.root, id)
	tmpdir := filepath.Join(s.root, xpath.TempDir)
	for _, dir := range []string{tmpdir, filepath.Dir(p)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return storeerr.FromOS("write manifest", id.String(), err)
		}
	}

	tmp, err := os.CreateTemp(tmpdir, "manifest-*.partial")
	if err != nil {
		return storeerr.FromOS("write manifest", id.String(), err)
	}
	defer os.Remove(tmp.Name()) // No-op once renamed.

	if _, err = tmp.Write(m.Raw()); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o644)
	}
	if err != nil {
		return storeerr.FromOS("write manifest", id.String(), err)
	}

	fi, err := os.Stat(p)
	if err != nil || !fi.IsDir() {
		return storeerr.FromOS("publish manifest", id.String(), os.Rename(tmp.Name(), p))
	}

	// Legacy layout: move the directory aside, publish, then drop it or put it back.
	legacy, err := os.MkdirTemp(tmpdir, "legacy-*")
	if err != nil {
		return storeerr.FromOS("write manifest", id.String(), err)
	}
	aside := filepath.Join(legacy, id.Tag)
	if err := os.Rename(p, aside); err != nil {
		os.Remove(legacy)
		return storeerr.FromOS("write manifest", id.String(), err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		if rerr := os.Rename(aside, p); rerr != nil {
			return storeerr.FromOS("publish manifest", id.String(), errors.Wrapf(err, "legacy manifest left in %s", aside))
		}
		os.Remove(legacy)
		return storeerr.FromOS("publish manifest", id.String(), err)
	}
	os.RemoveAll(legacy)
	return nil
}

// Remove deletes the manifest of id and prunes the directories it leaves empty.
func (s *Store) Remove(id model.Identity) error {
	p := xpath.ManifestPath(s.root, id)

	fi, err := os.Stat(p)
	if err != nil {
		return storeerr.FromOS("remove manifest", id.String(), err)
	}
	if fi.IsDir() {
		err = os.RemoveAll(p)
	} else {
		err = os.Remove(p)
	}
	if err != nil {
		return storeerr.FromOS("remove manifest", id.String(), err)
	}

	s.prune(filepath.Dir(p))
	return nil
}

// Prune removes every empty directory of the manifest namespace.
func (s *Store) Prune() (int, error) {
	base := filepath.Join(s.root, xpath.ManifestsDir)

	var dirs []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && path != base {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, storeerr.FromOS("prune manifests", base, err)
	}

	// Deepest first so parents become empty before being checked.
	var removed int
	for i := len(dirs) - 1; i >= 0; i-- {
		if os.Remove(dirs[i]) == nil {
			removed++
		}
	}
	return removed, nil
}

// prune removes dir and its parents while they are empty, stopping at the manifests directory.
func (s *Store) prune(dir string) {
	base := filepath.Join(s.root, xpath.ManifestsDir)
	for dir != base && strings.HasPrefix(dir, base) {
		if err := os.Remove(dir); err != nil {
			return // Not empty.
		}
		dir = filepath.Dir(dir)
	}
}
