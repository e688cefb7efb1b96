package xpath

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/mdouchement/modelshuttle/internal/checksum"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/opencontainers/go-digest"
)

// Store layout, as written by the model runtime.
const (
	ManifestsDir = "manifests"
	BlobsDir     = "blobs"
	TempDir      = ".tmp"
)

// Archive layout.
const (
	ArchiveManifest       = "manifest.json"
	ArchiveBlobsDir       = "blobs"
	LegacyArchiveManifest = "manifest"
	LegacyArchiveMetadata = "metadata.json"
)

// ManifestPath returns the manifest file of id under the store root.
func ManifestPath(root string, id model.Identity) string {
	return filepath.Join(root, ManifestsDir, id.Registry, id.Namespace, id.Name, id.Tag)
}

// IdentityFromManifestPath parses `registry/namespace/name/tag` relative to the manifests directory.
func IdentityFromManifestPath(rel string) (model.Identity, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 {
		return model.Identity{}, false
	}

	id := model.Identity{
		Registry:  parts[0],
		Namespace: parts[1],
		Name:      parts[2],
		Tag:       parts[3],
	}
	return id, id.Validate() == nil
}

// BlobFilename returns the file name of a blob: `<algorithm>-<hex>`.
func BlobFilename(d digest.Digest) string {
	return d.Algorithm().String() + "-" + d.Encoded()
}

// BlobPath returns the blob file of d under the store root.
func BlobPath(root string, d digest.Digest) string {
	return filepath.Join(root, BlobsDir, BlobFilename(d))
}

// ParseBlobFilename returns the digest named by a blob file name.
// Both `<algorithm>-<hex>` and `<algorithm>:<hex>` are accepted.
func ParseBlobFilename(name string) (digest.Digest, bool) {
	algorithm, encoded, found := strings.Cut(name, "-")
	if !found {
		algorithm, encoded, found = strings.Cut(name, ":")
	}
	if !found {
		return "", false
	}

	d, err := checksum.Parse(algorithm + ":" + encoded)
	if err != nil {
		return "", false
	}
	return d, true
}

// ArchiveBlobName returns the name of the archive entry holding d.
func ArchiveBlobName(d digest.Digest) string {
	return path.Join(ArchiveBlobsDir, BlobFilename(d))
}

// ParseArchiveBlobName returns the digest named by an archive entry.
// Blobs stored at the archive root (legacy archives) are accepted.
func ParseArchiveBlobName(name string) (digest.Digest, bool) {
	name = CleanEntryName(name)

	dir, base := path.Split(name)
	if dir != "" && dir != ArchiveBlobsDir+"/" {
		return "", false
	}
	return ParseBlobFilename(base)
}

// CleanEntryName normalizes an archive entry name.
func CleanEntryName(name string) string {
	name = path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "./"))
	return strings.TrimPrefix(name, "/")
}
