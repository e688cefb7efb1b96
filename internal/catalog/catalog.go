// Package catalog derives the list of models and the blob reference counts from the store.
package catalog

import (
	"sort"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/manifest"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/storage"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/opencontainers/go-digest"
)

// An Entry describes a model present in the store.
type Entry struct {
	Identity model.Identity `json:"identity"`
	Digest   digest.Digest  `json:"digest"`
	Size     int64          `json:"size"`
	Layers   int            `json:"layers"`
	// Missing counts the referenced blobs absent from the store.
	Missing int `json:"missing,omitempty"`
}

// A Catalog reads the store, it never mutates it.
type Catalog struct {
	log       logger.Logger
	manifests manifest.Resolver
	blobs     storage.BlobStore
}

// New returns a new Catalog.
func New(l logger.Logger, manifests manifest.Resolver, blobs storage.BlobStore) *Catalog {
	return &Catalog{
		log:       l.WithPrefix("[catalog]"),
		manifests: manifests,
		blobs:     blobs,
	}
}

// Entries lists the models of the store sorted by identity.
// Models removed during the scan are skipped, corrupt ones are logged and skipped.
func (c *Catalog) Entries() ([]Entry, error) {
	entries := []Entry{}

	for id, err := range c.manifests.List() {
		if err != nil {
			return nil, err
		}

		m, err := c.manifests.Resolve(id)
		if storeerr.Is(err, storeerr.NotFound) {
			continue
		}
		if storeerr.Is(err, storeerr.Corrupt) {
			c.log.Errorf("skipping %s: %s", id, err)
			continue
		}
		if err != nil {
			return nil, err
		}

		entry := Entry{
			Identity: id,
			Digest:   m.Digest(),
			Size:     m.Size(),
			Layers:   len(m.Layers),
		}
		for _, layer := range m.Blobs() {
			if !c.blobs.Exists(layer.Digest) {
				entry.Missing++
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity.String() < entries[j].Identity.String()
	})
	return entries, nil
}

// ReferenceCounts returns how many manifests reference each digest, ignoring the excluded identities.
// It is computed from scratch on every call. A corrupt manifest aborts the count
// since its references are unknown.
func (c *Catalog) ReferenceCounts(exclude ...model.Identity) (map[digest.Digest]int, error) {
	excluded := map[model.Identity]bool{}
	for _, id := range exclude {
		excluded[id.Normalize()] = true
	}

	counts := map[digest.Digest]int{}
	for id, err := range c.manifests.List() {
		if err != nil {
			return nil, err
		}
		if excluded[id] {
			continue
		}

		m, err := c.manifests.Resolve(id)
		if storeerr.Is(err, storeerr.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, layer := range m.Blobs() {
			counts[layer.Digest]++
		}
	}

	c.log.Debugf("%d referenced blobs", len(counts))
	return counts, nil
}

// Orphans returns the stored blobs no manifest references.
func (c *Catalog) Orphans() ([]digest.Digest, error) {
	counts, err := c.ReferenceCounts()
	if err != nil {
		return nil, err
	}

	stored, err := c.blobs.List()
	if err != nil {
		return nil, err
	}

	var orphans []digest.Digest
	for _, d := range stored {
		if counts[d] == 0 {
			orphans = append(orphans, d)
		}
	}
	return orphans, nil
}
