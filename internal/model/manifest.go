package model

import (
	"encoding/json"

	"github.com/mdouchement/modelshuttle/internal/checksum"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// MediaTypeManifest is the manifest media type written by the model runtime.
const MediaTypeManifest = "application/vnd.docker.distribution.manifest.v2+json"

// A Layer references one blob of a model.
type Layer = ocispec.Descriptor

// A Manifest describes a model as an ordered set of blobs.
type Manifest struct {
	SchemaVersion int     `json:"schemaVersion"`
	MediaType     string  `json:"mediaType,omitempty"`
	Config        Layer   `json:"config"`
	Layers        []Layer `json:"layers"`

	// raw holds the exact bytes the manifest was parsed from, so that a
	// transfer writes back a byte-identical manifest.
	raw []byte
}

// NewManifest builds a manifest from its layers and serializes it.
func NewManifest(config Layer, layers ...Layer) (*Manifest, error) {
	m := &Manifest{
		SchemaVersion: 2,
		MediaType:     MediaTypeManifest,
		Config:        config,
		Layers:        layers,
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, storeerr.New(storeerr.Corrupt, "build manifest", "", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes raw and checks every referenced digest.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, storeerr.New(storeerr.Corrupt, "parse manifest", "", err)
	}

	if m.Config.Digest == "" && len(m.Layers) == 0 {
		return nil, storeerr.Errorf(storeerr.Corrupt, "parse manifest", "", "manifest references no blob")
	}

	if m.Config.Digest != "" {
		if err := validateLayer(m.Config); err != nil {
			return nil, err
		}
	}
	for _, layer := range m.Layers {
		if err := validateLayer(layer); err != nil {
			return nil, err
		}
	}

	m.raw = append([]byte(nil), raw...)
	return &m, nil
}

func validateLayer(l Layer) error {
	if _, err := checksum.Parse(string(l.Digest)); err != nil {
		return err
	}
	if l.Size < 0 {
		return storeerr.Errorf(storeerr.Corrupt, "parse manifest", string(l.Digest), "negative size %d", l.Size)
	}
	return nil
}

// Raw returns the serialized manifest.
func (m *Manifest) Raw() []byte {
	return m.raw
}

// Digest returns the canonical digest of the serialized manifest.
func (m *Manifest) Digest() digest.Digest {
	return digest.FromBytes(m.raw)
}

// Blobs returns the referenced blobs, config first then layers in declared order.
// A digest referenced more than once is listed at its first occurrence only.
func (m *Manifest) Blobs() []Layer {
	seen := map[digest.Digest]bool{}
	blobs := make([]Layer, 0, len(m.Layers)+1)

	for _, layer := range append([]Layer{m.Config}, m.Layers...) {
		if layer.Digest == "" || seen[layer.Digest] {
			continue
		}
		seen[layer.Digest] = true
		blobs = append(blobs, layer)
	}
	return blobs
}

// References reports whether the manifest references d.
func (m *Manifest) References(d digest.Digest) bool {
	for _, layer := range m.Blobs() {
		if layer.Digest == d {
			return true
		}
	}
	return false
}

// Size returns the total size of the referenced blobs.
func (m *Manifest) Size() (size int64) {
	for _, layer := range m.Blobs() {
		size += layer.Size
	}
	return
}
