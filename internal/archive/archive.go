// Package archive packs a model (one manifest and its blobs) into a single
// tar stream and unpacks it back with structural and per-blob verification.
package archive

import (
	"time"

	"github.com/mdouchement/modelshuttle/internal/model"
)

// PAX records carrying the identity of the packed model.
const (
	paxRegistry  = "MODELSHUTTLE.registry"
	paxNamespace = "MODELSHUTTLE.namespace"
	paxName      = "MODELSHUTTLE.name"
	paxTag       = "MODELSHUTTLE.tag"
)

// maxManifestSize bounds the manifest entries read in memory.
const maxManifestSize = 4 << 20

var epoch = time.Unix(0, 0).UTC()

// Options tune Pack and Unpack.
type Options struct {
	// Compression of the packed archive. Unpack detects it.
	Compression Compression
	// Progress, when set, receives an update per blob and per chunk.
	Progress model.ProgressFunc
}

func (o Options) progress(p model.Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

// metadata is the identity file written by the former export tool.
type metadata struct {
	ModelName     string `json:"model_name"`
	ParameterSize string `json:"parameter_size"`
}

func identityRecords(id model.Identity) map[string]string {
	if id.IsZero() {
		return nil
	}
	id = id.Normalize()
	return map[string]string{
		paxRegistry:  id.Registry,
		paxNamespace: id.Namespace,
		paxName:      id.Name,
		paxTag:       id.Tag,
	}
}

func identityFromRecords(records map[string]string) (model.Identity, bool) {
	name := records[paxName]
	if name == "" {
		return model.Identity{}, false
	}
	return model.Identity{
		Registry:  records[paxRegistry],
		Namespace: records[paxNamespace],
		Name:      name,
		Tag:       records[paxTag],
	}.Normalize(), true
}
