package model

import (
	"regexp"
	"strings"

	"github.com/mdouchement/modelshuttle/internal/storeerr"
)

const (
	// DefaultRegistry is the registry host used when none is given.
	DefaultRegistry = "registry.ollama.ai"
	// DefaultNamespace is the namespace used when none is given.
	DefaultNamespace = "library"
	// DefaultTag is the parameter tag used when none is given.
	DefaultTag = "latest"
)

var (
	partRE     = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	registryRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.:-]*$`)
)

// An Identity names a model in the store: name plus parameter tag,
// qualified by the registry and namespace the runtime files it under.
type Identity struct {
	Registry  string `json:"registry"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Tag       string `json:"tag"`
}

// NewIdentity returns the identity of name:tag in the default registry and namespace.
func NewIdentity(name, tag string) Identity {
	return Identity{
		Registry:  DefaultRegistry,
		Namespace: DefaultNamespace,
		Name:      name,
		Tag:       tag,
	}.Normalize()
}

// ParseIdentity parses `name[:tag]`, `namespace/name[:tag]` or `registry/namespace/name[:tag]`.
func ParseIdentity(s string) (Identity, error) {
	id := Identity{}

	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 3:
		id.Registry = parts[0]
		id.Namespace = parts[1]
		id.Name = parts[2]
	case 2:
		id.Namespace = parts[0]
		id.Name = parts[1]
	case 1:
		id.Name = parts[0]
	default:
		return Identity{}, storeerr.Errorf(storeerr.Corrupt, "parse identity", s, "too many path segments")
	}

	if name, tag, found := strings.Cut(id.Name, ":"); found {
		id.Name = name
		id.Tag = tag
	}

	id = id.Normalize()
	return id, id.Validate()
}

// Normalize fills the empty fields with their defaults.
func (id Identity) Normalize() Identity {
	if id.Registry == "" {
		id.Registry = DefaultRegistry
	}
	if id.Namespace == "" {
		id.Namespace = DefaultNamespace
	}
	if id.Tag == "" {
		id.Tag = DefaultTag
	}
	return id
}

// Validate checks that every part is a safe single path segment.
func (id Identity) Validate() error {
	if !registryRE.MatchString(id.Registry) {
		return storeerr.Errorf(storeerr.Corrupt, "validate identity", id.String(), "invalid registry %q", id.Registry)
	}
	for label, part := range map[string]string{"namespace": id.Namespace, "name": id.Name, "tag": id.Tag} {
		if !partRE.MatchString(part) || part == "." || part == ".." {
			return storeerr.Errorf(storeerr.Corrupt, "validate identity", id.String(), "invalid %s %q", label, part)
		}
	}
	return nil
}

// IsZero reports whether the identity has no name.
func (id Identity) IsZero() bool {
	return id.Name == ""
}

// String returns the short form, omitting default registry and namespace.
func (id Identity) String() string {
	n := id.Name + ":" + id.Tag
	if id.Registry == DefaultRegistry || id.Registry == "" {
		if id.Namespace == DefaultNamespace || id.Namespace == "" {
			return n
		}
		return id.Namespace + "/" + n
	}
	return id.Registry + "/" + id.Namespace + "/" + n
}

// FullName returns the fully qualified form.
func (id Identity) FullName() string {
	return id.Registry + "/" + id.Namespace + "/" + id.Name + ":" + id.Tag
}
