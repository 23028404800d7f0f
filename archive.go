package hotswap

import (
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
)

// ArchiveKind classifies a deployment archive.
type ArchiveKind string

const (
	ArchiveUnspecified ArchiveKind = ""
	ArchiveExplicit    ArchiveKind = "EXPLICIT"
	ArchiveImplicit    ArchiveKind = "IMPLICIT"
)

// DescriptorRule maps a descriptor location suffix to the archive root:
// the suffix is cut off and Replace is appended.
type DescriptorRule struct {
	Suffix  string `yaml:"suffix"`
	Replace string `yaml:"replace"`
}

func DefaultDescriptorRules() []DescriptorRule {
	return []DescriptorRule{
		{Suffix: metaInfDescriptor},
		{Suffix: webInfDescriptor, Replace: webInfClasses},
	}
}

// ArchivePath derives the stable archive key from the location of its
// descriptor. It reports false when no rule matches.
func ArchivePath(descriptorURL string, rules []DescriptorRule) (string, bool) {
	p := descriptorPath(descriptorURL)
	if p == emptyString {
		return emptyString, false
	}
	for _, rule := range rules {
		if rule.Suffix == emptyString || !strings.HasSuffix(p, rule.Suffix) {
			continue
		}
		archive := strings.TrimSuffix(p, rule.Suffix) + rule.Replace
		if strings.HasSuffix(archive, nestedArchiveSuffix) {
			archive = strings.TrimSuffix(archive, nestedArchiveMarker)
		}
		return archive, true
	}
	return emptyString, false
}

// descriptorPath extracts the path part of a descriptor location. jar: URLs
// keep their nested file: location, as in "file:/app/lib/a.jar!/META-INF/beans.xml".
func descriptorPath(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == emptyString {
		return raw
	}
	switch u.Scheme {
	case "jar":
		return u.Opaque
	case "file":
		if u.Opaque != emptyString {
			return u.Opaque
		}
		return u.Path
	default:
		return u.Path
	}
}

// ArchiveRegistration routes change events of one archive to its registry.
type ArchiveRegistration struct {
	Path     string
	ID       string
	Kind     ArchiveKind
	Registry Registry
	Loader   ClassLoader
	Excludes []string
}

// Excluded reports whether className matches one of the archive's exclusion patterns.
func (a *ArchiveRegistration) Excluded(className string) bool {
	for _, pattern := range a.Excludes {
		if ok, err := path.Match(pattern, className); err == nil && ok {
			return true
		}
	}
	return false
}

// ArchiveRegistry maps archive paths to their registrations. A path is
// registered once; later registrations for it are ignored.
type ArchiveRegistry struct {
	mu     sync.RWMutex
	byPath map[string]*ArchiveRegistration
}

func NewArchiveRegistry() *ArchiveRegistry {
	return &ArchiveRegistry{byPath: make(map[string]*ArchiveRegistration)}
}

// Register stores reg under its path and reports whether it was the first
// registration for that path.
func (r *ArchiveRegistry) Register(reg *ArchiveRegistration) bool {
	if reg == nil || reg.Path == emptyString {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPath[reg.Path]; exists {
		return false
	}
	r.byPath[reg.Path] = reg
	return true
}

func (r *ArchiveRegistry) Resolve(path string) (*ArchiveRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byPath[path]
	return reg, ok
}

func (r *ArchiveRegistry) Contains(path string) bool {
	_, ok := r.Resolve(path)
	return ok
}

// Registrations returns every registration ordered by path.
func (r *ArchiveRegistry) Registrations() []*ArchiveRegistration {
	r.mu.RLock()
	out := make([]*ArchiveRegistration, 0, len(r.byPath))
	for _, reg := range r.byPath {
		out = append(out, reg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
