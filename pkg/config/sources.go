package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceSettings holds per-source synchronization behavior.
type SourceSettings struct {
	// Overwrite lists attribute names for which this source replaces
	// collection values outright instead of merging them.
	Overwrite []string `yaml:"overwrite"`
	// Attributes lists the attribute names this source synchronizes. An
	// empty list means the source synchronizes every attribute it reports.
	Attributes []string `yaml:"attributes"`
}

// LinkSource describes an external source identity derived from a login
// after a successful credential change.
type LinkSource struct {
	Source string `yaml:"source"`
	Type   string `yaml:"type"`
	// Suffix is appended to the login to form the derived identity, e.g.
	// "@EINFRA".
	Suffix string `yaml:"suffix"`
}

// NamespaceSettings configures the best-effort side effects run after a
// successful credential change in one login namespace.
type NamespaceSettings struct {
	// AliasAttribute names the list attribute collecting alternate login
	// aliases (e.g. Kerberos principals) for the user.
	AliasAttribute string `yaml:"alias_attribute"`
	// LinkSources are the identities to link to the user.
	LinkSources []LinkSource `yaml:"link_sources"`
}

// Sources is the parsed per-source settings file.
type Sources struct {
	Sources    map[string]SourceSettings    `yaml:"sources"`
	Namespaces map[string]NamespaceSettings `yaml:"namespaces"`
}

// LoadSources parses the YAML settings file. A missing path yields empty
// settings: every source merges, no namespace has hooks.
func LoadSources(path string) (*Sources, error) {
	if path == "" {
		return &Sources{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	return &s, nil
}

// OverwriteListed reports whether the source replaces (instead of merges)
// collection values of the named attribute.
func (s *Sources) OverwriteListed(sourceName, attrName string) bool {
	if s == nil {
		return false
	}
	for _, name := range s.Sources[sourceName].Overwrite {
		if name == attrName {
			return true
		}
	}
	return false
}

// Synchronizes reports whether the source contributes the named attribute
// during reconciliation. Sources without an explicit attribute list
// contribute everything they report.
func (s *Sources) Synchronizes(sourceName, attrName string) bool {
	if s == nil {
		return true
	}
	list := s.Sources[sourceName].Attributes
	if len(list) == 0 {
		return true
	}
	for _, name := range list {
		if name == attrName {
			return true
		}
	}
	return false
}

// Namespace returns the settings of one login namespace.
func (s *Sources) Namespace(name string) (NamespaceSettings, bool) {
	if s == nil {
		return NamespaceSettings{}, false
	}
	ns, ok := s.Namespaces[name]
	return ns, ok
}

// SourcesProvider yields the currently active settings; implemented by the
// file watcher and by Static for tests.
type SourcesProvider interface {
	Current() *Sources
}

// Static wraps fixed settings in a SourcesProvider.
type Static struct {
	Sources *Sources
}

// Current implements SourcesProvider.
func (s Static) Current() *Sources { return s.Sources }
