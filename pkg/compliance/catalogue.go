// Package compliance partitions running and candidate configurations into
// named feature sections and reports, per section, the lines present only in
// running (extra) and only in candidate (missing).
package compliance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fsconf-network/fsconf/pkg/util"
)

// Section names of the default catalogue
const (
	SectionBaseline        = "baseline"
	SectionVLANs           = "vlans"
	SectionLinkAggregation = "link-aggregation"
	SectionInterfaces      = "interfaces"
	SectionLine            = "line"
)

// FeatureSection routes top-level configuration blocks whose header starts
// with one of Matchers. A section with no matchers is the catch-all.
type FeatureSection struct {
	Name     string   `yaml:"name" json:"name"`
	Ordered  bool     `yaml:"ordered" json:"ordered"`
	Matchers []string `yaml:"matchers,omitempty" json:"matchers,omitempty"`
}

// Catalogue is the ordered list of feature sections. Order matters: later
// sections may reference state created by earlier ones, so VLANs come before
// the interfaces that reference them.
type Catalogue []FeatureSection

// DefaultCatalogue returns the built-in catalogue.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		{Name: SectionBaseline, Ordered: true},
		{Name: SectionVLANs, Ordered: true, Matchers: []string{"vlan "}},
		{Name: SectionLinkAggregation, Ordered: true, Matchers: []string{
			"port-group ",
			"link-aggregation ",
			"lacp ",
			"interface port-channel",
			"interface Port-channel",
			"interface agg",
		}},
		{Name: SectionInterfaces, Ordered: true, Matchers: []string{"interface "}},
		{Name: SectionLine, Ordered: true, Matchers: []string{"line "}},
	}
}

// catalogueFile is the on-disk form accepted by LoadCatalogue.
type catalogueFile struct {
	Sections []FeatureSection `yaml:"sections"`
}

// LoadCatalogue reads a catalogue override from a YAML file:
//
//	sections:
//	  - name: baseline
//	    ordered: true
//	  - name: vlans
//	    ordered: true
//	    matchers: ["vlan "]
func LoadCatalogue(path string) (Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates a YAML catalogue.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalogue: %w", err)
	}
	c := Catalogue(f.Sections)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that names are unique and non-empty and that exactly one
// catch-all section exists.
func (c Catalogue) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(len(c) > 0, "catalogue has no sections")

	seen := make(map[string]bool)
	catchAll := 0
	for i, s := range c {
		if s.Name == "" {
			v.AddErrorf("section %d has no name", i)
		}
		if seen[s.Name] {
			v.AddErrorf("duplicate section %q", s.Name)
		}
		seen[s.Name] = true
		if len(s.Matchers) == 0 {
			catchAll++
		}
		for _, m := range s.Matchers {
			if strings.TrimSpace(m) == "" {
				v.AddErrorf("section %q has an empty matcher", s.Name)
			}
		}
	}
	if len(c) > 0 {
		v.Add(catchAll == 1, fmt.Sprintf("catalogue needs exactly one section without matchers, found %d", catchAll))
	}
	return v.Build()
}

// Names returns the section names in catalogue order.
func (c Catalogue) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the section with the given name.
func (c Catalogue) Lookup(name string) (FeatureSection, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return FeatureSection{}, false
}

// SectionFor returns the name of the section owning a top-level header. The
// longest matching prefix wins; unmatched headers go to the catch-all.
func (c Catalogue) SectionFor(header string) string {
	best, bestLen := c.catchAll(), -1
	for _, s := range c {
		for _, m := range s.Matchers {
			if strings.HasPrefix(header, m) && len(m) > bestLen {
				best, bestLen = s.Name, len(m)
			}
		}
	}
	return best
}

func (c Catalogue) catchAll() string {
	for _, s := range c {
		if len(s.Matchers) == 0 {
			return s.Name
		}
	}
	return SectionBaseline
}
