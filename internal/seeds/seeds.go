// Package seeds loads curated food truck URL lists that maintenance keeps
// scraped.
package seeds

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/discovery"
)

// Seed is one curated URL.
type Seed struct {
	URL      string `yaml:"url" json:"url"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Priority int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Load reads a seed list from a .yaml, .yml or .xlsx file.
func Load(path string) ([]Seed, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "seeds: read %s", path)
		}
		return ParseYAML(data)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("seeds: unsupported file type %q", filepath.Ext(path))
	}
}

// Resolve combines the inline URLs and the seed file from cfg.
func Resolve(cfg config.SeedsConfig) ([]Seed, error) {
	list := FromURLs(cfg.URLs)
	if cfg.Path != "" {
		fromFile, err := Load(cfg.Path)
		if err != nil {
			return nil, err
		}
		list = append(list, fromFile...)
	}
	return normalize(list), nil
}

// FromURLs wraps bare URLs as seeds.
func FromURLs(urls []string) []Seed {
	out := make([]Seed, 0, len(urls))
	for _, u := range urls {
		out = append(out, Seed{URL: u})
	}
	return normalize(out)
}

// yamlSeed accepts either a bare URL string or a mapping.
type yamlSeed struct {
	Seed
}

func (s *yamlSeed) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		s.URL = n.Value
		return nil
	}
	return n.Decode(&s.Seed)
}

// ParseYAML parses either a top-level list or a document with a "seeds" key.
func ParseYAML(data []byte) ([]Seed, error) {
	var doc struct {
		Seeds []yamlSeed `yaml:"seeds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		var list []yamlSeed
		if lerr := yaml.Unmarshal(data, &list); lerr != nil {
			return nil, eris.Wrap(err, "seeds: parse yaml")
		}
		doc.Seeds = list
	}
	out := make([]Seed, 0, len(doc.Seeds))
	for _, s := range doc.Seeds {
		out = append(out, s.Seed)
	}
	return normalize(out), nil
}

// normalize canonicalizes URLs and drops invalid entries and duplicates.
func normalize(in []Seed) []Seed {
	seen := make(map[string]bool, len(in))
	out := make([]Seed, 0, len(in))
	for _, s := range in {
		u, ok := discovery.NormalizeURL(s.URL)
		if !ok {
			if strings.TrimSpace(s.URL) != "" {
				zap.L().Warn("seeds: skipping invalid url", zap.String("url", s.URL))
			}
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		s.URL = u
		s.Name = strings.TrimSpace(s.Name)
		s.Region = strings.TrimSpace(s.Region)
		out = append(out, s)
	}
	return out
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
