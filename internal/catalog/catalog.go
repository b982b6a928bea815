// Package catalog holds the static coaching options and expert personas.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed experts.yaml
var defaultCatalog []byte

// Persona is a named coaching character selectable for a room.
type Persona struct {
	Name     string `yaml:"name" json:"name"`
	Avatar   string `yaml:"avatar" json:"avatar"`
	Category string `yaml:"category" json:"category"`
}

// CoachingOption is one dashboard tile, e.g. "Mock Interview".
type CoachingOption struct {
	Name   string `yaml:"name" json:"name"`
	Icon   string `yaml:"icon" json:"icon"`
	Prompt string `yaml:"prompt" json:"prompt,omitempty"`
}

// Catalog is read-only once loaded and safe to share between requests.
type Catalog struct {
	Options []CoachingOption `yaml:"coaching_options" json:"coaching_options"`
	Experts []Persona        `yaml:"experts" json:"experts"`
}

// Default returns the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultCatalog))
}

// Load reads a catalog file, or the bundled default when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open catalog file %q: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("cannot load catalog file %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML, rejecting unknown fields.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Experts) == 0 {
		return errors.New("catalog has no experts")
	}
	for i, e := range c.Experts {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("expert #%d has no name", i)
		}
	}
	for i, o := range c.Options {
		if strings.TrimSpace(o.Name) == "" {
			return fmt.Errorf("coaching option #%d has no name", i)
		}
	}
	return nil
}

// Expert looks up a persona by exact name. The first match wins.
func (c *Catalog) Expert(name string) (Persona, bool) {
	for _, e := range c.Experts {
		if e.Name == name {
			return e, true
		}
	}
	return Persona{}, false
}

// Option looks up a coaching option by exact name. The first match wins.
func (c *Catalog) Option(name string) (CoachingOption, bool) {
	for _, o := range c.Options {
		if o.Name == name {
			return o, true
		}
	}
	return CoachingOption{}, false
}

// Duplicates lists names that appear more than once; only the first entry is reachable.
func (c *Catalog) Duplicates() []string {
	var dups []string
	seen := make(map[string]int)
	for _, e := range c.Experts {
		seen["expert:"+e.Name]++
		if seen["expert:"+e.Name] == 2 {
			dups = append(dups, "expert:"+e.Name)
		}
	}
	for _, o := range c.Options {
		seen["option:"+o.Name]++
		if seen["option:"+o.Name] == 2 {
			dups = append(dups, "option:"+o.Name)
		}
	}
	return dups
}
