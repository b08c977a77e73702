// Package knowledge holds the static domain knowledge interpolated into
// coaching prompts: the product catalog grouped by category, the FAQ corpus,
// the role-play client personas and the common complaint types used to seed
// case studies.
//
// The data ships embedded in the binary. [Load] parses it once; the returned
// [Base] is immutable and safe for concurrent use.
package knowledge

import (
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml data/*.md
var embedded embed.FS

// Product is a single catalog entry.
type Product struct {
	Name    string `yaml:"name" json:"name"`
	Details string `yaml:"details" json:"details"`
}

// Category groups related products (e.g. "Cuentas", "Créditos").
type Category struct {
	Name     string    `yaml:"category" json:"category"`
	Products []Product `yaml:"products" json:"products"`
}

// Profile is a role-play client persona. Description is the full persona
// instruction including its emotional state machine.
type Profile struct {
	Name        string `yaml:"name" json:"name"`
	Difficulty  string `yaml:"difficulty" json:"difficulty"`
	Description string `yaml:"description" json:"description"`
}

// Prompt renders the persona as it is handed to the model.
func (p Profile) Prompt() string {
	return p.Name + "\n" + p.Description
}

// Base is the parsed knowledge base.
type Base struct {
	categories []Category
	profiles   []Profile
	problems   []string
	faq        string

	byName map[string]*Product
}

// Load parses the embedded knowledge data.
func Load() (*Base, error) {
	return LoadFS(embedded)
}

// LoadFS parses knowledge data from fsys, which must contain
// data/products.yaml, data/profiles.yaml, data/problems.yaml and data/faq.md.
func LoadFS(fsys fs.FS) (*Base, error) {
	var catalog struct {
		Categories []Category `yaml:"categories"`
	}
	if err := decodeYAML(fsys, "data/products.yaml", &catalog); err != nil {
		return nil, err
	}
	var personas struct {
		Profiles []Profile `yaml:"profiles"`
	}
	if err := decodeYAML(fsys, "data/profiles.yaml", &personas); err != nil {
		return nil, err
	}
	var problems struct {
		Problems []string `yaml:"problems"`
	}
	if err := decodeYAML(fsys, "data/problems.yaml", &problems); err != nil {
		return nil, err
	}
	faq, err := fs.ReadFile(fsys, "data/faq.md")
	if err != nil {
		return nil, fmt.Errorf("knowledge: read faq: %w", err)
	}

	b := &Base{
		categories: catalog.Categories,
		profiles:   personas.Profiles,
		problems:   problems.Problems,
		faq:        string(faq),
		byName:     make(map[string]*Product),
	}
	for ci := range b.categories {
		for pi := range b.categories[ci].Products {
			p := &b.categories[ci].Products[pi]
			if _, dup := b.byName[p.Name]; dup {
				return nil, fmt.Errorf("knowledge: duplicate product %q", p.Name)
			}
			b.byName[p.Name] = p
		}
	}
	return b, nil
}

func decodeYAML(fsys fs.FS, name string, v any) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("knowledge: open %s: %w", name, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("knowledge: decode %s: %w", name, err)
	}
	return nil
}

// ProductDetails returns the catalog details for an exact product name match.
// Unknown names yield a generic instruction telling the advisor to rely on
// general product knowledge.
func (b *Base) ProductDetails(name string) string {
	if p, ok := b.byName[name]; ok {
		return p.Details
	}
	return fmt.Sprintf("Detalles específicos no encontrados para '%s'. El asesor debe usar su conocimiento general sobre productos de Bancolombia.", name)
}

// HasProduct reports whether name matches a catalog entry exactly.
func (b *Base) HasProduct(name string) bool {
	_, ok := b.byName[name]
	return ok
}

// FAQ returns the FAQ corpus.
func (b *Base) FAQ() string { return b.faq }

// Categories returns the catalog. The slice must not be modified.
func (b *Base) Categories() []Category { return b.categories }

// Profiles returns the role-play personas in their canonical order.
func (b *Base) Profiles() []Profile { return b.profiles }

// Profile looks up a persona by name.
func (b *Base) Profile(name string) (Profile, bool) {
	for _, p := range b.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Problems returns the common complaint types offered for case studies.
func (b *Base) Problems() []string { return b.problems }
