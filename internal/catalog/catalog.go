// Package catalog holds the read-only template definitions: ordered fields,
// defaults versus placeholders, validation rules, grouping, and layouts.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/starford/mailwright/internal/apperr"
)

//go:embed templates.yaml
var builtin []byte

// Kind is the input kind of a field.
type Kind string

// Field kinds. KindImage fields declare image slots; every other kind
// declares a field value.
const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindRichText Kind = "richtext"
	KindURL      Kind = "url"
	KindColor    Kind = "color"
	KindImage    Kind = "image"
)

func (k Kind) valid() bool {
	switch k {
	case KindText, KindTextarea, KindRichText, KindURL, KindColor, KindImage:
		return true
	}
	return false
}

// Content is the initial content of a field: either a Default, which is
// real content that is persisted and exported, or a Placeholder, which is
// a hint that is never persisted.
type Content interface {
	Text() string
	content()
}

// Default is persisted content a new design starts with.
type Default string

// Placeholder is display-only hint text.
type Placeholder string

// Text returns the default value.
func (d Default) Text() string { return string(d) }
func (Default) content()       {}

// Text returns the hint.
func (p Placeholder) Text() string { return string(p) }
func (Placeholder) content()       {}

// Field is one declared template field.
type Field struct {
	ID        string
	Label     string
	Kind      Kind
	MaxLength int
	Content   Content
	Required  bool
	Group     string
	Rule      string
}

// IsImage reports whether the field is an image slot.
func (f Field) IsImage() bool { return f.Kind == KindImage }

// DefaultValue returns the field's default content, if it has one.
func (f Field) DefaultValue() (string, bool) {
	d, ok := f.Content.(Default)
	return string(d), ok
}

// Hint returns the placeholder hint, or "" if the field has none.
func (f Field) Hint() string {
	if p, ok := f.Content.(Placeholder); ok {
		return string(p)
	}
	return ""
}

// Template is an immutable template definition.
type Template struct {
	Key         string
	Name        string
	Description string
	Subject     string
	Fields      []Field
	Assets      map[string]string
	Layout      string

	byID  map[string]int
	rules map[string]*rule
}

// Field looks up a declared field by id.
func (t *Template) Field(id string) (Field, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// DeclaresValue reports whether id is a declared non-image field.
func (t *Template) DeclaresValue(id string) bool {
	f, ok := t.Field(id)
	return ok && !f.IsImage()
}

// DeclaresImage reports whether id is a declared image slot.
func (t *Template) DeclaresImage(id string) bool {
	f, ok := t.Field(id)
	return ok && f.IsImage()
}

// Defaults returns fresh maps holding only the declared Default content.
// Placeholders never appear in the result.
func (t *Template) Defaults() (fields, images map[string]string) {
	fields = make(map[string]string)
	images = make(map[string]string)
	for _, f := range t.Fields {
		v, ok := f.DefaultValue()
		if !ok {
			continue
		}
		if f.IsImage() {
			images[f.ID] = v
		} else {
			fields[f.ID] = v
		}
	}
	return fields, images
}

// Declared filters fields and images down to the keys this template
// declares. Unknown (legacy) keys are dropped.
func (t *Template) Declared(fields, images map[string]string) (map[string]string, map[string]string) {
	outF := make(map[string]string, len(fields))
	for k, v := range fields {
		if t.DeclaresValue(k) {
			outF[k] = v
		}
	}
	outI := make(map[string]string, len(images))
	for k, v := range images {
		if t.DeclaresImage(k) {
			outI[k] = v
		}
	}
	return outF, outI
}

// Groups returns field ids grouped in declaration order.
func (t *Template) Groups() map[string][]string {
	out := make(map[string][]string)
	for _, f := range t.Fields {
		out[f.Group] = append(out[f.Group], f.ID)
	}
	return out
}

// Catalog is the loaded set of templates.
type Catalog struct {
	templates []*Template
	byKey     map[string]*Template
}

// Get returns the template with the given key.
func (c *Catalog) Get(key string) (*Template, error) {
	t, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("catalog: template %q: %w", key, apperr.ErrNotFound)
	}
	return t, nil
}

// List returns all templates ordered by key.
func (c *Catalog) List() []*Template {
	out := make([]*Template, len(c.templates))
	copy(out, c.templates)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Builtin parses the embedded catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// Load reads a catalog file, falling back to the embedded catalog when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

type rawCatalog struct {
	Templates []rawTemplate `yaml:"templates"`
}

type rawTemplate struct {
	Key         string            `yaml:"key"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Subject     string            `yaml:"subject"`
	Assets      map[string]string `yaml:"assets"`
	Layout      string            `yaml:"layout"`
	Fields      []rawField        `yaml:"fields"`
}

type rawField struct {
	ID          string  `yaml:"id"`
	Label       string  `yaml:"label"`
	Kind        Kind    `yaml:"kind"`
	MaxLength   int     `yaml:"max_length"`
	Default     *string `yaml:"default"`
	Placeholder *string `yaml:"placeholder"`
	Required    bool    `yaml:"required"`
	Group       string  `yaml:"group"`
	Rule        string  `yaml:"rule"`
}

// Parse decodes and checks a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := &Catalog{byKey: make(map[string]*Template, len(raw.Templates))}
	for _, rt := range raw.Templates {
		t, err := buildTemplate(rt)
		if err != nil {
			return nil, err
		}
		if _, dup := c.byKey[t.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate template key %q", t.Key)
		}
		c.byKey[t.Key] = t
		c.templates = append(c.templates, t)
	}
	return c, nil
}

func buildTemplate(rt rawTemplate) (*Template, error) {
	if rt.Key == "" {
		return nil, fmt.Errorf("catalog: template key is required")
	}
	t := &Template{
		Key:         rt.Key,
		Name:        rt.Name,
		Description: rt.Description,
		Subject:     rt.Subject,
		Assets:      rt.Assets,
		Layout:      rt.Layout,
		byID:        make(map[string]int, len(rt.Fields)),
		rules:       make(map[string]*rule),
	}
	for _, rf := range rt.Fields {
		if rf.ID == "" {
			return nil, fmt.Errorf("catalog: %s: field id is required", rt.Key)
		}
		if _, dup := t.byID[rf.ID]; dup {
			return nil, fmt.Errorf("catalog: %s: duplicate field %q", rt.Key, rf.ID)
		}
		if rf.Kind == "" {
			rf.Kind = KindText
		}
		if !rf.Kind.valid() {
			return nil, fmt.Errorf("catalog: %s.%s: unknown kind %q", rt.Key, rf.ID, rf.Kind)
		}
		if rf.Default != nil && rf.Placeholder != nil {
			return nil, fmt.Errorf("catalog: %s.%s: default and placeholder are mutually exclusive", rt.Key, rf.ID)
		}
		f := Field{
			ID:        rf.ID,
			Label:     rf.Label,
			Kind:      rf.Kind,
			MaxLength: rf.MaxLength,
			Required:  rf.Required,
			Group:     rf.Group,
			Rule:      rf.Rule,
		}
		switch {
		case rf.Default != nil:
			f.Content = Default(*rf.Default)
		case rf.Placeholder != nil:
			f.Content = Placeholder(*rf.Placeholder)
		}
		if rf.Rule != "" {
			r, err := compileRule(rf.Rule)
			if err != nil {
				return nil, fmt.Errorf("catalog: %s.%s: %w", rt.Key, rf.ID, err)
			}
			t.rules[rf.ID] = r
		}
		t.byID[f.ID] = len(t.Fields)
		t.Fields = append(t.Fields, f)
	}
	return t, nil
}
