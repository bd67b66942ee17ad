// Package preview renders designs to email HTML. Rendering is a pure
// function of its input.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/starford/mailwright/internal/catalog"
)

// Input is everything a render reads.
type Input struct {
	Template          *catalog.Template
	Fields            map[string]string
	Images            map[string]string
	ProjectName       string
	CreativeDirection string
}

// Renderer compiles template layouts once and renders them on demand.
type Renderer struct {
	hints bool

	mu      sync.Mutex
	layouts map[string]*template.Template
	subject map[string]*texttemplate.Template
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithHints makes empty fields render their placeholder hint. Use it for
// on-screen previews only; exports must render real content.
func WithHints() Option {
	return func(r *Renderer) { r.hints = true }
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		layouts: make(map[string]*template.Template),
		subject: make(map[string]*texttemplate.Template),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var unsafeRich = regexp.MustCompile(`(?is)<script.*?</script>|<style.*?</style>|\son\w+="[^"]*"`)

// funcs binds the layout helpers to one render input.
func (r *Renderer) funcs(in Input) map[string]any {
	value := func(id string) string {
		if v := in.Fields[id]; v != "" {
			return v
		}
		if r.hints {
			if f, ok := in.Template.Field(id); ok {
				return f.Hint()
			}
		}
		return ""
	}
	return map[string]any{
		"value": value,
		"rich": func(id string) template.HTML {
			return template.HTML(unsafeRich.ReplaceAllString(value(id), "")) //nolint:gosec // editor output, scripts stripped
		},
		"image":   func(id string) string { return in.Images[id] },
		"asset":   func(id string) string { return in.Template.Assets[id] },
		"project": func() string { return in.ProjectName },
	}
}

// Render returns the email HTML for in.
func (r *Renderer) Render(in Input) (string, error) {
	if in.Template == nil {
		return "", fmt.Errorf("preview: no template")
	}
	base, err := r.layout(in.Template)
	if err != nil {
		return "", err
	}
	t, err := base.Clone()
	if err != nil {
		return "", fmt.Errorf("preview: clone %s: %w", in.Template.Key, err)
	}
	var buf bytes.Buffer
	if err := t.Funcs(r.funcs(in)).Execute(&buf, in); err != nil {
		return "", fmt.Errorf("preview: render %s: %w", in.Template.Key, err)
	}
	return buf.String(), nil
}

// Subject renders the template's subject line as plain text.
func (r *Renderer) Subject(in Input) (string, error) {
	if in.Template == nil {
		return "", fmt.Errorf("preview: no template")
	}
	r.mu.Lock()
	st, ok := r.subject[in.Template.Key]
	if !ok {
		var err error
		st, err = texttemplate.New(in.Template.Key).Funcs(r.funcs(Input{Template: in.Template})).Parse(in.Template.Subject)
		if err != nil {
			r.mu.Unlock()
			return "", fmt.Errorf("preview: parse subject %s: %w", in.Template.Key, err)
		}
		r.subject[in.Template.Key] = st
	}
	r.mu.Unlock()

	st, err := st.Clone()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := st.Funcs(r.funcs(in)).Execute(&buf, in); err != nil {
		return "", fmt.Errorf("preview: render subject %s: %w", in.Template.Key, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// layout returns the parsed, never-executed base for t.
func (r *Renderer) layout(t *catalog.Template) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if base, ok := r.layouts[t.Key]; ok {
		return base, nil
	}
	base, err := template.New(t.Key).Funcs(r.funcs(Input{Template: t})).Parse(t.Layout)
	if err != nil {
		return nil, fmt.Errorf("preview: parse layout %s: %w", t.Key, err)
	}
	r.layouts[t.Key] = base
	return base, nil
}

// Check parses every layout and subject in c so broken templates fail at
// startup instead of on first preview.
func (r *Renderer) Check(c *catalog.Catalog) error {
	for _, t := range c.List() {
		if _, err := r.layout(t); err != nil {
			return err
		}
		if _, err := r.Subject(Input{Template: t}); err != nil {
			return err
		}
	}
	return nil
}
