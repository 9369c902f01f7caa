// Package prompt renders text templates into ordered text and media parts.
//
// Templates use text/template syntax plus a media function. Each
// {{media .Image}} call ends the current text part and inserts a media
// part, so a provider receives text and images interleaved exactly as the
// template lays them out:
//
//	Product Images: {{range .ProductImages}}{{media .}}{{end}}
//
// Rendering is pure: the same template and bindings always produce the
// same payload.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/lithammer/dedent"
	"github.com/raine/review-moderator/internal/media"
)

// Part is either a text fragment or an embedded media reference.
type Part struct {
	Text  string
	Media *media.Asset
}

// IsMedia reports whether the part is a media reference.
func (p Part) IsMedia() bool {
	return p.Media != nil
}

// Payload is a rendered prompt.
type Payload struct {
	Parts []Part
}

// Text returns the prompt text with media parts replaced by numbered
// [image #N] markers.
func (p Payload) Text() string {
	var sb strings.Builder
	n := 0
	for _, part := range p.Parts {
		if part.IsMedia() {
			n++
			fmt.Fprintf(&sb, "[image #%d]", n)
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// Media returns the embedded media references in render order.
func (p Payload) Media() []media.Asset {
	var refs []media.Asset
	for _, part := range p.Parts {
		if part.IsMedia() {
			refs = append(refs, *part.Media)
		}
	}
	return refs
}

// Template is a parsed prompt template. It is safe for concurrent use.
type Template struct {
	name string
	tmpl *template.Template
}

// New parses a prompt template. The source is dedented and trimmed so
// templates can be declared as indented raw strings.
func New(name, src string) (*Template, error) {
	src = strings.TrimSpace(dedent.Dedent(src))
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"media": func(string) (string, error) { return "", nil }}).
		Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// Must is like New but panics on error. Intended for package-level
// template declarations.
func Must(name, src string) *Template {
	t, err := New(name, src)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template identifier.
func (t *Template) Name() string {
	return t.name
}

// Render executes the template against bindings.
func (t *Template) Render(bindings any) (Payload, error) {
	tmpl, err := t.tmpl.Clone()
	if err != nil {
		return Payload{}, fmt.Errorf("failed to clone prompt template %s: %w", t.name, err)
	}

	rec := &recorder{}
	tmpl.Funcs(template.FuncMap{"media": rec.media})

	if err := tmpl.Execute(rec, bindings); err != nil {
		return Payload{}, fmt.Errorf("failed to render prompt template %s: %w", t.name, err)
	}
	rec.flush()

	return Payload{Parts: rec.parts}, nil
}

// recorder collects template output. text/template writes text nodes as
// it walks the tree, so by the time media is called every preceding byte
// is already buffered.
type recorder struct {
	buf   strings.Builder
	parts []Part
}

func (r *recorder) Write(p []byte) (int, error) {
	return r.buf.Write(p)
}

func (r *recorder) flush() {
	if r.buf.Len() == 0 {
		return
	}
	r.parts = append(r.parts, Part{Text: r.buf.String()})
	r.buf.Reset()
}

func (r *recorder) media(uri string) (string, error) {
	asset, err := media.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid media reference: %w", err)
	}
	r.flush()
	r.parts = append(r.parts, Part{Media: &asset})
	return "", nil
}
