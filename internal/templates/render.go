// Package templates renders the HTML fragments pushed over Datastar SSE.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

//go:embed fragments/*.html
var fragments embed.FS

// Empty is the data of the "empty-state" fragment.
type Empty struct {
	Title   string
	Message string
}

var funcMap = template.FuncMap{
	"empty": func(title, message string) Empty { return Empty{Title: title, Message: message} },
	"ids":   func(ids []string) string { return strings.Join(ids, ",") },
}

// Renderer holds the parsed fragments. Reload swaps them atomically.
type Renderer struct {
	mu   sync.RWMutex
	tmpl *template.Template
}

// New parses the embedded fragments.
func New() (*Renderer, error) {
	tmpl, err := parse(func(t *template.Template) (*template.Template, error) {
		return t.ParseFS(fragments, "fragments/*.html")
	})
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

func parse(fn func(*template.Template) (*template.Template, error)) (*template.Template, error) {
	return fn(template.New("").Funcs(funcMap))
}

// Render executes fragment name.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer executes fragment name into buf.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()
	if tmpl.Lookup(name) == nil {
		return maperr.NotFound("fragment %q is not defined", name)
	}
	return tmpl.ExecuteTemplate(buf, name, data)
}

// Reload replaces the fragments with the *.html files of dir. A directory
// without fragments is a configuration error and keeps the current set.
func (r *Renderer) Reload(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil || len(matches) == 0 {
		return maperr.Configuration("no fragments in %s", dir)
	}
	tmpl, err := parse(func(t *template.Template) (*template.Template, error) {
		return t.ParseFiles(matches...)
	})
	if err != nil {
		return maperr.Configuration("parse fragments in %s: %v", dir, err)
	}
	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}
