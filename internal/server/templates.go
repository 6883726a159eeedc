package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

const (
	indexTemplate = "index.html"
	uiTemplate    = "ui.html"
)

// loadTemplates parses the page templates from dir, or from the copies built
// into the binary when dir is empty.
func loadTemplates(dir string) (*template.Template, error) {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}

	tmpl, err := template.ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	for _, name := range []string{indexTemplate, uiTemplate} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("template %s not found", name)
		}
	}
	return tmpl, nil
}
