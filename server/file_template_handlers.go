package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const (
	pageLogin         = "login.html"
	pagePlaceholder   = "placeholder.html"
	pageApp           = "app.html"
	pageGestor        = "gestor.html"
	pageUnprovisioned = "unprovisioned.html"
	pageForbidden     = "forbidden.html"

	contentTypeHTML = "text/html; charset=utf-8"
)

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(name).ParseFS(TemplateFilesFS(), "layout.html", name)
}

type pageTemplates struct {
	pages map[string]*template.Template
}

func parsePages() (*pageTemplates, error) {
	p := &pageTemplates{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageLogin, pagePlaceholder, pageApp, pageGestor, pageUnprovisioned, pageForbidden} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, err
		}
		p.pages[name] = tmpl
	}
	return p, nil
}

// render executes the page into a buffer so a template error never leaves a
// half written response.
func (p *pageTemplates) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := p.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Err(err).Str("page", name).Msg("failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
