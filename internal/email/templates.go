package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

const (
	TemplateSignInLink = "signin_link"
	TemplateFarewell   = "farewell"
)

// SignInLinkVars alimenta el mail con el link de ingreso.
type SignInLinkVars struct {
	Email string
	Link  string
	TTL   string
}

// FarewellVars alimenta el mail de despedida.
type FarewellVars struct {
	Name    string
	Message string
}

type pair struct {
	html *htmltpl.Template
	text *texttpl.Template
}

// Templates son los templates embebidos, parseados una sola vez.
type Templates struct {
	byName map[string]pair
}

// LoadTemplates parsea los templates embebidos.
func LoadTemplates() (*Templates, error) {
	t := &Templates{byName: map[string]pair{}}
	for _, name := range []string{TemplateSignInLink, TemplateFarewell} {
		h, err := htmltpl.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("email: parse %s.html: %w", name, err)
		}
		x, err := texttpl.ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("email: parse %s.txt: %w", name, err)
		}
		t.byName[name] = pair{html: h, text: x}
	}
	return t, nil
}

// Render devuelve html y texto del template name.
func (t *Templates) Render(name string, vars any) (html, text string, err error) {
	p, ok := t.byName[name]
	if !ok {
		return "", "", fmt.Errorf("email: unknown template %q", name)
	}
	var hb, tb bytes.Buffer
	if err := p.html.Execute(&hb, vars); err != nil {
		return "", "", fmt.Errorf("email: render %s.html: %w", name, err)
	}
	if err := p.text.Execute(&tb, vars); err != nil {
		return "", "", fmt.Errorf("email: render %s.txt: %w", name, err)
	}
	return hb.String(), tb.String(), nil
}
