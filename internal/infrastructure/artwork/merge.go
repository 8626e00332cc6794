package artwork

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxCachedTemplates bounds the parsed template cache
const maxCachedTemplates = 256

// TemplateMerger merges recipient variables into HTML artwork using
// html/template. Variables are referenced as {{.first_name}}; unknown
// variables render as empty strings. Parsed templates are cached by source.
type TemplateMerger struct {
	funcMap template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewTemplateMerger creates a merger with the postcard template functions
func NewTemplateMerger() *TemplateMerger {
	title := cases.Title(language.AmericanEnglish)
	return &TemplateMerger{
		funcMap: template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"title": func(s string) string { return title.String(strings.ToLower(s)) },
			"trim":  strings.TrimSpace,
			"default": func(def, val string) string {
				if strings.TrimSpace(val) == "" {
					return def
				}
				return val
			},
			"truncate": func(n int, s string) string {
				r := []rune(s)
				if len(r) <= n {
					return s
				}
				return string(r[:n])
			},
		},
		cache: make(map[string]*template.Template),
	}
}

// Merge renders html with vars
func (m *TemplateMerger) Merge(html string, vars map[string]string) (string, error) {
	tmpl, err := m.parse(html)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("artwork: failed to merge template: %w", err)
	}
	return buf.String(), nil
}

// Validate parses html without executing it
func (m *TemplateMerger) Validate(html string) error {
	_, err := m.parse(html)
	return err
}

func (m *TemplateMerger) parse(html string) (*template.Template, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("artwork: template content is empty")
	}

	m.mu.RLock()
	tmpl, ok := m.cache[html]
	m.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New("artwork").Funcs(m.funcMap).Option("missingkey=zero").Parse(html)
	if err != nil {
		return nil, fmt.Errorf("artwork: failed to parse template: %w", err)
	}

	m.mu.Lock()
	if len(m.cache) >= maxCachedTemplates {
		m.cache = make(map[string]*template.Template)
	}
	m.cache[html] = tmpl
	m.mu.Unlock()
	return tmpl, nil
}
