// Package style holds the citation style catalogue and renders
// bibliography entries to footnote text.
package style

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed styles/*.yaml
var catalogueFS embed.FS

var (
	// ErrUnknownStyle is returned for a name missing from the catalogue.
	ErrUnknownStyle = errors.New("unknown citation style")

	// ErrDependentStyle is returned for styles that only alias a parent
	// style and cannot be rendered on their own.
	ErrDependentStyle = errors.New("dependent citation style not supported")
)

// Class describes how a style refers to its entries.
type Class string

const (
	ClassNumeric    Class = "numeric"
	ClassAuthorDate Class = "author-date"
	ClassAuthor     Class = "author"
)

// Style is a loaded, independent citation style.
type Style struct {
	Name  string
	Title string
	Class Class
	Names NameFormat

	label     *template.Template
	templates map[string]*template.Template
}

// Numeric reports whether entries carry a running number.
func (s *Style) Numeric() bool {
	return s.Class == ClassNumeric
}

// Info describes a catalogue entry.
type Info struct {
	Name   string
	Title  string
	Class  Class
	Parent string
}

// Dependent reports whether the style only aliases its parent.
func (i Info) Dependent() bool {
	return i.Parent != ""
}

// styleFile is the YAML form of a catalogue entry.
type styleFile struct {
	Name      string            `yaml:"name"`
	Title     string            `yaml:"title"`
	Parent    string            `yaml:"parent"`
	Class     Class             `yaml:"class"`
	Label     string            `yaml:"label"`
	Names     NameFormat        `yaml:"names"`
	Templates map[string]string `yaml:"templates"`
}

type catalogue struct {
	infos  map[string]Info
	styles map[string]*Style
}

var loadCatalogue = sync.OnceValues(func() (*catalogue, error) {
	return readCatalogue(catalogueFS, "styles")
})

func readCatalogue(fsys fs.FS, dir string) (*catalogue, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}

	c := &catalogue{
		infos:  make(map[string]Info, len(files)),
		styles: make(map[string]*Style, len(files)),
	}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read style %s: %w", file, err)
		}
		var sf styleFile
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("parse style %s: %w", file, err)
		}
		name := strings.ToLower(sf.Name)
		if name == "" {
			return nil, fmt.Errorf("style %s: missing name", file)
		}
		c.infos[name] = Info{Name: name, Title: sf.Title, Class: sf.Class, Parent: sf.Parent}
		if sf.Parent != "" {
			continue
		}
		st, err := compile(name, &sf)
		if err != nil {
			return nil, err
		}
		c.styles[name] = st
	}
	return c, nil
}

func compile(name string, sf *styleFile) (*Style, error) {
	if _, ok := sf.Templates[defaultTemplate]; !ok {
		return nil, fmt.Errorf("style %s: missing %q template", name, defaultTemplate)
	}
	st := &Style{
		Name:      name,
		Title:     sf.Title,
		Class:     sf.Class,
		Names:     sf.Names,
		templates: make(map[string]*template.Template, len(sf.Templates)),
	}
	for typ, text := range sf.Templates {
		tmpl, err := template.New(name + "/" + typ).Funcs(funcs).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("style %s: template %s: %w", name, typ, err)
		}
		st.templates[typ] = tmpl
	}
	if sf.Label != "" {
		tmpl, err := template.New(name + "/label").Parse(sf.Label)
		if err != nil {
			return nil, fmt.Errorf("style %s: label: %w", name, err)
		}
		st.label = tmpl
	}
	return st, nil
}

// Load returns the named style. Names are case-insensitive.
func Load(name string) (*Style, error) {
	c, err := loadCatalogue()
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(name))
	info, ok := c.infos[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
	}
	if info.Dependent() {
		return nil, fmt.Errorf("%w: %s depends on %s", ErrDependentStyle, key, info.Parent)
	}
	return c.styles[key], nil
}

// Names returns the independent style names in ascending order.
func Names() ([]string, error) {
	infos, err := List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if !info.Dependent() {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

// List returns every catalogue entry, dependent styles included, sorted by
// name.
func List() ([]Info, error) {
	c, err := loadCatalogue()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(c.infos))
	for _, info := range c.infos {
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return infos, nil
}
