package style

import (
	"strings"

	"github.com/c360studio/cargo-cite/bibliography"
)

// Name forms.
const (
	FormGivenFamily    = "given-family"    // John Doe
	FormFamilyGiven    = "family-given"    // Doe, John
	FormInitialsFamily = "initials-family" // J. Doe
	FormFamilyInitials = "family-initials" // Doe, J.
)

// NameFormat controls how author and editor lists are written.
type NameFormat struct {
	// Form applies to the first name; OthersForm, when set, to the rest.
	Form       string `yaml:"form"`
	OthersForm string `yaml:"others_form"`

	InitialPeriod string `yaml:"initial_period"`
	InitialSep    string `yaml:"initial_sep"`
	// SortSep separates family from given name in family-first forms.
	SortSep string `yaml:"sort_sep"`

	Delimiter     string `yaml:"delimiter"`
	And           string `yaml:"and"`
	LastDelimiter string `yaml:"last_delimiter"`

	// Lists of EtAlMin or more names keep EtAlUseFirst names followed by
	// EtAl. Zero disables truncation.
	EtAlMin      int    `yaml:"et_al_min"`
	EtAlUseFirst int    `yaml:"et_al_use_first"`
	EtAl         string `yaml:"et_al"`
}

// Format writes people as a single string. A trailing "and others" in the
// source always truncates.
func (n NameFormat) Format(people []bibliography.Person) string {
	list := make([]bibliography.Person, 0, len(people))
	etAl := false
	for _, p := range people {
		if p.IsOthers() {
			etAl = true
			continue
		}
		list = append(list, p)
	}
	if len(list) == 0 {
		return ""
	}
	if n.EtAlMin > 0 && len(list) >= n.EtAlMin {
		list = list[:min(max(n.EtAlUseFirst, 1), len(list))]
		etAl = true
	}

	names := make([]string, len(list))
	for i, p := range list {
		form := n.Form
		if i > 0 && n.OthersForm != "" {
			form = n.OthersForm
		}
		names[i] = n.person(p, form)
	}

	last := len(names) - 1
	switch {
	case etAl:
		return strings.Join(names, n.Delimiter) + n.EtAl
	case len(names) == 1:
		return names[0]
	case len(names) == 2:
		return names[0] + n.And + names[1]
	default:
		return strings.Join(names[:last], n.Delimiter) + n.LastDelimiter + names[last]
	}
}

func (n NameFormat) person(p bibliography.Person, form string) string {
	if p.Literal != "" {
		return p.Literal
	}

	given := p.Given
	if form == FormInitialsFamily || form == FormFamilyInitials {
		given = p.Initials(n.InitialPeriod, n.InitialSep)
	}
	family := p.FamilyName()

	var out string
	switch form {
	case FormFamilyGiven, FormFamilyInitials:
		out = family
		if given != "" {
			sep := n.SortSep
			if sep == "" {
				sep = ", "
			}
			out += sep + given
		}
	default:
		out = strings.TrimSpace(given + " " + family)
	}
	if p.Suffix != "" {
		out += ", " + p.Suffix
	}
	return out
}
