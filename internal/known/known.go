// Package known holds the table of archive-version-specific corrections
// applied while loading. Every correction is a record: a match predicate over
// the file (and sometimes element) being read, plus the corrective value to
// use. Adding a correction means adding data, not code.
package known

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/snowpak/internal/diag"
)

var ErrInvalidIssue = errors.New("invalid known issue")

// Kind selects the corrective action of an Issue.
type Kind string

const (
	// WrongClassFile skips an item file that sits in the wrong class folder.
	WrongClassFile Kind = "wrong-class-file"
	// IgnoreTemplateList skips a template list inside a <_templates> element.
	// With OnlyDuplicate set the list is only skipped when a list of the same
	// name was already read from that file.
	IgnoreTemplateList Kind = "ignore-template-list"
	// ParentTypo replaces the parent file name Value with Replacement.
	ParentTypo Kind = "parent-typo"
	// MisplacedTemplate reads a list element named Element as the template
	// Value (Element when empty) of a new template list named Replacement.
	// Value names the template here and is not a match field.
	MisplacedTemplate Kind = "misplaced-template"
	// MisplacedParent accepts a <_parent> element inside <_templates>.
	MisplacedParent Kind = "misplaced-parent"
)

func (k Kind) valid() bool {
	switch k {
	case WrongClassFile, IgnoreTemplateList, ParentTypo, MisplacedTemplate, MisplacedParent:
		return true
	}
	return false
}

// Issue is one correction. Empty match fields match anything.
type Issue struct {
	Kind Kind `yaml:"kind"`

	// Match fields.
	Class    string `yaml:"class,omitempty"`
	SubClass string `yaml:"subclass,omitempty"`
	File     string `yaml:"file,omitempty"` // base name of the file
	Path     string `yaml:"path,omitempty"` // archive path of the file
	Element  string `yaml:"element,omitempty"`
	Value    string `yaml:"value,omitempty"`

	OnlyDuplicate bool   `yaml:"only_duplicate,omitempty"`
	Replacement   string `yaml:"replacement,omitempty"`
	Note          string `yaml:"note,omitempty"`
}

// Query describes the situation a correction is looked up for.
type Query struct {
	Kind      Kind
	Class     string
	SubClass  string
	File      string
	Path      string
	Element   string
	Value     string
	Duplicate bool
}

// Match reports whether the issue applies to q.
func (i Issue) Match(q Query) bool {
	if i.Kind != q.Kind {
		return false
	}
	if i.OnlyDuplicate && !q.Duplicate {
		return false
	}
	return field(i.Class, q.Class) &&
		field(i.SubClass, q.SubClass) &&
		field(i.File, q.File) &&
		field(i.Path, q.Path) &&
		field(i.Element, q.Element) &&
		(i.Kind == MisplacedTemplate || field(i.Value, q.Value))
}

func field(want, got string) bool {
	return want == "" || want == got
}

// Validate checks that the issue carries the fields its kind needs.
func (i Issue) Validate() error {
	if !i.Kind.valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidIssue, i.Kind)
	}
	switch i.Kind {
	case WrongClassFile:
		if i.File == "" && i.Path == "" {
			return fmt.Errorf("%w: %s needs file or path", ErrInvalidIssue, i.Kind)
		}
	case IgnoreTemplateList:
		if i.Element == "" {
			return fmt.Errorf("%w: %s needs element", ErrInvalidIssue, i.Kind)
		}
	case ParentTypo:
		if i.Value == "" || i.Replacement == "" {
			return fmt.Errorf("%w: %s needs value and replacement", ErrInvalidIssue, i.Kind)
		}
	case MisplacedTemplate:
		if i.Element == "" || i.Replacement == "" {
			return fmt.Errorf("%w: %s needs element and replacement", ErrInvalidIssue, i.Kind)
		}
	}
	return nil
}

// Builtin returns the corrections needed by the shipped game archives.
func Builtin() []Issue {
	return []Issue{
		{
			Kind:  WrongClassFile,
			Class: "engines",
			File:  "e_un_truck_heavy_boarpac.xml",
			Note:  "known wrong file, item ignored",
		},
		{
			Kind:     WrongClassFile,
			Class:    "trucks",
			SubClass: "cargo",
			File:     "cargo_wooden_planks_02.xml",
			Note:     "known wrong file, item ignored",
		},
		{
			Kind:     WrongClassFile,
			Class:    "trucks",
			SubClass: "cargo",
			File:     "cargo_wooden_planks_04.xml",
			Note:     "known wrong file, item ignored",
		},
		{
			Kind:    IgnoreTemplateList,
			Path:    "[media]/_dlc/dlc_9/classes/trucks/derry_special_15c177_tunning/derry_special_15c177_bumper_1a.xml",
			Element: "CollarF",
			Note:    "stray template list, ignored",
		},
		{
			Kind:          IgnoreTemplateList,
			Path:          "[media]/_dlc/dlc_8/classes/trucks/kirovets_k7m.xml",
			Element:       "Body",
			OnlyDuplicate: true,
			Note:          "second template list, ignored",
		},
		{
			Kind:        ParentTypo,
			Path:        "[media]/_dlc/stuff_01/classes/trucks/western_star_57x_stuff/stuff_hood_tiger_western_star_57x.xml",
			Value:       "stuff_hood_bull_tiger_f750",
			Replacement: "stuff_hood_tiger_ford_f750",
			Note:        "parent name replaced",
		},
		{
			Kind:        MisplacedTemplate,
			Element:     "Mudguard",
			Value:       "Mudguard",
			Replacement: "Body",
			Note:        "<Mudguard> read as template of list <Body>",
		},
		{
			Kind:    MisplacedParent,
			Element: "_parent",
			Note:    "<_parent> inside <_templates> relocated",
		},
	}
}

type file struct {
	Issues []Issue `yaml:"issues"`
}

// LoadFile reads extra corrections from a YAML file of the form
//
//	issues:
//	  - kind: parent-typo
//	    path: "[media]/classes/trucks/foo.xml"
//	    value: bar
//	    replacement: baz
func LoadFile(path string) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read known issues: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse known issues %s: %w", path, err)
	}
	var errs []error
	for n, issue := range f.Issues {
		issue.Path = strings.ReplaceAll(issue.Path, "\\", "/")
		f.Issues[n] = issue
		if err := issue.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("issue %d: %w", n+1, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Issues, nil
}

// Table evaluates corrections in order; the first matching issue wins.
// A Table is read-only after construction and safe for concurrent use.
type Table struct {
	issues []Issue
	report *diag.Report
	quiet  bool
}

// NewTable builds a table over issues. Every applied correction is counted in
// report; quiet suppresses the log line for it.
func NewTable(issues []Issue, report *diag.Report, quiet bool) *Table {
	return &Table{issues: issues, report: report, quiet: quiet}
}

// Issues returns the entries of the table in evaluation order.
func (t *Table) Issues() []Issue {
	if t == nil {
		return nil
	}
	return append([]Issue(nil), t.issues...)
}

// Find returns the first issue matching q and records the hit.
func (t *Table) Find(q Query) (Issue, bool) {
	if t == nil {
		return Issue{}, false
	}
	for _, issue := range t.issues {
		if issue.Match(q) {
			t.report.KnownIssue(string(issue.Kind), q.Path, issue.Note, t.quiet)
			return issue, true
		}
	}
	return Issue{}, false
}

// SkipItem reports whether the item file must not be loaded.
func (t *Table) SkipItem(class, subClass, fileName, path string) bool {
	_, ok := t.Find(Query{Kind: WrongClassFile, Class: class, SubClass: subClass, File: fileName, Path: path})
	return ok
}

// IgnoreTemplateList reports whether the template list element of the file
// at path must be skipped. duplicate tells whether a list with that name was
// already read.
func (t *Table) IgnoreTemplateList(path, element string, duplicate bool) bool {
	_, ok := t.Find(Query{Kind: IgnoreTemplateList, Path: path, Element: element, Duplicate: duplicate})
	return ok
}

// FixParent returns the corrected parent file name.
func (t *Table) FixParent(path, parent string) string {
	if issue, ok := t.Find(Query{Kind: ParentTypo, Path: path, Value: parent}); ok {
		return issue.Replacement
	}
	return parent
}

// MisplacedTemplate reports whether a list element named element is really a
// template, and if so the list and template names to register it under.
func (t *Table) MisplacedTemplate(path, element string) (list, name string, ok bool) {
	issue, ok := t.Find(Query{Kind: MisplacedTemplate, Path: path, Element: element})
	if !ok {
		return "", "", false
	}
	name = issue.Value
	if name == "" {
		name = element
	}
	return issue.Replacement, name, true
}

// MisplacedParent reports whether a <_parent> element found inside
// <_templates> of the file at path may be relocated.
func (t *Table) MisplacedParent(path string) bool {
	_, ok := t.Find(Query{Kind: MisplacedParent, Path: path, Element: "_parent"})
	return ok
}
