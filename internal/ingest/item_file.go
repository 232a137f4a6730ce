package ingest

import (
	"fmt"

	"github.com/agentic-research/snowpak/internal/markup"
	"github.com/agentic-research/snowpak/internal/template"
)

const (
	parentElement = "_parent"
	attrFile      = "File"
)

// itemFile is the top level of an item file split into its three parts.
type itemFile struct {
	templates *markup.Element // optional <_templates>
	parent    *markup.Element // optional <_parent>
	content   *markup.Element
}

func splitItemFile(path string, roots []*markup.Element) (*itemFile, error) {
	f := &itemFile{}
	for _, el := range roots {
		switch el.Name {
		case template.ContainerElement:
			if f.templates != nil {
				return nil, fmt.Errorf("%w: more than one <%s> in %s", ErrParse, template.ContainerElement, path)
			}
			f.templates = el
		case parentElement:
			if f.parent != nil {
				return nil, fmt.Errorf("%w: more than one <%s> in %s", ErrParse, parentElement, path)
			}
			f.parent = el
		default:
			if f.content != nil {
				return nil, fmt.Errorf("%w: more than one content element in %s: <%s>, <%s>", ErrParse, path, f.content.Name, el.Name)
			}
			f.content = el
		}
	}
	if f.content == nil {
		return nil, fmt.Errorf("%w: no content element in %s", ErrParse, path)
	}
	return f, nil
}

// parentName returns the File attribute of a <_parent> element. The element
// must have no children and no other attributes.
func parentName(path string, el *markup.Element) (string, error) {
	if el == nil {
		return "", nil
	}
	if len(el.Children) > 0 {
		return "", fmt.Errorf("%w: unexpected children in <%s> in %s", ErrParse, parentElement, path)
	}
	var name string
	found := false
	for _, a := range el.Attrs {
		if a.Name != attrFile {
			return "", fmt.Errorf("%w: unexpected attribute %q in <%s> in %s", ErrParse, a.Name, parentElement, path)
		}
		name, found = a.Value, true
	}
	if !found {
		return "", fmt.Errorf("%w: no %q attribute in <%s> in %s", ErrParse, attrFile, parentElement, path)
	}
	return name, nil
}
