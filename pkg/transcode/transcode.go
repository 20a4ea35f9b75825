// Package transcode converts XML documents into generic structured values.
//
// The conversion is shape-preserving rather than schema-driven:
//   - an element with attributes or child elements becomes a Mapping
//   - attributes are stored under AttributePrefix+name ("@name")
//   - element and attribute names keep the prefix written in the source
//     ("x:Key", "@x:id"), so names from different namespaces never merge
//   - a leaf element becomes a Scalar holding its text verbatim
//   - repeated sibling elements become an Array in document order, while a
//     single occurrence stays bare
//
// The last rule means the same field can be a Mapping in one document and an
// Array in another. Read repeatable fields through Value.List.
//
// Text mixed with child elements is ignored. Whitespace-only text between
// elements is discarded.
package transcode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

const (
	// DefaultAttributePrefix marks attribute keys in a Mapping.
	DefaultAttributePrefix = "@"

	// DefaultTextKey holds the text of an element that also has attributes.
	DefaultTextKey = "#text"
)

// Transcoder converts markup using configurable key conventions.
// The zero value uses the defaults. A Transcoder has no mutable state.
type Transcoder struct {
	// AttributePrefix is prepended to attribute names. Empty uses "@".
	AttributePrefix string

	// TextKey is the key for text content next to attributes. Empty uses "#text".
	TextKey string
}

// Transcode converts data with the default conventions.
func Transcode(data []byte) (*Value, error) {
	return (&Transcoder{}).Transcode(data)
}

type frame struct {
	name     string // qualified, as written
	ns       map[string]string
	value    *Value
	text     strings.Builder
	children bool
}

// Transcode converts data into a Mapping of {rootElementName: rootValue}.
//
// It returns a *MalformedInputError when data is not a single well-formed
// XML element tree.
func (t *Transcoder) Transcode(data []byte) (*Value, error) {
	attrPrefix, textKey := t.conventions()

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	var (
		stack    []*frame
		root     *Value
		rootName string
	)

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(dec, err)
		}

		switch tk := tok.(type) {
		case xml.StartElement:
			name := qualified(tk.Name)
			if len(stack) == 0 && root != nil {
				return nil, malformed(dec, fmt.Errorf("second root element <%s>", name))
			}
			var scope map[string]string
			if len(stack) > 0 {
				scope = stack[len(stack)-1].ns
			}
			f := &frame{name: name, ns: bindings(scope, tk.Attr), value: NewMapping()}
			if err := checkElementPrefix(f.ns, tk.Name); err != nil {
				return nil, malformed(dec, err)
			}
			seen := make(map[xml.Name]bool, len(tk.Attr))
			for _, a := range tk.Attr {
				id, err := resolveAttr(f.ns, a.Name)
				if err != nil {
					return nil, malformed(dec, err)
				}
				if seen[id] {
					return nil, malformed(dec, fmt.Errorf("duplicate attribute %s on <%s>", qualified(a.Name), name))
				}
				seen[id] = true
				f.value.Set(attrPrefix+qualified(a.Name), Scalar(a.Value))
			}
			if len(stack) > 0 {
				stack[len(stack)-1].children = true
			}
			stack = append(stack, f)

		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(tk)) > 0 {
					return nil, malformed(dec, errors.New("text outside the root element"))
				}
				continue
			}
			stack[len(stack)-1].text.Write(tk)

		case xml.EndElement:
			name := qualified(tk.Name)
			if len(stack) == 0 {
				return nil, malformed(dec, fmt.Errorf("unexpected end element </%s>", name))
			}
			f := stack[len(stack)-1]
			if name != f.name {
				return nil, malformed(dec, fmt.Errorf("element <%s> closed by </%s>", f.name, name))
			}
			stack = stack[:len(stack)-1]
			v := f.finish(textKey)
			if len(stack) == 0 {
				root, rootName = v, f.name
				continue
			}
			insert(stack[len(stack)-1].value, f.name, v)
		}
	}

	if len(stack) > 0 {
		return nil, malformed(dec, fmt.Errorf("unterminated element <%s>", stack[len(stack)-1].name))
	}
	if root == nil {
		return nil, malformed(dec, errors.New("no root element"))
	}

	doc := NewMapping()
	doc.Set(rootName, root)
	return doc, nil
}

func (t *Transcoder) conventions() (attrPrefix, textKey string) {
	attrPrefix, textKey = t.AttributePrefix, t.TextKey
	if attrPrefix == "" {
		attrPrefix = DefaultAttributePrefix
	}
	if textKey == "" {
		textKey = DefaultTextKey
	}
	return attrPrefix, textKey
}

// finish collapses a closed element into its Value.
func (f *frame) finish(textKey string) *Value {
	if f.children {
		return f.value
	}
	text := f.text.String()
	if f.value.Len() == 0 {
		return Scalar(text)
	}
	if strings.TrimSpace(text) != "" {
		f.value.Set(textKey, Scalar(text))
	}
	return f.value
}

// insert adds child under name, grouping repeated names into an Array.
// Element values are never Arrays themselves, so an existing Array is always
// a group built here.
func insert(parent *Value, name string, child *Value) {
	existing, ok := parent.Get(name)
	switch {
	case !ok:
		parent.Set(name, child)
	case existing.IsArray():
		existing.Append(child)
	default:
		parent.Set(name, NewArray(existing, child))
	}
}

const (
	xmlURL   = "http://www.w3.org/XML/1998/namespace"
	xmlnsURL = "http://www.w3.org/2000/xmlns/"
)

// qualified returns the name as written in the source, prefix included.
func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// bindings returns the prefix bindings in scope for an element. The parent
// map is shared unless the element declares namespaces of its own. The
// default namespace is bound under "".
func bindings(parent map[string]string, attrs []xml.Attr) map[string]string {
	scope, copied := parent, false
	for _, a := range attrs {
		var prefix string
		switch {
		case a.Name.Space == "xmlns":
			prefix = a.Name.Local
		case a.Name.Space == "" && a.Name.Local == "xmlns":
		default:
			continue
		}
		if !copied {
			scope, copied = make(map[string]string, len(parent)+1), true
			maps.Copy(scope, parent)
		}
		scope[prefix] = a.Value
	}
	return scope
}

func checkElementPrefix(scope map[string]string, n xml.Name) error {
	if n.Space == "" || n.Space == "xml" {
		return nil
	}
	if _, ok := scope[n.Space]; !ok || n.Space == "xmlns" {
		return fmt.Errorf("unbound namespace prefix %q on <%s>", n.Space, qualified(n))
	}
	return nil
}

// resolveAttr maps an attribute name to its namespace URI and local name.
// Unprefixed attributes are in no namespace.
func resolveAttr(scope map[string]string, n xml.Name) (xml.Name, error) {
	switch n.Space {
	case "":
		return xml.Name{Local: n.Local}, nil
	case "xmlns":
		return xml.Name{Space: xmlnsURL, Local: n.Local}, nil
	case "xml":
		return xml.Name{Space: xmlURL, Local: n.Local}, nil
	}
	uri, ok := scope[n.Space]
	if !ok {
		return xml.Name{}, fmt.Errorf("unbound namespace prefix %q on attribute %s", n.Space, qualified(n))
	}
	return xml.Name{Space: uri, Local: n.Local}, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.EqualFold(label, "us-ascii") || strings.EqualFold(label, "ascii") {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func malformed(dec *xml.Decoder, err error) *MalformedInputError {
	line, _ := dec.InputPos()
	return &MalformedInputError{Line: line, Offset: dec.InputOffset(), Err: err}
}
