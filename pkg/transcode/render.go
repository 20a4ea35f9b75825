package transcode

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalJSON renders the value as JSON, preserving mapping key order.
// Scalars are always JSON strings.
func (v *Value) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	writeJSON(&b, v)
	return []byte(b.String()), nil
}

func writeJSON(b *strings.Builder, v *Value) {
	switch {
	case v == nil:
		b.WriteString("null")
	case v.kind == KindScalar:
		writeJSONString(b, v.text)
	case v.kind == KindArray:
		b.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, item)
		}
		b.WriteByte(']')
	default:
		b.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			writeJSON(b, v.fields[k])
		}
		b.WriteByte('}')
	}
}

func writeJSONString(b *strings.Builder, s string) {
	// Marshalling a string cannot fail.
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// MarshalYAML renders the value as a yaml.v3 node tree so mapping order
// survives encoding.
func (v *Value) MarshalYAML() (any, error) {
	return v.yamlNode(), nil
}

func (v *Value) yamlNode() *yaml.Node {
	switch {
	case v == nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case v.kind == KindScalar:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.text}
	case v.kind == KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.items {
			n.Content = append(n.Content, item.yamlNode())
		}
		return n
	default:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				v.fields[k].yamlNode())
		}
		return n
	}
}
