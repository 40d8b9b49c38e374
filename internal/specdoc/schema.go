package specdoc

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

const definitionsPrefix = "#/definitions/"

// Schema is one node of a specification schema. References are kept as
// names and resolved on demand through Document.
type Schema struct {
	Ref         string
	Type        string
	Format      string
	Description string
	Enum        []json.RawMessage
	Properties  []Property
	Required    []string
	Items       *Schema

	// HasProperties is set when the node declares a properties table, even
	// an empty one.
	HasProperties bool
	// Empty is set when the node had no keys at all.
	Empty bool
}

// Property is a named entry of a schema's properties table.
type Property struct {
	Name   string
	Schema *Schema
}

// Property returns the named property schema.
func (s *Schema) Property(name string) (*Schema, bool) {
	if s == nil {
		return nil, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// PropertyNames returns property names in declared order.
func (s *Schema) PropertyNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	return names
}

// IsRequired reports whether name is listed in the required array.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// IsZero reports whether s is nil or carried no keys.
func (s *Schema) IsZero() bool {
	return s == nil || s.Empty
}

// RefName returns the definition name of a #/definitions/ reference, or ""
// for any other reference form.
func RefName(ref string) string {
	if !strings.HasPrefix(ref, definitionsPrefix) {
		return ""
	}
	name := ref[len(definitionsPrefix):]
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func parseSchema(r gjson.Result) *Schema {
	s := &Schema{}
	if !r.IsObject() {
		s.Empty = true
		return s
	}

	keys := 0
	r.ForEach(func(key, val gjson.Result) bool {
		keys++
		switch key.String() {
		case "$ref":
			s.Ref = val.String()
		case "type":
			// OpenAPI 3.1 allows a type list; the first non-null entry wins.
			if val.IsArray() {
				for _, t := range val.Array() {
					if t.String() != "null" {
						s.Type = t.String()
						break
					}
				}
			} else {
				s.Type = val.String()
			}
		case "format":
			s.Format = val.String()
		case "description":
			s.Description = val.String()
		case "enum":
			val.ForEach(func(_, e gjson.Result) bool {
				s.Enum = append(s.Enum, json.RawMessage(e.Raw))
				return true
			})
		case "properties":
			s.HasProperties = true
			val.ForEach(func(name, ps gjson.Result) bool {
				s.Properties = append(s.Properties, Property{Name: name.String(), Schema: parseSchema(ps)})
				return true
			})
		case "required":
			if val.IsArray() {
				for _, req := range val.Array() {
					s.Required = append(s.Required, req.String())
				}
			}
		case "items":
			s.Items = parseSchema(val)
		}
		return true
	})
	s.Empty = keys == 0
	return s
}
