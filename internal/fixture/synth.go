package fixture

import (
	"strings"

	"github.com/tdevere/DevOpsApiClients/internal/specdoc"
)

const (
	SampleDateTime = "2026-01-15T10:30:00Z"
	SampleUUID     = "a1b2c3d4-e5f6-7890-abcd-ef1234567890"
	SampleString   = "sample-string"
)

// Resolver dereferences schema references one level at a time.
type Resolver interface {
	Resolve(s *specdoc.Schema) *specdoc.Schema
}

// Bounds caps the size of synthesized fixtures.
type Bounds struct {
	MaxDepth      int
	MaxProperties int
}

// DefaultBounds keeps fixtures small enough to review by hand.
var DefaultBounds = Bounds{MaxDepth: 3, MaxProperties: 8}

// Synthesize builds a representative sample value for schema. Recursion is
// cut off past MaxDepth, so self-referential schemas terminate with {}.
func Synthesize(r Resolver, schema *specdoc.Schema, b Bounds) Value {
	return synth(r, schema, b, 0)
}

func synth(r Resolver, s *specdoc.Schema, b Bounds, depth int) Value {
	if depth > b.MaxDepth || s == nil {
		return Obj(NewObject())
	}
	if s.Ref != "" {
		s = r.Resolve(s)
		if s.IsZero() {
			return Obj(NewObject())
		}
	}

	typ := s.Type
	if typ == "" {
		typ = "object"
	}

	switch typ {
	case "string":
		switch s.Format {
		case "date-time":
			return String(SampleDateTime)
		case "uuid":
			return String(SampleUUID)
		}
		if len(s.Enum) > 0 {
			if v, err := Parse(s.Enum[0]); err == nil {
				return v
			}
		}
		return String(SampleString)
	case "integer":
		return Int(1)
	case "number":
		return Float(1.0)
	case "boolean":
		return Bool(true)
	case "array":
		items := s.Items
		if items == nil {
			items = &specdoc.Schema{Empty: true}
		}
		return Array(synth(r, items, b, depth+1))
	}

	if typ == "object" || s.HasProperties {
		obj := NewObject()
		for i, p := range s.Properties {
			if i >= b.MaxProperties {
				break
			}
			if strings.HasPrefix(p.Name, "_") {
				continue
			}
			obj.Set(p.Name, synth(r, p.Schema, b, depth+1))
		}
		return Obj(obj)
	}
	return Obj(NewObject())
}
