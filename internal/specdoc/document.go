// Package specdoc loads Swagger 2.0 style specification documents into an
// index of named schema nodes.
package specdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tidwall/gjson"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
)

const (
	DefaultHost       = "dev.azure.com"
	DefaultAPIVersion = "7.2"
)

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	versionSuffix = regexp.MustCompile(`-.*$`)
)

var httpMethods = map[string]bool{
	"GET": true, "PUT": true, "POST": true, "DELETE": true,
	"OPTIONS": true, "HEAD": true, "PATCH": true, "TRACE": true,
}

// Document is a loaded specification.
type Document struct {
	Host    string
	Version string // raw info.version
	Paths   []PathItem
	// Converted is set when the source was OpenAPI 3 and was down-converted.
	Converted bool

	definitions map[string]*Schema
	defOrder    []string
}

// PathItem is one entry of the paths table in document order.
type PathItem struct {
	Path       string
	Operations []Operation
	Err        error
}

// Operation is one method entry under a path. Err is set when the entry is
// structurally malformed; the remaining fields are then best effort.
type Operation struct {
	Method      string // upper case
	OperationID string
	Description string
	Parameters  []Parameter
	Responses   []Response
	Err         error
}

// Parameter is one operation parameter.
type Parameter struct {
	Name        string
	In          string
	Description string
	Required    *bool
	Schema      *Schema
}

// RequiredOr returns the declared required flag, or def when absent.
func (p Parameter) RequiredOr(def bool) bool {
	if p.Required == nil {
		return def
	}
	return *p.Required
}

// Response is one entry of an operation's responses table.
type Response struct {
	Status      string
	Description string
	Schema      *Schema
}

// Response returns the response declared for status.
func (o Operation) Response(status string) (Response, bool) {
	for _, r := range o.Responses {
		if r.Status == status {
			return r, true
		}
	}
	return Response{}, false
}

// LoadFile reads and loads a specification file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read specification %s: %w", path, err)
	}
	doc, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// StripBOM removes a leading UTF-8 byte-order mark.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// Load parses specification bytes. A leading byte-order mark is ignored.
// OpenAPI 3 documents are down-converted to Swagger 2.0 first.
func Load(data []byte) (*Document, error) {
	data = StripBOM(data)
	if !gjson.ValidBytes(data) {
		return nil, apierrors.New(apierrors.KindInvalidSpecification, "invalid specification").WithDetails("malformed JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, apierrors.New(apierrors.KindInvalidSpecification, "invalid specification").WithDetails("top level is not an object")
	}

	converted := false
	if strings.HasPrefix(root.Get("openapi").String(), "3") {
		down, err := downConvert(data)
		if err != nil {
			return nil, apierrors.Wrap(err, apierrors.KindInvalidSpecification, "openapi 3 conversion failed")
		}
		root = gjson.ParseBytes(down)
		converted = true
	}

	doc := &Document{
		Host:        DefaultHost,
		Converted:   converted,
		definitions: make(map[string]*Schema),
	}
	if h := root.Get("host"); h.Exists() && h.String() != "" {
		doc.Host = h.String()
	}
	doc.Version = root.Get("info.version").String()

	root.Get("definitions").ForEach(func(name, val gjson.Result) bool {
		n := name.String()
		if _, dup := doc.definitions[n]; !dup {
			doc.defOrder = append(doc.defOrder, n)
		}
		doc.definitions[n] = parseSchema(val)
		return true
	})

	root.Get("paths").ForEach(func(path, val gjson.Result) bool {
		doc.Paths = append(doc.Paths, parsePathItem(path.String(), val))
		return true
	})

	return doc, nil
}

func downConvert(data []byte) ([]byte, error) {
	loader := openapi3.NewLoader()
	doc3, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	doc2, err := openapi2conv.FromV3(doc3)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc2)
}

func parsePathItem(path string, val gjson.Result) PathItem {
	item := PathItem{Path: path}
	if !val.IsObject() {
		item.Err = malformed("path %s: entry is not an object", path)
		return item
	}
	val.ForEach(func(key, opVal gjson.Result) bool {
		method := strings.ToUpper(key.String())
		if !httpMethods[method] {
			return true
		}
		item.Operations = append(item.Operations, parseOperation(path, method, opVal))
		return true
	})
	return item
}

func parseOperation(path, method string, val gjson.Result) Operation {
	op := Operation{Method: method}
	if !val.IsObject() {
		op.Err = malformed("%s %s: operation is not an object", method, path)
		return op
	}
	op.OperationID = strings.TrimSpace(val.Get("operationId").String())
	op.Description = val.Get("description").String()

	if params := val.Get("parameters"); params.Exists() {
		if !params.IsArray() {
			op.Err = malformed("%s %s: parameters is not an array", method, path)
		}
		params.ForEach(func(_, p gjson.Result) bool {
			if !p.IsObject() {
				op.Err = malformed("%s %s: parameter is not an object", method, path)
				return true
			}
			param := Parameter{
				Name:        p.Get("name").String(),
				In:          p.Get("in").String(),
				Description: p.Get("description").String(),
			}
			if req := p.Get("required"); req.Exists() {
				b := req.Bool()
				param.Required = &b
			}
			if s := p.Get("schema"); s.Exists() {
				param.Schema = parseSchema(s)
			}
			op.Parameters = append(op.Parameters, param)
			return true
		})
	}

	if resps := val.Get("responses"); resps.Exists() {
		if !resps.IsObject() {
			op.Err = malformed("%s %s: responses is not an object", method, path)
		}
		resps.ForEach(func(status, r gjson.Result) bool {
			resp := Response{Status: status.String(), Description: r.Get("description").String()}
			if s := r.Get("schema"); s.Exists() {
				resp.Schema = parseSchema(s)
			}
			op.Responses = append(op.Responses, resp)
			return true
		})
	}
	return op
}

func malformed(format string, args ...any) error {
	return apierrors.New(apierrors.KindInvalidSpecification, "malformed endpoint").WithDetails(fmt.Sprintf(format, args...))
}

// APIVersion returns info.version with any pre-release suffix removed.
func (d *Document) APIVersion() string {
	v := versionSuffix.ReplaceAllString(d.Version, "")
	if v == "" {
		return DefaultAPIVersion
	}
	return v
}

// Definition returns the named schema.
func (d *Document) Definition(name string) (*Schema, bool) {
	s, ok := d.definitions[name]
	return s, ok
}

// DefinitionNames returns definition names in document order.
func (d *Document) DefinitionNames() []string {
	return append([]string(nil), d.defOrder...)
}

// PathNames returns path keys in document order.
func (d *Document) PathNames() []string {
	names := make([]string, 0, len(d.Paths))
	for _, p := range d.Paths {
		names = append(names, p.Path)
	}
	return names
}

// ResolveReference dereferences one level of #/definitions/<Name>. Unknown
// or malformed references resolve to an empty schema.
func (d *Document) ResolveReference(ref string) *Schema {
	if name := RefName(ref); name != "" {
		if s, ok := d.definitions[name]; ok {
			return s
		}
	}
	return &Schema{Empty: true}
}

// Resolve returns s itself, or its target when s is a reference.
func (d *Document) Resolve(s *Schema) *Schema {
	if s == nil {
		return &Schema{Empty: true}
	}
	if s.Ref != "" {
		return d.ResolveReference(s.Ref)
	}
	return s
}
