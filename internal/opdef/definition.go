// Package opdef is the canonical model of one API operation: the single
// source of truth every generated client is rendered from.
package opdef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/fixture"
)

// Format selects the serialization of a definition document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// OutputMode is how a generated client presents the response.
type OutputMode string

const (
	OutputJSON    OutputMode = "json"
	OutputTable   OutputMode = "table"
	OutputMessage OutputMode = "message"
)

const (
	DefaultBaseHost      = "dev.azure.com"
	DefaultListKey       = "value"
	DefaultSuccessStatus = 200
)

// Param is one user-supplied input of an operation.
type Param struct {
	Name        string `json:"name" yaml:"name"`
	EnvVar      string `json:"env_var" yaml:"env_var"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
	CLIFlag     string `json:"cli_flag,omitempty" yaml:"cli_flag,omitempty"`
	PSName      string `json:"ps_name,omitempty" yaml:"ps_name,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
}

// UnmarshalJSON applies the required=true default and accepts non-string
// scalar defaults.
func (p *Param) UnmarshalJSON(b []byte) error {
	type plain Param
	aux := struct {
		*plain
		Default scalar `json:"default"`
	}{plain: (*plain)(p)}
	p.Required = true
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Default = string(aux.Default)
	return nil
}

// BodyField maps one request-body path to its value source.
type BodyField struct {
	JSONPath    string `json:"json_path" yaml:"json_path"`
	Source      string `json:"source" yaml:"source"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Definition is the complete description of one API operation.
type Definition struct {
	Domain    string `json:"domain" yaml:"domain"`
	Resource  string `json:"resource" yaml:"resource"`
	Operation string `json:"operation" yaml:"operation"`
	PSVerb    string `json:"ps_verb" yaml:"ps_verb"`
	PSNoun    string `json:"ps_noun" yaml:"ps_noun"`

	HTTPMethod string `json:"http_method" yaml:"http_method"`
	URLPath    string `json:"url_path" yaml:"url_path"`
	APIVersion string `json:"api_version" yaml:"api_version"`
	DocsURL    string `json:"docs_url" yaml:"docs_url"`

	Synopsis    string `json:"synopsis" yaml:"synopsis"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Params           []Param     `json:"params,omitempty" yaml:"params,omitempty"`
	BodyFields       []BodyField `json:"body_fields,omitempty" yaml:"body_fields,omitempty"`
	VersionGuardKeys []string    `json:"version_guard_keys,omitempty" yaml:"version_guard_keys,omitempty"`
	SuccessStatus    int         `json:"success_status" yaml:"success_status"`

	OutputMode    OutputMode `json:"output_mode" yaml:"output_mode"`
	OutputMessage string     `json:"output_message,omitempty" yaml:"output_message,omitempty"`
	TableColumns  []string   `json:"table_columns,omitempty" yaml:"table_columns,omitempty"`
	ListKey       string     `json:"list_key" yaml:"list_key"`

	FixtureSuccess  *fixture.Value `json:"fixture_success,omitempty" yaml:"fixture_success,omitempty"`
	FixtureError404 *fixture.Value `json:"fixture_error_404,omitempty" yaml:"fixture_error_404,omitempty"`

	ProjectScoped bool   `json:"project_scoped" yaml:"project_scoped"`
	BaseHost      string `json:"base_host" yaml:"base_host"`

	// Source is the base name of the file the definition was loaded from.
	// It is empty for parsed documents and never serialized.
	Source string `json:"-" yaml:"-"`
}

// UnmarshalJSON applies document defaults before decoding.
func (d *Definition) UnmarshalJSON(b []byte) error {
	type plain Definition
	aux := struct {
		*plain
		APIVersion scalar `json:"api_version"`
	}{plain: (*plain)(d)}
	d.SuccessStatus = DefaultSuccessStatus
	d.OutputMode = OutputJSON
	d.ListKey = DefaultListKey
	d.BaseHost = DefaultBaseHost
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.APIVersion = string(aux.APIVersion)
	return nil
}

// scalar decodes any JSON scalar into its textual form.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	switch r.Type {
	case gjson.Null:
		*s = ""
	case gjson.String:
		*s = scalar(r.String())
	case gjson.JSON:
		return fmt.Errorf("expected a scalar, got %s", r.Raw)
	default:
		*s = scalar(r.Raw)
	}
	return nil
}

// Load reads a definition file. .yaml and .yml files are decoded as YAML,
// everything else as JSON.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.Wrap(err, apierrors.KindDefinitionNotFound, "definition file not found").WithDetails(path)
		}
		return nil, apierrors.Wrap(err, apierrors.KindDefinitionNotFound, "definition file unreadable").WithDetails(path)
	}
	def, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Source = filepath.Base(path)
	return def, nil
}

// Parse decodes and validates a definition document.
func Parse(data []byte, format Format) (*Definition, error) {
	doc := data
	if format == FormatYAML {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, apierrors.Wrap(err, apierrors.KindMalformedDefinition, "malformed definition")
		}
		doc = converted
	}

	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	var def Definition
	if err := json.Unmarshal(doc, &def); err != nil {
		return nil, apierrors.Wrap(err, apierrors.KindMalformedDefinition, "malformed definition")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Marshal encodes the definition. Parse(Marshal(f), f) yields an equal
// definition.
func (d *Definition) Marshal(format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(d)
	}
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// PSScriptName is the PowerShell script name, Verb-Noun.ps1.
func (d *Definition) PSScriptName() string { return d.PSVerb + "-" + d.PSNoun + ".ps1" }

// PSTestName is the Pester test file name.
func (d *Definition) PSTestName() string { return d.PSVerb + "-" + d.PSNoun + ".Tests.ps1" }

func (d *Definition) BashScriptName() string   { return d.Operation + ".sh" }
func (d *Definition) PythonScriptName() string { return d.Operation + ".py" }

// OutputDir is the directory of the operation relative to the output root.
func (d *Definition) OutputDir() string { return d.Domain + "/" + d.Resource }

// FixtureFilename names the success fixture, e.g. list_teams_200.json.
func (d *Definition) FixtureFilename() string {
	return d.Operation + "_" + strconv.Itoa(d.SuccessStatus) + ".json"
}

// ErrorFixtureFilename names the not-found fixture.
func (d *Definition) ErrorFixtureFilename() string { return d.Operation + "_404.json" }

// IsMutating reports whether the method carries a request body.
func (d *Definition) IsMutating() bool {
	return IsMutatingMethod(d.HTTPMethod)
}

// IsMutatingMethod reports whether method is POST, PUT or PATCH.
func IsMutatingMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// Param returns the named parameter.
func (d *Definition) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// BodyPlaceholder marks a parameter-bound value in BodyTemplate output.
const BodyPlaceholder = "\x00param:"

// BodyTemplate returns the request body as JSON. Literal sources appear as
// strings; parameter sources appear as BodyPlaceholder+name.
func (d *Definition) BodyTemplate() ([]byte, error) {
	body := []byte(`{}`)
	for _, f := range d.BodyFields {
		src, err := ParseBodySource(f.Source)
		if err != nil {
			return nil, err
		}
		val := src.Value
		if src.Kind == SourceParam {
			val = BodyPlaceholder + src.Value
		}
		body, err = sjson.SetBytes(body, f.JSONPath, val)
		if err != nil {
			return nil, fmt.Errorf("body field %s: %w", f.JSONPath, err)
		}
	}
	return body, nil
}

// SourceKind is the kind of a body field source.
type SourceKind string

const (
	SourceParam   SourceKind = "param"
	SourceLiteral SourceKind = "literal"
)

// BodySource is the parsed form of "param:<name>" or "literal:<value>".
type BodySource struct {
	Kind  SourceKind
	Value string
}

// ParseBodySource parses a body field source string.
func ParseBodySource(s string) (BodySource, error) {
	kind, value, ok := strings.Cut(s, ":")
	if ok {
		switch SourceKind(kind) {
		case SourceParam:
			if value != "" {
				return BodySource{Kind: SourceParam, Value: value}, nil
			}
		case SourceLiteral:
			return BodySource{Kind: SourceLiteral, Value: value}, nil
		}
	}
	return BodySource{}, fmt.Errorf("source %q must be param:<name> or literal:<value>", s)
}
