package opdef

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
)

//go:embed definition.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

var (
	operationPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

	validMethods = map[string]bool{
		"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
	}
	validModes = map[OutputMode]bool{
		OutputJSON: true, OutputTable: true, OutputMessage: true,
	}
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc interface{}
		if err := json.Unmarshal(schemaJSON, &doc); err != nil {
			schemaErr = fmt.Errorf("failed to parse definition schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("definition.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		schema, schemaErr = c.Compile("definition.schema.json")
	})
	return schema, schemaErr
}

// checkSchema validates the document shape before decoding.
func checkSchema(doc []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	var inst interface{}
	if err := json.Unmarshal(doc, &inst); err != nil {
		return apierrors.Wrap(err, apierrors.KindMalformedDefinition, "malformed definition")
	}
	if err := sch.Validate(inst); err != nil {
		return apierrors.New(apierrors.KindMalformedDefinition, "malformed definition").WithDetails(flatten(err.Error()))
	}
	return nil
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func malformed(format string, args ...any) error {
	return apierrors.New(apierrors.KindMalformedDefinition, "malformed definition").WithDetails(fmt.Sprintf(format, args...))
}

// Validate checks the structural invariants of a definition.
func (d *Definition) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"domain", d.Domain},
		{"resource", d.Resource},
		{"operation", d.Operation},
		{"ps_verb", d.PSVerb},
		{"ps_noun", d.PSNoun},
		{"http_method", d.HTTPMethod},
		{"url_path", d.URLPath},
		{"api_version", d.APIVersion},
		{"docs_url", d.DocsURL},
		{"synopsis", d.Synopsis},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return malformed("field '%s' is required", r.field)
		}
	}

	if !validMethods[d.HTTPMethod] {
		return malformed("unknown http_method %q", d.HTTPMethod)
	}
	if !operationPattern.MatchString(d.Operation) {
		return malformed("operation %q must be lowercase and underscore-delimited", d.Operation)
	}
	if d.SuccessStatus < 100 || d.SuccessStatus > 599 {
		return malformed("success_status %d is not an HTTP status", d.SuccessStatus)
	}

	seen := make(map[string]bool, len(d.Params))
	for i, p := range d.Params {
		if p.Name == "" {
			return malformed("params[%d]: name is required", i)
		}
		if p.EnvVar == "" {
			return malformed("param %s: env_var is required", p.Name)
		}
		if seen[p.Name] {
			return malformed("duplicate param name %q", p.Name)
		}
		seen[p.Name] = true
	}

	if d.IsMutating() && len(d.BodyFields) == 0 {
		return malformed("%s operation %s has no body_fields", d.HTTPMethod, d.Operation)
	}
	for _, f := range d.BodyFields {
		if f.JSONPath == "" {
			return malformed("body field json_path is required")
		}
		src, err := ParseBodySource(f.Source)
		if err != nil {
			return malformed("body field %s: %v", f.JSONPath, err)
		}
		if src.Kind == SourceParam && !seen[src.Value] {
			return malformed("body field %s: source names undeclared param %q", f.JSONPath, src.Value)
		}
	}

	if !validModes[d.OutputMode] {
		return malformed("unknown output_mode %q", d.OutputMode)
	}
	if d.OutputMode == OutputTable && len(d.TableColumns) == 0 {
		return malformed("output_mode table requires table_columns")
	}
	if d.ListKey == "" {
		return malformed("list_key must not be empty")
	}

	return nil
}
