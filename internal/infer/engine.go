// Package infer derives operation definitions from specification documents.
package infer

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/fixture"
	"github.com/tdevere/DevOpsApiClients/internal/opdef"
	"github.com/tdevere/DevOpsApiClients/internal/specdoc"
)

// methodOrder is the order operations under one path are visited in.
// Other methods are ignored.
var methodOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// Candidate is an inferred definition and the file name it is written to.
type Candidate struct {
	FileName   string
	Definition *opdef.Definition
}

// Diagnostic records an endpoint that produced no candidate.
type Diagnostic struct {
	Path        string
	Method      string
	OperationID string
	Err         error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s (%s): %v", d.Method, d.Path, d.OperationID, d.Err)
}

// Result is the outcome of inferring one domain.
type Result struct {
	Candidates []Candidate
	// Skipped holds malformed or incomplete endpoints.
	Skipped []Diagnostic
	// Collisions holds endpoints dropped because an earlier one already
	// produced the same operation name.
	Collisions []Diagnostic
}

// Engine applies a Policy to specification documents.
type Engine struct {
	policy Policy
	logger *zap.Logger
}

// NewEngine creates an inference engine.
func NewEngine(policy Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{policy: policy, logger: logger}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// InferDocument infers every operation of one document.
func (e *Engine) InferDocument(domain string, doc *specdoc.Document) Result {
	return e.InferDomain(domain, doc)
}

// InferDomain infers every operation of a domain's documents. When two
// endpoints produce the same operation name the first one wins.
func (e *Engine) InferDomain(domain string, docs ...*specdoc.Document) Result {
	var res Result
	seen := make(map[string]bool)
	log := e.logger.With(zap.String("domain", domain))

	for _, doc := range docs {
		for _, item := range doc.Paths {
			if item.Err != nil {
				log.Error("skipping malformed path", zap.String("path", item.Path), zap.Error(item.Err))
				res.Skipped = append(res.Skipped, Diagnostic{Path: item.Path, Err: item.Err})
				continue
			}
			for _, method := range methodOrder {
				for _, op := range item.Operations {
					if op.Method != method {
						continue
					}
					diag := Diagnostic{Path: item.Path, Method: method, OperationID: op.OperationID}

					def, err := e.InferOperation(domain, doc, item.Path, op)
					if err != nil {
						log.Error("skipping endpoint",
							zap.String("path", item.Path),
							zap.String("method", method),
							zap.String("operation_id", op.OperationID),
							zap.Error(err))
						diag.Err = err
						res.Skipped = append(res.Skipped, diag)
						continue
					}
					if def == nil {
						continue
					}

					if seen[def.Operation] {
						diag.Err = apierrors.New(apierrors.KindNameCollision, "duplicate operation name").WithDetails(def.Operation)
						log.Debug("dropping duplicate operation", zap.String("operation", def.Operation))
						res.Collisions = append(res.Collisions, diag)
						continue
					}
					seen[def.Operation] = true
					res.Candidates = append(res.Candidates, Candidate{
						FileName:   FileName(domain, def.Operation),
						Definition: def,
					})
				}
			}
		}
	}
	return res
}

// InferOperation infers the definition of one endpoint. It returns nil, nil
// for endpoints without an operationId. Every returned definition passes
// opdef validation.
func (e *Engine) InferOperation(domain string, doc *specdoc.Document, path string, op specdoc.Operation) (*opdef.Definition, error) {
	if op.Err != nil {
		return nil, op.Err
	}
	if op.OperationID == "" {
		return nil, nil
	}

	p := e.policy
	resourceRaw, action := SplitOperationID(op.OperationID)
	urlPath := NormalizePath(path)

	def := &opdef.Definition{
		Domain:        p.DomainDir(domain),
		Resource:      Pascal(strings.ReplaceAll(resourceRaw, " ", "_")),
		Operation:     OperationName(op.Method, action, resourceRaw),
		PSVerb:        PSVerb(op.Method, action),
		PSNoun:        PSNoun(resourceRaw, action),
		HTTPMethod:    op.Method,
		URLPath:       urlPath,
		APIVersion:    doc.APIVersion(),
		DocsURL:       DocsURL(p, domain, resourceRaw, action),
		Synopsis:      Synopsis(op.Description, action, resourceRaw),
		ProjectScoped: IsProjectScoped(path),
		ListKey:       opdef.DefaultListKey,
		BaseHost:      doc.Host,
	}
	if def.BaseHost == "" {
		def.BaseHost = p.DefaultHost
	}

	def.Params = e.params(op, urlPath)
	if opdef.IsMutatingMethod(op.Method) {
		def.BodyFields, def.Params = e.bodyFields(doc, op, def.Params)
	}

	def.SuccessStatus = SuccessStatus(op.Responses)
	var respSchema *specdoc.Schema
	if r, ok := op.Response(strconv.Itoa(def.SuccessStatus)); ok {
		respSchema = r.Schema
	}
	resolved := doc.Resolve(respSchema)

	_, hasValue := resolved.Property("value")
	isList := hasValue || (respSchema != nil && respSchema.Type == "array")

	def.VersionGuardKeys = GuardKeys(resolved.PropertyNames(), p.MaxGuardKeys)
	if isList && hasValue {
		value, _ := resolved.Property("value")
		if value != nil && value.Items != nil {
			def.TableColumns = TableColumns(doc.Resolve(value.Items).PropertyNames(), p.MaxTableColumns)
		}
	}
	def.OutputMode = OutputMode(op.Method, action, isList)
	if def.OutputMode == opdef.OutputTable && len(def.TableColumns) == 0 {
		def.OutputMode = opdef.OutputJSON
	}

	var sample *fixture.Value
	if !respSchema.IsZero() {
		v := fixture.Synthesize(doc, respSchema, p.FixtureBounds())
		if !v.IsEmptyObject() {
			sample = &v
		}
	}
	def.OutputMessage = OutputMessage(def.OutputMode, def.SuccessStatus, resourceRaw, func(key string) bool {
		if sample == nil || !sample.IsObject() {
			return false
		}
		_, ok := sample.Object().Get(key)
		return ok
	})
	if sample == nil {
		ok := fixture.Obj(fixture.NewObject())
		ok.Object().Set("status", fixture.String("ok"))
		sample = &ok
	}
	def.FixtureSuccess = sample
	def.FixtureError404 = errorFixture(resourceRaw)

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (e *Engine) params(op specdoc.Operation, urlPath string) []opdef.Param {
	var params []opdef.Param
	for _, sp := range op.Parameters {
		if sp.Name == "" || (sp.In != "path" && sp.In != "query") {
			continue
		}
		env := EnvVar(e.policy, sp.Name)
		if env == SkipParam {
			continue
		}
		if sp.In == "query" && !sp.RequiredOr(false) {
			continue
		}
		name := Snake(sp.Name)
		if sp.In == "path" && !strings.Contains(urlPath, "{"+name+"}") {
			continue
		}
		desc := sp.Description
		if strings.TrimSpace(desc) == "" {
			desc = sp.Name
		}
		params = append(params, opdef.Param{
			Name:        name,
			EnvVar:      env,
			Description: SafeText(desc, 100),
			Required:    sp.RequiredOr(sp.In == "path"),
		})
	}
	return params
}

// bodyFields maps the leading properties of the first body parameter to
// body fields, adding a parameter for each one not already declared.
func (e *Engine) bodyFields(doc *specdoc.Document, op specdoc.Operation, params []opdef.Param) ([]opdef.BodyField, []opdef.Param) {
	var fields []opdef.BodyField
	for _, sp := range op.Parameters {
		if sp.In != "body" {
			continue
		}
		body := doc.Resolve(sp.Schema)
		for i, prop := range body.Properties {
			if i >= e.policy.MaxBodyFields {
				break
			}
			if strings.HasPrefix(prop.Name, "_") {
				continue
			}
			env := EnvVar(e.policy, prop.Name)
			if env == SkipParam {
				continue
			}
			name := Snake(prop.Name)
			desc := prop.Name
			if prop.Schema != nil && strings.TrimSpace(prop.Schema.Description) != "" {
				desc = prop.Schema.Description
			}
			fields = append(fields, opdef.BodyField{
				JSONPath:    prop.Name,
				Source:      string(opdef.SourceParam) + ":" + name,
				Description: SafeText(desc, 80),
			})
			if hasParam(params, name) {
				continue
			}
			params = append(params, opdef.Param{
				Name:        name,
				EnvVar:      env,
				Description: SafeText(desc, 100),
				Required:    body.IsRequired(prop.Name),
				CLIFlag:     "--" + strings.ReplaceAll(name, "_", "-"),
			})
		}
		break
	}
	return fields, params
}

func hasParam(params []opdef.Param, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func errorFixture(resource string) *fixture.Value {
	obj := fixture.NewObject()
	obj.Set("message", fixture.String(resource+" not found"))
	obj.Set("typeKey", fixture.String(Pascal(resource)+"NotFoundException"))
	obj.Set("errorCode", fixture.Int(0))
	v := fixture.Obj(obj)
	return &v
}
