package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tdevere/DevOpsApiClients/internal/infer"
	"github.com/tdevere/DevOpsApiClients/internal/opdef"
	"github.com/tdevere/DevOpsApiClients/internal/tmplutil"
)

var (
	pathPlaceholder    = regexp.MustCompile(`\{([^}]+)\}`)
	messagePlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Values the generated tests configure.
const (
	TestOrganization = "testorg"
	TestProject      = "testproject"
	TestValue        = "test-value"
)

// Param locations.
const (
	InPath  = "path"
	InQuery = "query"
	InBody  = "body"
)

// paramView is a parameter with its per-language spellings.
type paramView struct {
	opdef.Param
	In string
	// Flag is the bash and Python command-line flag.
	Flag string
	// Var is the PowerShell parameter name.
	Var string
	// QueryKey is the query-string key for query parameters.
	QueryKey string
}

// view is the data every template is executed with.
type view struct {
	Def    *opdef.Definition
	Params []paramView

	HasBody  bool
	BodyKeys []string
	PyBody   string
	PSBody   string
	JQBody   string
	JQArgs   []string

	PyPath     string
	PSPath     string
	ShPath     string
	URLPattern string
	URLLike    string
	URLGrep    string

	MessageKeys []string
	ShMessage   string

	Fixture      string
	ErrorFixture string
	HasResponse  bool
	TestClass    string
	Marker       string
	TestOrg      string
	TestProject  string

	// Provenance names the definition file in generated clients.
	Provenance string
}

// Query returns the query parameters.
func (v *view) Query() []paramView {
	var out []paramView
	for _, p := range v.Params {
		if p.In == InQuery {
			out = append(out, p)
		}
	}
	return out
}

// Required returns the required parameters that have no default.
func (v *view) Required() []paramView {
	var out []paramView
	for _, p := range v.Params {
		if p.Required && p.Default == "" {
			out = append(out, p)
		}
	}
	return out
}

func newView(def *opdef.Definition) (*view, error) {
	v := &view{
		Def:          def,
		Fixture:      def.FixtureFilename(),
		ErrorFixture: def.ErrorFixtureFilename(),
		HasResponse:  def.SuccessStatus != 204,
		TestClass:    infer.Pascal(def.Operation),
		Marker:       infer.Snake(def.Domain),
		TestOrg:      TestOrganization,
		TestProject:  TestProject,
	}
	if def.Source != "" {
		v.Provenance = provenance(def.Source)
	}

	bodyParams := make(map[string]bool)
	for _, f := range def.BodyFields {
		src, err := opdef.ParseBodySource(f.Source)
		if err != nil {
			return nil, err
		}
		if src.Kind == opdef.SourceParam {
			bodyParams[src.Value] = true
		}
	}

	for _, p := range def.Params {
		pv := paramView{Param: p, Flag: p.CLIFlag, Var: p.PSName}
		if pv.Flag == "" {
			pv.Flag = "--" + strings.ReplaceAll(p.Name, "_", "-")
		}
		if pv.Var == "" {
			pv.Var = infer.Pascal(p.Name)
		}
		switch {
		case strings.Contains(def.URLPath, "{"+p.Name+"}"):
			pv.In = InPath
		case bodyParams[p.Name]:
			pv.In = InBody
		default:
			pv.In = InQuery
			pv.QueryKey = tmplutil.LowerCamel(p.Name)
		}
		v.Params = append(v.Params, pv)
	}

	if len(def.BodyFields) > 0 {
		skeleton, err := def.BodyTemplate()
		if err != nil {
			return nil, err
		}
		body := gjson.ParseBytes(skeleton)
		v.HasBody = true
		body.ForEach(func(key, _ gjson.Result) bool {
			v.BodyKeys = append(v.BodyKeys, key.String())
			return true
		})
		v.PyBody = pyValue(body, "")
		v.PSBody = psValue(body, "", v.psVar)
		v.JQBody = jqValue(body)
		v.JQArgs = jqArgs(body)
	}

	v.PyPath = renderPath(def.URLPath, pyLiteral, func(name string) string {
		return "{params['" + name + "']}"
	})
	v.PSPath = renderPath(def.URLPath, psLiteral, func(name string) string {
		return "$($" + v.psVar(name) + ")"
	})
	v.ShPath = renderPath(def.URLPath, shLiteral, func(name string) string {
		return "${arg_" + name + "}"
	})
	prefix := def.BaseHost + "/" + TestOrganization + "/"
	if def.ProjectScoped {
		prefix += TestProject + "/"
	}
	v.URLPattern = "^https://" + regexp.QuoteMeta(prefix) +
		renderPath(def.URLPath, regexp.QuoteMeta, func(string) string { return "[^/?]+" })
	v.URLLike = "https://" + prefix +
		renderPath(def.URLPath, identity, func(string) string { return "*" }) + "*"
	v.URLGrep = "https://" + prefix +
		renderPath(def.URLPath, identity, func(string) string { return TestValue })

	for _, m := range messagePlaceholder.FindAllStringSubmatch(def.OutputMessage, -1) {
		if !contains(v.MessageKeys, m[1]) {
			v.MessageKeys = append(v.MessageKeys, m[1])
		}
	}
	v.ShMessage = jqString(def.OutputMessage)
	return v, nil
}

func (v *view) psVar(name string) string {
	for _, p := range v.Params {
		if p.Name == name {
			return p.Var
		}
	}
	return infer.Pascal(name)
}

func contains(vals []string, s string) bool {
	for _, v := range vals {
		if v == s {
			return true
		}
	}
	return false
}

func identity(s string) string { return s }

// renderPath rewrites the literal runs and {placeholder} runs of a URL path.
func renderPath(path string, literal func(string) string, param func(string) string) string {
	var b strings.Builder
	last := 0
	for _, loc := range pathPlaceholder.FindAllStringSubmatchIndex(path, -1) {
		b.WriteString(literal(path[last:loc[0]]))
		b.WriteString(param(path[loc[2]:loc[3]]))
		last = loc[1]
	}
	b.WriteString(literal(path[last:]))
	return b.String()
}

// pyLiteral escapes text for the inside of a double-quoted Python f-string.
func pyLiteral(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "{", "{{", "}", "}}").Replace(s)
}

// psLiteral escapes text for the inside of a double-quoted PowerShell string.
func psLiteral(s string) string {
	return strings.NewReplacer("`", "``", `"`, "`\"", "$", "`$").Replace(s)
}

// shLiteral escapes text for the inside of a double-quoted shell word.
func shLiteral(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace(s)
}

func paramName(r gjson.Result) (string, bool) {
	if r.Type != gjson.String || !strings.HasPrefix(r.Str, opdef.BodyPlaceholder) {
		return "", false
	}
	return strings.TrimPrefix(r.Str, opdef.BodyPlaceholder), true
}

// pyValue renders a body skeleton node as a Python literal. Parameter
// values read from the params dict.
func pyValue(r gjson.Result, indent string) string {
	if name, ok := paramName(r); ok {
		return "params[" + tmplutil.PyRepr(name) + "]"
	}
	inner := indent + "    "
	switch {
	case r.IsObject():
		var b strings.Builder
		b.WriteString("{\n")
		r.ForEach(func(k, val gjson.Result) bool {
			fmt.Fprintf(&b, "%s%s: %s,\n", inner, tmplutil.PyRepr(k.String()), pyValue(val, inner))
			return true
		})
		b.WriteString(indent + "}")
		return b.String()
	case r.IsArray():
		var b strings.Builder
		b.WriteString("[\n")
		r.ForEach(func(_, val gjson.Result) bool {
			fmt.Fprintf(&b, "%s%s,\n", inner, pyValue(val, inner))
			return true
		})
		b.WriteString(indent + "]")
		return b.String()
	}
	return tmplutil.PyRepr(r.String())
}

// psValue renders a body skeleton node as a PowerShell hashtable literal.
func psValue(r gjson.Result, indent string, psVar func(string) string) string {
	if name, ok := paramName(r); ok {
		return "$" + psVar(name)
	}
	inner := indent + "    "
	switch {
	case r.IsObject():
		var b strings.Builder
		b.WriteString("@{\n")
		r.ForEach(func(k, val gjson.Result) bool {
			fmt.Fprintf(&b, "%s%s = %s\n", inner, tmplutil.PSString(k.String()), psValue(val, inner, psVar))
			return true
		})
		b.WriteString(indent + "}")
		return b.String()
	case r.IsArray():
		var items []string
		r.ForEach(func(_, val gjson.Result) bool {
			items = append(items, psValue(val, inner, psVar))
			return true
		})
		return "@(" + strings.Join(items, ", ") + ")"
	}
	return tmplutil.PSString(r.String())
}

// jqValue renders a body skeleton node as a jq constructor. Parameter
// values are jq variables bound with --arg.
func jqValue(r gjson.Result) string {
	if name, ok := paramName(r); ok {
		return "$" + name
	}
	switch {
	case r.IsObject():
		var parts []string
		r.ForEach(func(k, val gjson.Result) bool {
			parts = append(parts, jqLiteral(k.String())+": "+jqValue(val))
			return true
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case r.IsArray():
		var parts []string
		r.ForEach(func(_, val gjson.Result) bool {
			parts = append(parts, jqValue(val))
			return true
		})
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return jqLiteral(r.String())
}

// jqArgs lists the parameters a jq body constructor binds, sorted.
func jqArgs(r gjson.Result) []string {
	seen := make(map[string]bool)
	var walk func(gjson.Result)
	walk = func(n gjson.Result) {
		if name, ok := paramName(n); ok {
			seen[name] = true
			return
		}
		n.ForEach(func(_, val gjson.Result) bool {
			walk(val)
			return true
		})
	}
	walk(r)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var jqEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func jqLiteral(s string) string {
	return `"` + jqEscaper.Replace(s) + `"`
}

// jqString renders s as a jq string. {key} placeholders become
// interpolations of the input's key.
func jqString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	last := 0
	for _, loc := range messagePlaceholder.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(jqEscaper.Replace(s[last:loc[0]]))
		fmt.Fprintf(&b, `\(.%s // "N/A")`, s[loc[2]:loc[3]])
		last = loc[1]
	}
	b.WriteString(jqEscaper.Replace(s[last:]))
	b.WriteByte('"')
	return b.String()
}
