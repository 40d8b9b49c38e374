package infer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tdevere/DevOpsApiClients/internal/opdef"
	"github.com/tdevere/DevOpsApiClients/internal/specdoc"
)

var (
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	camelBoundary   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	pascalSplit     = regexp.MustCompile(`[_\-. ]`)
	leadingVerb     = regexp.MustCompile(`^(get|list|create|update|delete|add|remove|set|query|run|queue|search)\s*`)
	underscores     = regexp.MustCompile(`_+`)
	nonIdentifier   = regexp.MustCompile(`[^a-z0-9_]`)
	fileUnsafe      = regexp.MustCompile(`[^a-z0-9_.]`)
	placeholder     = regexp.MustCompile(`\{([^}]+)\}`)
	slashes         = regexp.MustCompile(`//+`)
)

// Snake converts camelCase, PascalCase and spaced names to snake_case.
func Snake(name string) string {
	s := acronymBoundary.ReplaceAllString(name, "${1}_${2}")
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	return strings.NewReplacer("-", "_", ".", "_", "$", "", " ", "_").Replace(strings.ToLower(s))
}

// Pascal converts snake_case, kebab-case and spaced names to PascalCase.
// Existing inner capitals are kept.
func Pascal(name string) string {
	var b strings.Builder
	for _, w := range pascalSplit.Split(name, -1) {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(w[size:])
	}
	return b.String()
}

// EnvVar maps a raw parameter name to its environment variable, or
// SkipParam when the parameter is supplied structurally.
func EnvVar(p Policy, name string) string {
	if env, ok := p.ParamEnvOverrides[name]; ok {
		return env
	}
	return strings.ToUpper(Snake(name))
}

// SafeText flattens whitespace and strips characters that break string
// literals in generated code, truncating to max runes.
func SafeText(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.NewReplacer(`"`, "'", `\`, "/", "`", "'", "$", "", "!", "").Replace(text)
	if utf8.RuneCountInString(text) > max {
		runes := []rune(text)
		text = string(runes[:max-3]) + "..."
	}
	return text
}

// SplitOperationID splits "Pull Requests_Get Pull Request" into resource
// and action on the first underscore. Without a separator both are the id.
func SplitOperationID(id string) (resource, action string) {
	if before, after, ok := strings.Cut(id, "_"); ok {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	return id, id
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// DetectVerb picks the operation verb from the action phrase by ordered
// keyword search, falling back to the HTTP method.
func DetectVerb(method, action string) string {
	a := strings.ToLower(action)
	switch {
	case containsAny(a, "list", "get all"):
		return "list"
	case strings.Contains(a, "get"):
		return "get"
	case containsAny(a, "create", "add"):
		return "create"
	case strings.Contains(a, "update"):
		return "update"
	case containsAny(a, "delete", "remove"):
		return "delete"
	case containsAny(a, "query", "search"):
		return "query"
	case containsAny(a, "run", "queue"):
		return "run"
	case strings.Contains(a, "set"):
		return "set"
	}
	switch method {
	case "GET":
		return "get"
	case "POST":
		return "create"
	case "PUT":
		return "set"
	case "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	case "HEAD":
		return "head"
	}
	return "call"
}

// OperationName builds the snake_case operation name: the detected verb
// followed by the action with its leading verb word removed, or by the
// resource when nothing remains.
func OperationName(method, action, resource string) string {
	verb := DetectVerb(method, action)
	rest := strings.TrimSpace(leadingVerb.ReplaceAllString(strings.ToLower(action), ""))
	if rest == "" {
		rest = Snake(resource)
	} else {
		rest = Snake(strings.ReplaceAll(rest, " ", "_"))
	}

	name := nonIdentifier.ReplaceAllString(verb+"_"+rest, "_")
	name = strings.Trim(underscores.ReplaceAllString(name, "_"), "_")

	parts := strings.Split(name, "_")
	deduped := parts[:1]
	for _, p := range parts[1:] {
		if p != deduped[len(deduped)-1] {
			deduped = append(deduped, p)
		}
	}
	return strings.Join(deduped, "_")
}

var methodPSVerb = map[string]string{
	"GET":     "Get",
	"POST":    "New",
	"PUT":     "Set",
	"PATCH":   "Update",
	"DELETE":  "Remove",
	"HEAD":    "Test",
	"OPTIONS": "Get",
}

// PSVerb maps the action to an approved PowerShell verb.
func PSVerb(method, action string) string {
	a := strings.ToLower(action)
	switch {
	case containsAny(a, "list", "get all"):
		return "Get"
	case strings.Contains(a, "create") && method == "POST":
		return "New"
	case containsAny(a, "delete", "remove"):
		return "Remove"
	case strings.Contains(a, "update"):
		return "Update"
	case strings.Contains(a, "set"):
		return "Set"
	case strings.Contains(a, "add"):
		return "Add"
	case containsAny(a, "query", "search"):
		return "Invoke"
	case containsAny(a, "run", "queue", "trigger"):
		return "Start"
	}
	if v, ok := methodPSVerb[method]; ok {
		return v
	}
	return "Invoke"
}

// PSNoun derives the PowerShell noun from the resource. Non-listing actions
// get a naive singular form.
func PSNoun(resource, action string) string {
	noun := Pascal(strings.ReplaceAll(resource, " ", ""))
	if containsAny(strings.ToLower(action), "list", "get all", "query", "search") {
		return noun
	}
	switch {
	case strings.HasSuffix(noun, "ies"):
		return strings.TrimSuffix(noun, "ies") + "y"
	case strings.HasSuffix(noun, "ses"):
		return noun
	case strings.HasSuffix(noun, "s") && !strings.HasSuffix(noun, "ss"):
		return strings.TrimSuffix(noun, "s")
	}
	return noun
}

// NormalizePath strips the organization and project prefix and converts
// the remaining placeholders to snake_case.
func NormalizePath(path string) string {
	path = strings.TrimPrefix(path, "/{organization}")
	path = strings.TrimPrefix(path, "/{project}")
	path = strings.TrimLeft(path, "/")
	path = placeholder.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		if name == "organization" || name == "project" {
			return ""
		}
		return "{" + Snake(name) + "}"
	})
	return slashes.ReplaceAllString(path, "/")
}

// IsProjectScoped reports whether the raw path carries a project segment.
func IsProjectScoped(path string) bool {
	return strings.Contains(path, "/{project}")
}

// SuccessStatus picks the expected success code: 201, 204 or 200 when
// declared, else the lowest declared 2xx, else 200.
func SuccessStatus(responses []specdoc.Response) int {
	declared := make(map[string]bool, len(responses))
	codes := make([]string, 0, len(responses))
	for _, r := range responses {
		declared[r.Status] = true
		codes = append(codes, r.Status)
	}
	for _, code := range []int{201, 204, 200} {
		if declared[strconv.Itoa(code)] {
			return code
		}
	}
	sort.Strings(codes)
	for _, c := range codes {
		if strings.HasPrefix(c, "2") {
			if n, err := strconv.Atoi(c); err == nil {
				return n
			}
		}
	}
	return 200
}

// OutputMode picks how the response is presented.
func OutputMode(method, action string, isList bool) opdef.OutputMode {
	switch {
	case isList:
		return opdef.OutputTable
	case method == "POST" || method == "PUT" || method == "PATCH" || method == "DELETE":
		return opdef.OutputMessage
	case method == "GET" && !strings.Contains(strings.ToLower(action), "list"):
		return opdef.OutputMessage
	}
	return opdef.OutputJSON
}

// pick returns up to max names, preferred ones first in preference order,
// then the remaining names in declared order. Names starting with an
// underscore are only taken when preferred.
func pick(props, preferred []string, max, fillBelow int) []string {
	present := make(map[string]bool, len(props))
	for _, p := range props {
		present[p] = true
	}
	var out []string
	for _, p := range preferred {
		if len(out) >= max {
			break
		}
		if present[p] {
			out = append(out, p)
		}
	}
	if len(out) >= fillBelow {
		return out
	}
	taken := make(map[string]bool, len(out))
	for _, p := range out {
		taken[p] = true
	}
	for _, p := range props {
		if len(out) >= max {
			break
		}
		if !taken[p] && !strings.HasPrefix(p, "_") {
			out = append(out, p)
		}
	}
	return out
}

// GuardKeys selects response keys used to detect API version mismatches.
func GuardKeys(props []string, max int) []string {
	return pick(props, []string{"id", "name", "count", "value"}, max, max)
}

// TableColumns selects up to max columns from list item properties,
// filling from declared order only when fewer than two are preferred.
func TableColumns(props []string, max int) []string {
	return pick(props, []string{"id", "name", "description", "state", "status", "url", "type"}, max, 2)
}

// OutputMessage builds the message template shown in message mode.
func OutputMessage(mode opdef.OutputMode, status int, resource string, hasKey func(string) bool) string {
	if status == 204 {
		return resource + " operation completed successfully."
	}
	if mode != opdef.OutputMessage {
		return ""
	}
	switch {
	case hasKey("name"):
		return resource + ": {name}"
	case hasKey("id"):
		return resource + " ID: {id}"
	}
	return ""
}

// Synopsis takes the first sentence of the description, flattened and
// sanitized.
func Synopsis(description, action, resource string) string {
	s := strings.TrimSpace(description)
	if s == "" {
		s = action + " for " + resource
	}
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.Index(s, ". "); i >= 0 {
		s = s[:i+1]
	}
	return SafeText(s, 120)
}

// DocsURL builds the reference documentation link.
func DocsURL(p Policy, domain, resource, action string) string {
	slug := func(s string) string { return strings.ReplaceAll(Snake(s), "_", "-") }
	return strings.TrimRight(p.DocsBaseURL, "/") + "/" +
		slug(domain) + "/" + slug(resource) + "/" + slug(action) +
		"?view=" + p.DocsView
}

// FileName is the definition file name for an operation of a domain.
func FileName(domain, operation string) string {
	name := Snake(domain) + "_" + operation + ".yaml"
	name = fileUnsafe.ReplaceAllString(name, "_")
	return underscores.ReplaceAllString(name, "_")
}
