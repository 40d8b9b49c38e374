package tmplutil

import (
	"encoding/json"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/tdevere/DevOpsApiClients/internal/infer"
)

// FuncMap returns the shared template function map used by all client
// templates. It includes all Sprig functions plus naming and quoting helpers
// for the three target languages.
func FuncMap() template.FuncMap {
	fm := sprig.TxtFuncMap()

	fm["json"] = func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	fm["first"] = func(vals []string) string {
		if len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	fm["snake"] = infer.Snake
	fm["pascal"] = infer.Pascal
	fm["lowerCamel"] = LowerCamel
	fm["pyrepr"] = PyRepr
	fm["pylist"] = PyList
	fm["psstring"] = PSString
	fm["pslist"] = PSList
	fm["shquote"] = ShQuote

	return fm
}

// PyRepr renders s as a double-quoted Python string literal.
func PyRepr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// PyList renders a Python list of string literals.
func PyList(vals []string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = PyRepr(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// PSString renders s as a single-quoted PowerShell string.
func PSString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// PSList renders a PowerShell array of strings.
func PSList(vals []string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = PSString(v)
	}
	return "@(" + strings.Join(parts, ", ") + ")"
}

// ShQuote renders s as a single-quoted POSIX shell word.
func ShQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// LowerCamel converts a snake_case name to lowerCamelCase.
func LowerCamel(s string) string {
	p := infer.Pascal(s)
	if p == "" {
		return ""
	}
	return strings.ToLower(p[:1]) + p[1:]
}
