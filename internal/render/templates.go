package render

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/tdevere/DevOpsApiClients/internal/tmplutil"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template names.
const (
	tmplPythonImpl     = "python_impl.py.tmpl"
	tmplPythonTest     = "python_test.py.tmpl"
	tmplPowerShellImpl = "powershell_impl.ps1.tmpl"
	tmplPesterTest     = "pester_test.ps1.tmpl"
	tmplBashImpl       = "bash_impl.sh.tmpl"
	tmplBatsTest       = "bats_test.bats.tmpl"
)

// Templates is the parsed client template set.
type Templates struct {
	set *template.Template
}

// LoadTemplates parses the embedded client templates.
func LoadTemplates() (*Templates, error) {
	set, err := template.New("clients").
		Funcs(tmplutil.FuncMap()).
		Option("missingkey=error").
		ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Templates{set: set}, nil
}

func (t *Templates) execute(name string, v *view) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.set.ExecuteTemplate(&buf, name, v); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append(out, '\n'), nil
}
