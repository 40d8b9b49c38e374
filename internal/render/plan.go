// Package render turns operation definitions into client scripts, tests and
// fixtures for each target language.
package render

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/tdevere/DevOpsApiClients/internal/fixture"
	"github.com/tdevere/DevOpsApiClients/internal/opdef"
)

// Language is a client target language.
type Language string

const (
	Python     Language = "python"
	PowerShell Language = "powershell"
	Bash       Language = "bash"
)

// AllLanguages lists every supported language in generation order.
var AllLanguages = []Language{Python, PowerShell, Bash}

// ParseLanguages parses a comma-separated language list. "all" or an empty
// list selects every language. The result is in generation order without
// duplicates.
func ParseLanguages(csv string) ([]Language, error) {
	selected := make(map[Language]bool)
	for _, part := range strings.Split(csv, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
		case "all":
			for _, l := range AllLanguages {
				selected[l] = true
			}
		case string(Python), string(PowerShell), string(Bash):
			selected[Language(part)] = true
		default:
			return nil, fmt.Errorf("unknown language %q (want python, powershell, bash or all)", part)
		}
	}
	if len(selected) == 0 {
		return AllLanguages, nil
	}
	var out []Language
	for _, l := range AllLanguages {
		if selected[l] {
			out = append(out, l)
		}
	}
	return out, nil
}

// File is one planned output file. Path is slash separated and relative to
// the output root.
type File struct {
	Path       string
	Content    []byte
	Executable bool
	// Owner is the definition file an implementation client is generated
	// from. An existing file owned by another definition is not replaced.
	Owner string
}

// FileSet is an ordered set of planned files, sorted by path.
type FileSet struct {
	files map[string]File
}

func newFileSet() *FileSet {
	return &FileSet{files: make(map[string]File)}
}

func (s *FileSet) add(f File) {
	s.files[f.Path] = f
}

// Files returns the planned files sorted by path.
func (s *FileSet) Files() []File {
	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Get returns the planned file at path.
func (s *FileSet) Get(p string) (File, bool) {
	f, ok := s.files[p]
	return f, ok
}

func (s *FileSet) Len() int { return len(s.files) }

// Plan renders every file generated for def. fsys is the output root; it is
// consulted only to leave existing package markers alone.
func (t *Templates) Plan(def *opdef.Definition, langs []Language, fsys fs.FS) (*FileSet, error) {
	v, err := newView(def)
	if err != nil {
		return nil, err
	}

	base := def.OutputDir()
	testDir := path.Join(base, "tests")
	fixtureDir := path.Join(testDir, "fixtures")
	set := newFileSet()

	render := func(p, tmpl string, executable bool) error {
		content, err := t.execute(tmpl, v)
		if err != nil {
			return err
		}
		set.add(File{Path: p, Content: content, Executable: executable})
		return nil
	}
	impl := func(p, tmpl string, executable bool) error {
		if err := render(p, tmpl, executable); err != nil {
			return err
		}
		f := set.files[p]
		f.Owner = def.Source
		set.files[p] = f
		return nil
	}

	for _, l := range langs {
		var err error
		switch l {
		case Python:
			if err = impl(path.Join(base, def.PythonScriptName()), tmplPythonImpl, false); err == nil {
				err = render(path.Join(testDir, "test_"+def.Operation+".py"), tmplPythonTest, false)
			}
		case PowerShell:
			if err = impl(path.Join(base, def.PSScriptName()), tmplPowerShellImpl, false); err == nil {
				err = render(path.Join(testDir, def.PSTestName()), tmplPesterTest, false)
			}
		case Bash:
			if err = impl(path.Join(base, def.BashScriptName()), tmplBashImpl, true); err == nil {
				err = render(path.Join(testDir, "test_"+def.Operation+".bats"), tmplBatsTest, false)
			}
		default:
			err = fmt.Errorf("unknown language %q", l)
		}
		if err != nil {
			return nil, err
		}
	}

	if def.FixtureSuccess != nil {
		content, err := successFixture(def).Indent()
		if err != nil {
			return nil, fmt.Errorf("encode success fixture: %w", err)
		}
		set.add(File{Path: path.Join(fixtureDir, def.FixtureFilename()), Content: content})
	}
	if def.FixtureError404 != nil {
		content, err := def.FixtureError404.Indent()
		if err != nil {
			return nil, fmt.Errorf("encode error fixture: %w", err)
		}
		set.add(File{Path: path.Join(fixtureDir, def.ErrorFixtureFilename()), Content: content})
	}

	for _, dir := range []string{base, testDir, def.Domain} {
		marker := path.Join(dir, "__init__.py")
		exists, err := fileExists(fsys, marker)
		if err != nil {
			return nil, err
		}
		if !exists {
			set.add(File{Path: marker})
		}
	}
	return set, nil
}

// successFixture wraps a bare list returned by a GET in the paged
// {"count": n, "value": [...]} envelope the clients expect.
func successFixture(def *opdef.Definition) fixture.Value {
	v := *def.FixtureSuccess
	if !v.IsArray() || def.HTTPMethod != "GET" {
		return v
	}
	obj := fixture.NewObject()
	obj.Set("count", fixture.Int(int64(len(v.Items()))))
	obj.Set("value", v)
	return fixture.Obj(obj)
}

func fileExists(fsys fs.FS, p string) (bool, error) {
	if fsys == nil {
		return false, nil
	}
	_, err := fs.Stat(fsys, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", p, err)
}
