package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/opdef"
)

const listPullRequestsYAML = `
domain: Git
resource: PullRequests
operation: list_pull_requests
ps_verb: Get
ps_noun: PullRequests
http_method: GET
url_path: _apis/git/repositories/{repository_id}/pullrequests
api_version: "7.1"
docs_url: https://learn.microsoft.com/en-us/rest/api/azure/devops/git/pull-requests/get-pull-requests?view=azure-devops-rest-7.1
synopsis: List pull requests in a repository.
params:
  - name: repository_id
    env_var: REPO_ID
    description: Repository name or GUID
  - name: search_criteria_status
    env_var: PR_STATUS
    description: Pull request status filter
    required: false
    default: active
version_guard_keys: [count, value]
output_mode: table
table_columns: [pullRequestId, title]
fixture_success:
  - pullRequestId: 1
    title: First
fixture_error_404:
  message: PullRequests not found
  typeKey: PullRequestsNotFoundException
  errorCode: 0
project_scoped: true
base_host: dev.azure.com
`

const createRepositoryYAML = `
domain: Git
resource: Repositories
operation: create_repository
ps_verb: New
ps_noun: Repository
http_method: POST
url_path: _apis/git/repositories
api_version: "7.1"
docs_url: https://learn.microsoft.com/en-us/rest/api/azure/devops/git/repositories/create?view=azure-devops-rest-7.1
synopsis: Create a new Git repository.
params:
  - name: name
    env_var: REPO_NAME
    description: Repository name
  - name: project_id
    env_var: PROJECT_ID
    description: Project name or GUID
body_fields:
  - json_path: name
    source: param:name
  - json_path: project.id
    source: param:project_id
  - json_path: project.kind
    source: literal:git
version_guard_keys: [id, name]
success_status: 201
output_mode: message
output_message: "Repository created: {name}"
fixture_success:
  id: f1a2b3c4-d5e6-7890-abcd-ef1234567890
  name: NewRepo
project_scoped: true
base_host: dev.azure.com
`

func mustParse(t *testing.T, src string) *opdef.Definition {
	t.Helper()
	def, err := opdef.Parse([]byte(src), opdef.FormatYAML)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return def
}

func mustTemplates(t *testing.T) *Templates {
	t.Helper()
	tmpl, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	return tmpl
}

func TestParseLanguages(t *testing.T) {
	tests := []struct {
		in      string
		want    []Language
		wantErr bool
	}{
		{"", AllLanguages, false},
		{"all", AllLanguages, false},
		{"bash,python", []Language{Python, Bash}, false},
		{" PowerShell , powershell", []Language{PowerShell}, false},
		{"ruby", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseLanguages(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLanguages(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseLanguages(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestViewPathsAndParams(t *testing.T) {
	v, err := newView(mustParse(t, listPullRequestsYAML))
	if err != nil {
		t.Fatalf("newView: %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"PyPath", v.PyPath, "_apis/git/repositories/{params['repository_id']}/pullrequests"},
		{"PSPath", v.PSPath, "_apis/git/repositories/$($RepositoryId)/pullrequests"},
		{"ShPath", v.ShPath, "_apis/git/repositories/${arg_repository_id}/pullrequests"},
		{"URLPattern", v.URLPattern, `^https://dev\.azure\.com/testorg/testproject/_apis/git/repositories/[^/?]+/pullrequests`},
		{"URLLike", v.URLLike, "https://dev.azure.com/testorg/testproject/_apis/git/repositories/*/pullrequests*"},
		{"URLGrep", v.URLGrep, "https://dev.azure.com/testorg/testproject/_apis/git/repositories/test-value/pullrequests"},
		{"TestClass", v.TestClass, "ListPullRequests"},
		{"Marker", v.Marker, "git"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}

	if len(v.Params) != 2 {
		t.Fatalf("got %d params, want 2", len(v.Params))
	}
	if v.Params[0].In != InPath || v.Params[0].Flag != "--repository-id" {
		t.Errorf("repository_id = %+v, want path param with --repository-id", v.Params[0])
	}
	q := v.Query()
	if len(q) != 1 || q[0].QueryKey != "searchCriteriaStatus" {
		t.Errorf("Query() = %+v, want searchCriteriaStatus", q)
	}
	req := v.Required()
	if len(req) != 1 || req[0].Name != "repository_id" {
		t.Errorf("Required() = %+v, want only repository_id", req)
	}
	if v.HasBody {
		t.Error("GET view should have no body")
	}
}

func TestViewBody(t *testing.T) {
	v, err := newView(mustParse(t, createRepositoryYAML))
	if err != nil {
		t.Fatalf("newView: %v", err)
	}

	if !v.HasBody {
		t.Fatal("HasBody = false")
	}
	if diff := cmp.Diff([]string{"name", "project"}, v.BodyKeys); diff != "" {
		t.Errorf("BodyKeys mismatch (-want +got):\n%s", diff)
	}
	for _, p := range v.Params {
		if p.In != InBody {
			t.Errorf("param %s in %s, want body", p.Name, p.In)
		}
	}

	wantJQ := `{"name": $name, "project": {"id": $project_id, "kind": "git"}}`
	if v.JQBody != wantJQ {
		t.Errorf("JQBody = %s, want %s", v.JQBody, wantJQ)
	}
	if diff := cmp.Diff([]string{"name", "project_id"}, v.JQArgs); diff != "" {
		t.Errorf("JQArgs mismatch (-want +got):\n%s", diff)
	}

	wantPy := "{\n" +
		"    \"name\": params[\"name\"],\n" +
		"    \"project\": {\n" +
		"        \"id\": params[\"project_id\"],\n" +
		"        \"kind\": \"git\",\n" +
		"    },\n" +
		"}"
	if v.PyBody != wantPy {
		t.Errorf("PyBody =\n%s\nwant\n%s", v.PyBody, wantPy)
	}
	if !strings.Contains(v.PSBody, "'name' = $Name") || !strings.Contains(v.PSBody, "'id' = $ProjectId") {
		t.Errorf("PSBody = %s", v.PSBody)
	}

	if diff := cmp.Diff([]string{"name"}, v.MessageKeys); diff != "" {
		t.Errorf("MessageKeys mismatch (-want +got):\n%s", diff)
	}
	if want := `"Repository created: \(.name // "N/A")"`; v.ShMessage != want {
		t.Errorf("ShMessage = %s, want %s", v.ShMessage, want)
	}
}

func TestJQStringEscapes(t *testing.T) {
	got := jqString(`say "hi" to {name}`)
	want := `"say \"hi\" to \(.name // "N/A")"`
	if got != want {
		t.Errorf("jqString = %s, want %s", got, want)
	}
	if got := jqLiteral("{id}"); got != `"{id}"` {
		t.Errorf("jqLiteral interpolated: %s", got)
	}
}

func TestPlanFiles(t *testing.T) {
	tmpl := mustTemplates(t)
	set, err := tmpl.Plan(mustParse(t, listPullRequestsYAML), AllLanguages, fstest.MapFS{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var paths []string
	for _, f := range set.Files() {
		paths = append(paths, f.Path)
	}
	want := []string{
		"Git/PullRequests/Get-PullRequests.ps1",
		"Git/PullRequests/__init__.py",
		"Git/PullRequests/list_pull_requests.py",
		"Git/PullRequests/list_pull_requests.sh",
		"Git/PullRequests/tests/Get-PullRequests.Tests.ps1",
		"Git/PullRequests/tests/__init__.py",
		"Git/PullRequests/tests/fixtures/list_pull_requests_200.json",
		"Git/PullRequests/tests/fixtures/list_pull_requests_404.json",
		"Git/PullRequests/tests/test_list_pull_requests.bats",
		"Git/PullRequests/tests/test_list_pull_requests.py",
		"Git/__init__.py",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("planned paths mismatch (-want +got):\n%s", diff)
	}

	sh, _ := set.Get("Git/PullRequests/list_pull_requests.sh")
	if !sh.Executable {
		t.Error("bash client should be executable")
	}

	fx, _ := set.Get("Git/PullRequests/tests/fixtures/list_pull_requests_200.json")
	wantFixture := `{
  "count": 1,
  "value": [
    {
      "pullRequestId": 1,
      "title": "First"
    }
  ]
}
`
	if string(fx.Content) != wantFixture {
		t.Errorf("success fixture =\n%s\nwant\n%s", fx.Content, wantFixture)
	}
}

func TestPlanKeepsExistingMarkers(t *testing.T) {
	tmpl := mustTemplates(t)
	fsys := fstest.MapFS{
		"Git/__init__.py": &fstest.MapFile{Data: []byte("# keep\n")},
	}
	set, err := tmpl.Plan(mustParse(t, createRepositoryYAML), []Language{Python}, fsys)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, ok := set.Get("Git/__init__.py"); ok {
		t.Error("existing domain marker should not be planned")
	}
	if _, ok := set.Get("Git/Repositories/__init__.py"); !ok {
		t.Error("missing resource marker should be planned")
	}
	if _, ok := set.Get("Git/Repositories/create_repository.sh"); ok {
		t.Error("bash client planned for python-only run")
	}
	if _, ok := set.Get("Git/Repositories/tests/fixtures/create_repository_404.json"); ok {
		t.Error("error fixture planned without fixture_error_404")
	}
}

func TestRenderedClients(t *testing.T) {
	tmpl := mustTemplates(t)
	set, err := tmpl.Plan(mustParse(t, createRepositoryYAML), AllLanguages, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	tests := []struct {
		path string
		want []string
	}{
		{"Git/Repositories/create_repository.py", []string{
			`path = f"_apis/git/repositories"`,
			`"POST"`,
			"expected_status=201",
		}},
		{"Git/Repositories/New-Repository.ps1", []string{
			"$body = @{",
			"ConvertTo-Json -Depth 10",
			"Invoke-RestMethod @request",
		}},
		{"Git/Repositories/create_repository.sh", []string{
			"set -euo pipefail",
			`arg_name="${REPO_NAME:-}"`,
			`--arg name "${arg_name}" --arg project_id "${arg_project_id}"`,
			"-X POST",
		}},
		{"Git/Repositories/tests/test_create_repository.py", []string{
			`URL_PATTERN = re.compile("^https://dev\\.azure\\.com/testorg/testproject/_apis/git/repositories")`,
		}},
		{"Git/Repositories/tests/New-Repository.Tests.ps1", []string{
			"Describe 'New-Repository' -Tag 'offline', 'git'",
		}},
		{"Git/Repositories/tests/test_create_repository.bats", []string{
			`@test "calls POST on the expected URL"`,
			`@test "sends the request body"`,
		}},
	}
	for _, tt := range tests {
		f, ok := set.Get(tt.path)
		if !ok {
			t.Errorf("%s not planned", tt.path)
			continue
		}
		for _, w := range tt.want {
			if !strings.Contains(string(f.Content), w) {
				t.Errorf("%s missing %q", tt.path, w)
			}
		}
		if strings.Contains(string(f.Content), "<no value>") {
			t.Errorf("%s contains an unset template value", tt.path)
		}
	}
}

func TestWrite(t *testing.T) {
	root := t.TempDir()
	set := newFileSet()
	set.add(File{Path: "Git/a.py", Content: []byte("print(1)\n")})
	set.add(File{Path: "Git/a.sh", Content: []byte("echo 1\n"), Executable: true})

	res, err := Write(context.Background(), root, set, WriteOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if res.Count(StatusCreated) != 2 {
		t.Errorf("dry run created = %d, want 2", res.Count(StatusCreated))
	}
	if _, err := os.Stat(filepath.Join(root, "Git")); !os.IsNotExist(err) {
		t.Error("dry run touched the disk")
	}

	if _, err := Write(context.Background(), root, set, WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "Git", "a.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("a.sh mode = %v, want 0755", info.Mode().Perm())
	}

	set.add(File{Path: "Git/a.py", Content: []byte("print(2)\n")})
	res, err = Write(context.Background(), root, set, WriteOptions{})
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	want := []Written{
		{Path: "Git/a.py", Status: StatusUpdated},
		{Path: "Git/a.sh", Status: StatusUnchanged},
	}
	if diff := cmp.Diff(want, res.Files); diff != "" {
		t.Errorf("second write mismatch (-want +got):\n%s", diff)
	}

	got, _ := os.ReadFile(filepath.Join(root, "Git", "a.py"))
	if string(got) != "print(2)\n" {
		t.Errorf("a.py = %q", got)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "Git"))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".adogen-") {
			t.Errorf("staging file left behind: %s", e.Name())
		}
	}
}

func TestWriteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set := newFileSet()
	set.add(File{Path: "a.py", Content: []byte("x\n")})
	if _, err := Write(ctx, t.TempDir(), set, WriteOptions{}); err == nil {
		t.Error("Write on canceled context should fail")
	}
}

func TestGenerator(t *testing.T) {
	dir := t.TempDir()
	defPath := filepath.Join(dir, "create_repository.yaml")
	if err := os.WriteFile(defPath, []byte(createRepositoryYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	core, logs := observer.New(zap.InfoLevel)
	g, err := NewGenerator(zap.New(core))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	res, err := g.Generate(context.Background(), defPath, out, Options{Languages: []Language{Bash}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Count(StatusCreated) == 0 {
		t.Error("no files created")
	}
	if _, err := os.Stat(filepath.Join(out, "Git", "Repositories", "create_repository.sh")); err != nil {
		t.Errorf("bash client not written: %v", err)
	}

	res, err = g.Generate(context.Background(), defPath, out, Options{Languages: []Language{Bash}})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if res.Count(StatusUnchanged) != len(res.Files) {
		t.Errorf("regeneration changed files: %+v", res.Files)
	}

	if n := logs.FilterMessage("generated operation").Len(); n != 2 {
		t.Errorf("got %d generation logs, want 2", n)
	}
}

func TestGeneratorRejectsInvalidDefinition(t *testing.T) {
	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatal(err)
	}
	def := mustParse(t, createRepositoryYAML)
	def.BodyFields = nil
	if _, err := g.GenerateDefinition(context.Background(), def, t.TempDir(), Options{}); err == nil {
		t.Error("POST without body fields should be rejected")
	}
}

func TestGeneratorNameCollision(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "create_repository.yaml")
	second := filepath.Join(dir, "create_repo_copy.yaml")
	writeDef := func(path, synopsis string) {
		t.Helper()
		doc := strings.Replace(createRepositoryYAML, "Create a new Git repository.", synopsis, 1)
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeDef(first, "FIRST")
	writeDef(second, "SECOND")
	out := filepath.Join(dir, "out")
	client := filepath.Join(out, "Git", "Repositories", "create_repository.py")
	opts := Options{Languages: []Language{Python}}

	clientHas := func(text string) bool {
		t.Helper()
		data, err := os.ReadFile(client)
		if err != nil {
			t.Fatal(err)
		}
		return strings.Contains(string(data), text)
	}

	g, err := NewGenerator(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), first, out, opts); err != nil {
		t.Fatalf("Generate first: %v", err)
	}
	if !clientHas("Generated from create_repository.yaml\n") {
		t.Error("client does not name its definition")
	}

	if _, err := g.Generate(context.Background(), second, out, opts); !errors.Is(err, apierrors.ErrNameCollision) {
		t.Errorf("same run collision = %v, want NameCollision", err)
	}

	// A fresh generator only has the file on disk to go by.
	g2, _ := NewGenerator(nil)
	if _, err := g2.Generate(context.Background(), second, out, opts); !errors.Is(err, apierrors.ErrNameCollision) {
		t.Errorf("existing client collision = %v, want NameCollision", err)
	}
	if !clientHas("FIRST") || clientHas("SECOND") {
		t.Error("refused generation replaced the client")
	}

	writeDef(first, "FIRST EDITED")
	res, err := g2.Generate(context.Background(), first, out, opts)
	if err != nil {
		t.Fatalf("regenerate from the owning definition: %v", err)
	}
	if res.Count(StatusUpdated) == 0 || !clientHas("FIRST EDITED") {
		t.Errorf("owning definition did not update the client: %+v", res.Files)
	}

	overwrite := opts
	overwrite.Overwrite = true
	if _, err := g2.Generate(context.Background(), second, out, overwrite); err != nil {
		t.Fatalf("Generate with Overwrite: %v", err)
	}
	if !clientHas("SECOND") || !clientHas("Generated from create_repo_copy.yaml\n") {
		t.Error("Overwrite did not replace the client")
	}
}

func TestWriteRefusesForeignFile(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "Git", "a.py")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("# hand written\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	set := newFileSet()
	set.add(File{Path: "Git/a.py", Content: []byte("# Generated from a.yaml\n"), Owner: "a.yaml"})
	set.add(File{Path: "Git/b.py", Content: []byte("print(1)\n")})

	if _, err := Write(context.Background(), root, set, WriteOptions{}); !errors.Is(err, apierrors.ErrNameCollision) {
		t.Fatalf("Write = %v, want NameCollision", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Git", "b.py")); !os.IsNotExist(err) {
		t.Error("refused write left other files behind")
	}
	if _, err := Write(context.Background(), root, set, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("Write with Overwrite: %v", err)
	}
}
