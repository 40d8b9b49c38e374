package infer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/opdef"
	"github.com/tdevere/DevOpsApiClients/internal/specdoc"
)

const gitSpec = `{
  "swagger": "2.0",
  "info": {"title": "Git", "version": "7.2-preview.1"},
  "host": "dev.azure.com",
  "paths": {
    "/{organization}/{project}/_apis/git/repositories": {
      "get": {
        "operationId": "Repositories_List",
        "description": "Retrieve git repositories. Includes hidden ones on request.",
        "parameters": [
          {"name": "organization", "in": "path", "required": true, "type": "string"},
          {"name": "project", "in": "path", "required": true, "type": "string"},
          {"name": "includeLinks", "in": "query", "type": "boolean"},
          {"name": "api-version", "in": "query", "required": true, "type": "string"}
        ],
        "responses": {"200": {"description": "ok", "schema": {"$ref": "#/definitions/GitRepositoryList"}}}
      },
      "post": {
        "operationId": "Repositories_Create",
        "description": "Create a git repository in a team project.",
        "parameters": [
          {"name": "organization", "in": "path", "required": true, "type": "string"},
          {"name": "gitRepositoryToCreate", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GitRepositoryCreateOptions"}},
          {"name": "project", "in": "path", "required": true, "type": "string"}
        ],
        "responses": {"201": {"description": "created", "schema": {"$ref": "#/definitions/GitRepository"}}}
      },
      "head": {"operationId": "Repositories_Probe", "responses": {"200": {"description": "ok"}}}
    },
    "/{organization}/{project}/_apis/git/repositories/{repositoryId}": {
      "delete": {
        "operationId": "Repositories_Delete",
        "parameters": [{"name": "repositoryId", "in": "path", "required": true, "type": "string"}],
        "responses": {"204": {"description": "deleted"}}
      },
      "patch": {
        "operationId": "Repositories_Update",
        "parameters": [{"name": "repositoryId", "in": "path", "required": true, "type": "string"}],
        "responses": {"200": {"description": "ok", "schema": {"$ref": "#/definitions/GitRepository"}}}
      },
      "get": {
        "operationId": "Repositories_Get Repository",
        "parameters": [{"name": "repositoryId", "in": "path", "required": true, "type": "string", "description": "The name or ID of the repository."}],
        "responses": {"200": {"description": "ok", "schema": {"$ref": "#/definitions/GitRepository"}}}
      }
    },
    "/{organization}/_apis/git/repositories/{repositoryId}": {
      "get": {
        "operationId": "Repositories_Get Repository",
        "parameters": [{"name": "repositoryId", "in": "path", "required": true, "type": "string"}],
        "responses": {"200": {"description": "ok", "schema": {"$ref": "#/definitions/GitRepository"}}}
      }
    },
    "/{organization}/_apis/git/stats": {
      "get": {"description": "no operation id", "responses": {"200": {"description": "ok"}}}
    }
  },
  "definitions": {
    "GitRepositoryList": {
      "type": "object",
      "properties": {
        "count": {"type": "integer"},
        "value": {"type": "array", "items": {"$ref": "#/definitions/GitRepository"}}
      }
    },
    "GitRepository": {
      "type": "object",
      "properties": {
        "_links": {"type": "object"},
        "defaultBranch": {"type": "string"},
        "id": {"type": "string", "format": "uuid"},
        "name": {"type": "string"},
        "remoteUrl": {"type": "string"}
      }
    },
    "GitRepositoryCreateOptions": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "description": "Repository name"},
        "project": {"$ref": "#/definitions/TeamProjectReference"}
      }
    },
    "TeamProjectReference": {
      "type": "object",
      "properties": {"id": {"type": "string"}}
    }
  }
}`

func loadGitSpec(t *testing.T) *specdoc.Document {
	t.Helper()
	doc, err := specdoc.Load([]byte(gitSpec))
	if err != nil {
		t.Fatalf("specdoc.Load: %v", err)
	}
	return doc
}

func operations(res Result) []string {
	var ops []string
	for _, c := range res.Candidates {
		ops = append(ops, c.Definition.Operation)
	}
	return ops
}

func TestInferDocument(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := NewEngine(DefaultPolicy(), zap.New(core))
	res := e.InferDocument("git", loadGitSpec(t))

	want := []string{"list_repositories", "create_repositories", "get_repository", "delete_repositories"}
	if diff := cmp.Diff(want, operations(res)); diff != "" {
		t.Errorf("operations (-want +got):\n%s", diff)
	}

	if len(res.Skipped) != 1 || res.Skipped[0].OperationID != "Repositories_Update" {
		t.Fatalf("Skipped = %v, want the body-less PATCH", res.Skipped)
	}
	if !errors.Is(res.Skipped[0].Err, apierrors.ErrMalformedDefinition) {
		t.Errorf("skip reason = %v, want MalformedDefinition", res.Skipped[0].Err)
	}
	if logs.FilterMessage("skipping endpoint").Len() != 1 {
		t.Errorf("expected one skipping endpoint log, got %d", logs.FilterMessage("skipping endpoint").Len())
	}

	if len(res.Collisions) != 1 {
		t.Fatalf("Collisions = %v, want 1", res.Collisions)
	}
	c := res.Collisions[0]
	if c.Path != "/{organization}/_apis/git/repositories/{repositoryId}" || !errors.Is(c.Err, apierrors.ErrNameCollision) {
		t.Errorf("collision = %v", c)
	}
}

func candidate(t *testing.T, res Result, op string) *opdef.Definition {
	t.Helper()
	for _, c := range res.Candidates {
		if c.Definition.Operation == op {
			return c.Definition
		}
	}
	t.Fatalf("no candidate %q in %v", op, operations(res))
	return nil
}

func TestInferListOperation(t *testing.T) {
	res := NewEngine(DefaultPolicy(), nil).InferDocument("git", loadGitSpec(t))
	def := candidate(t, res, "list_repositories")

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"domain", def.Domain, "Git"},
		{"resource", def.Resource, "Repositories"},
		{"ps_verb", def.PSVerb, "Get"},
		{"ps_noun", def.PSNoun, "Repositories"},
		{"url_path", def.URLPath, "_apis/git/repositories"},
		{"api_version", def.APIVersion, "7.2"},
		{"synopsis", def.Synopsis, "Retrieve git repositories."},
		{"docs_url", def.DocsURL, "https://learn.microsoft.com/en-us/rest/api/azure/devops/git/repositories/list?view=azure-devops-rest-7.2"},
		{"output_mode", def.OutputMode, opdef.OutputTable},
		{"success_status", def.SuccessStatus, 200},
		{"project_scoped", def.ProjectScoped, true},
		{"params", len(def.Params), 0},
		{"output_message", def.OutputMessage, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
	if diff := cmp.Diff([]string{"id", "name"}, def.TableColumns); diff != "" {
		t.Errorf("table_columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"count", "value"}, def.VersionGuardKeys); diff != "" {
		t.Errorf("version_guard_keys (-want +got):\n%s", diff)
	}

	got, _ := def.FixtureSuccess.MarshalJSON()
	want := `{"count":1,"value":[{"defaultBranch":"sample-string","id":"a1b2c3d4-e5f6-7890-abcd-ef1234567890","name":"sample-string","remoteUrl":"sample-string"}]}`
	if string(got) != want {
		t.Errorf("fixture_success = %s, want %s", got, want)
	}
	errFix, _ := def.FixtureError404.MarshalJSON()
	if string(errFix) != `{"message":"Repositories not found","typeKey":"RepositoriesNotFoundException","errorCode":0}` {
		t.Errorf("fixture_error_404 = %s", errFix)
	}
}

func TestInferMutatingOperation(t *testing.T) {
	res := NewEngine(DefaultPolicy(), nil).InferDocument("git", loadGitSpec(t))
	def := candidate(t, res, "create_repositories")

	if def.PSVerb != "New" || def.PSNoun != "Repository" {
		t.Errorf("ps name = %s-%s, want New-Repository", def.PSVerb, def.PSNoun)
	}
	if def.SuccessStatus != 201 || def.OutputMode != opdef.OutputMessage {
		t.Errorf("status=%d mode=%s", def.SuccessStatus, def.OutputMode)
	}
	if def.OutputMessage != "Repositories: {name}" {
		t.Errorf("output_message = %q", def.OutputMessage)
	}

	wantFields := []opdef.BodyField{
		{JSONPath: "name", Source: "param:name", Description: "Repository name"},
		{JSONPath: "project", Source: "param:project", Description: "project"},
	}
	if diff := cmp.Diff(wantFields, def.BodyFields); diff != "" {
		t.Errorf("body_fields (-want +got):\n%s", diff)
	}
	wantParams := []opdef.Param{
		{Name: "name", EnvVar: "NAME", Description: "Repository name", Required: true, CLIFlag: "--name"},
		{Name: "project", EnvVar: "PROJECT_ID", Description: "project", Required: false, CLIFlag: "--project"},
	}
	if diff := cmp.Diff(wantParams, def.Params); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
}

func TestInferDeleteAndGet(t *testing.T) {
	res := NewEngine(DefaultPolicy(), nil).InferDocument("git", loadGitSpec(t))

	del := candidate(t, res, "delete_repositories")
	if del.SuccessStatus != 204 || del.OutputMessage != "Repositories operation completed successfully." {
		t.Errorf("delete status=%d message=%q", del.SuccessStatus, del.OutputMessage)
	}
	fix, _ := del.FixtureSuccess.MarshalJSON()
	if string(fix) != `{"status":"ok"}` {
		t.Errorf("delete fallback fixture = %s", fix)
	}
	if del.PSVerb != "Remove" || del.PSNoun != "Repository" {
		t.Errorf("delete ps name = %s-%s", del.PSVerb, del.PSNoun)
	}

	get := candidate(t, res, "get_repository")
	want := []opdef.Param{{Name: "repository_id", EnvVar: "REPO_ID", Description: "The name or ID of the repository.", Required: true}}
	if diff := cmp.Diff(want, get.Params); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
	if get.URLPath != "_apis/git/repositories/{repository_id}" {
		t.Errorf("url_path = %q", get.URLPath)
	}
	if get.OutputMessage != "Repositories: {name}" || get.OutputMode != opdef.OutputMessage {
		t.Errorf("mode=%s message=%q", get.OutputMode, get.OutputMessage)
	}
}

func TestInferDeterministic(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	first := e.InferDocument("git", loadGitSpec(t))
	second := e.InferDocument("git", loadGitSpec(t))

	for i := range first.Candidates {
		a, err := first.Candidates[i].Definition.Marshal(opdef.FormatYAML)
		if err != nil {
			t.Fatal(err)
		}
		b, err := second.Candidates[i].Definition.Marshal(opdef.FormatYAML)
		if err != nil {
			t.Fatal(err)
		}
		if string(a) != string(b) {
			t.Errorf("candidate %d differs between runs:\n%s\n---\n%s", i, a, b)
		}
	}
}

func TestInferDomainAcrossFiles(t *testing.T) {
	e := NewEngine(DefaultPolicy(), nil)
	doc := loadGitSpec(t)
	res := e.InferDomain("git", doc, doc)
	if len(res.Candidates) != 4 {
		t.Errorf("candidates = %d, want 4", len(res.Candidates))
	}
	// the second copy collides on every operation plus the in-file duplicate
	if len(res.Collisions) != 6 {
		t.Errorf("collisions = %d, want 6", len(res.Collisions))
	}
}

func TestInferredDefinitionsRoundTrip(t *testing.T) {
	res := NewEngine(DefaultPolicy(), nil).InferDocument("git", loadGitSpec(t))
	for _, c := range res.Candidates {
		data, err := c.Definition.Marshal(opdef.FormatYAML)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", c.FileName, err)
		}
		if _, err := opdef.Parse(data, opdef.FormatYAML); err != nil {
			t.Errorf("%s does not parse back: %v\n%s", c.FileName, err, data)
		}
	}
}

func TestPolicyOverrides(t *testing.T) {
	p := DefaultPolicy()
	p.ParamEnvOverrides["repositoryId"] = "GIT_REPO"
	p.DomainDirs["git"] = "SourceControl"
	p.MaxTableColumns = 1

	res := NewEngine(p, nil).InferDocument("git", loadGitSpec(t))
	get := candidate(t, res, "get_repository")
	if get.Params[0].EnvVar != "GIT_REPO" {
		t.Errorf("env_var = %q, want GIT_REPO", get.Params[0].EnvVar)
	}
	if get.Domain != "SourceControl" {
		t.Errorf("domain = %q", get.Domain)
	}
	list := candidate(t, res, "list_repositories")
	if diff := cmp.Diff([]string{"id"}, list.TableColumns); diff != "" {
		t.Errorf("table_columns (-want +got):\n%s", diff)
	}
}

func TestWriteDefinitions(t *testing.T) {
	dir := t.TempDir()
	res := NewEngine(DefaultPolicy(), nil).InferDocument("git", loadGitSpec(t))

	dry, err := WriteDefinitions(dir, res.Candidates, WriteOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(dry.Generated) != 4 {
		t.Errorf("dry run generated = %v", dry.Generated)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("dry run wrote %d files", len(entries))
	}

	summary, err := WriteDefinitions(dir, res.Candidates, WriteOptions{})
	if err != nil {
		t.Fatalf("WriteDefinitions: %v", err)
	}
	if len(summary.Generated) != 4 || len(summary.Existing) != 0 {
		t.Errorf("summary = %+v", summary)
	}

	path := filepath.Join(dir, "git_list_repositories.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), Header) {
		t.Errorf("missing header:\n%s", data)
	}
	def, err := opdef.Load(path)
	if err != nil {
		t.Fatalf("written file does not load: %v", err)
	}
	if def.OutputMode != opdef.OutputTable {
		t.Errorf("OutputMode = %q", def.OutputMode)
	}

	again, err := WriteDefinitions(dir, res.Candidates, WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Generated) != 0 || len(again.Existing) != 4 {
		t.Errorf("second run = %+v, want all existing", again)
	}

	over, err := WriteDefinitions(dir, res.Candidates, WriteOptions{Overwrite: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(over.Generated) != 4 {
		t.Errorf("overwrite run = %+v", over)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestDiscoverSpecs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		".cache_git.json",
		".cache_test.json",
		".cache_testPlan_plans.json",
		".cache_wit_workItems.json",
		".cache_unknown.json",
		"git.json",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	set, err := DiscoverSpecs(dir, DefaultPolicy())
	if err != nil {
		t.Fatalf("DiscoverSpecs: %v", err)
	}
	if diff := cmp.Diff([]string{"git", "test", "testPlan", "wit"}, set.Domains()); diff != "" {
		t.Errorf("domains (-want +got):\n%s", diff)
	}
	if got := filepath.Base(set.Files["testPlan"][0]); got != ".cache_testPlan_plans.json" {
		t.Errorf("testPlan file = %q", got)
	}
	if len(set.Unmatched) != 1 || filepath.Base(set.Unmatched[0]) != ".cache_unknown.json" {
		t.Errorf("Unmatched = %v", set.Unmatched)
	}

	if k, ok := set.Lookup("TESTPLAN"); !ok || k != "testPlan" {
		t.Errorf("Lookup(TESTPLAN) = %q, %v", k, ok)
	}
	if _, ok := set.Lookup("release"); ok {
		t.Error("Lookup(release) should fail without spec files")
	}
}
