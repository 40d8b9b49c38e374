package infer

import (
	"maps"

	"github.com/tdevere/DevOpsApiClients/internal/config"
	"github.com/tdevere/DevOpsApiClients/internal/fixture"
)

// SkipParam is the override value for parameters that are supplied
// structurally (organization, api-version) and never become inputs.
const SkipParam = "__SKIP__"

// Policy is the naming and sizing configuration of the inference engine.
type Policy struct {
	// ParamEnvOverrides maps a raw parameter name to its environment
	// variable. SkipParam drops the parameter.
	ParamEnvOverrides map[string]string
	// DomainDirs maps a domain key to its output directory name.
	DomainDirs map[string]string

	DefaultHost string
	DocsBaseURL string
	DocsView    string

	MaxFixtureDepth      int
	MaxFixtureProperties int
	MaxBodyFields        int
	MaxGuardKeys         int
	MaxTableColumns      int
}

// DefaultPolicy returns the built-in tables for the Azure DevOps REST specs.
func DefaultPolicy() Policy {
	return Policy{
		ParamEnvOverrides: defaultParamEnvOverrides(),
		DomainDirs:        defaultDomainDirs(),
		DefaultHost:       "dev.azure.com",
		DocsBaseURL:       "https://learn.microsoft.com/en-us/rest/api/azure/devops",
		DocsView:          "azure-devops-rest-7.2",

		MaxFixtureDepth:      fixture.DefaultBounds.MaxDepth,
		MaxFixtureProperties: fixture.DefaultBounds.MaxProperties,
		MaxBodyFields:        6,
		MaxGuardKeys:         2,
		MaxTableColumns:      4,
	}
}

// PolicyFromConfig overlays configured values on DefaultPolicy.
func PolicyFromConfig(c config.InferenceConfig) Policy {
	p := DefaultPolicy()
	maps.Copy(p.ParamEnvOverrides, c.ParamEnvOverrides)
	maps.Copy(p.DomainDirs, c.DomainDirs)

	setString(&p.DefaultHost, c.DefaultHost)
	setString(&p.DocsBaseURL, c.DocsBaseURL)
	setString(&p.DocsView, c.DocsView)
	setInt(&p.MaxFixtureDepth, c.MaxFixtureDepth)
	setInt(&p.MaxFixtureProperties, c.MaxFixtureProperties)
	setInt(&p.MaxBodyFields, c.MaxBodyFields)
	setInt(&p.MaxGuardKeys, c.MaxGuardKeys)
	setInt(&p.MaxTableColumns, c.MaxTableColumns)
	return p
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// DomainDir returns the directory name for a domain key.
func (p Policy) DomainDir(key string) string {
	if dir, ok := p.DomainDirs[key]; ok {
		return dir
	}
	return Pascal(key)
}

// FixtureBounds returns the fixture synthesis bounds.
func (p Policy) FixtureBounds() fixture.Bounds {
	return fixture.Bounds{MaxDepth: p.MaxFixtureDepth, MaxProperties: p.MaxFixtureProperties}
}

func defaultDomainDirs() map[string]string {
	return map[string]string{
		"account":                     "Account",
		"advancedSecurity":            "AdvancedSecurity",
		"approvalsAndChecks":          "ApprovalsAndChecks",
		"artifacts":                   "Artifacts",
		"artifactsPackageTypes":       "ArtifactsPackageTypes",
		"audit":                       "Audit",
		"build":                       "Build",
		"core":                        "Core",
		"dashboard":                   "Dashboard",
		"delegatedAuth":               "DelegatedAuth",
		"distributedTask":             "DistributedTask",
		"environments":                "Environments",
		"extensionManagement":         "ExtensionManagement",
		"favorite":                    "Favorite",
		"git":                         "Git",
		"governance":                  "Governance",
		"graph":                       "Graph",
		"hooks":                       "Hooks",
		"ims":                         "IMS",
		"memberEntitlementManagement": "MemberEntitlementManagement",
		"notification":                "Notification",
		"operations":                  "Operations",
		"permissionsReport":           "PermissionsReport",
		"pipelines":                   "Pipelines",
		"policy":                      "Policy",
		"processDefinitions":          "ProcessDefinitions",
		"processadmin":                "ProcessAdmin",
		"processes":                   "Processes",
		"profile":                     "Profile",
		"release":                     "Release",
		"resourceUsage":               "ResourceUsage",
		"search":                      "Search",
		"security":                    "Security",
		"securityRoles":               "SecurityRoles",
		"serviceEndpoint":             "ServiceEndpoint",
		"status":                      "Status",
		"symbol":                      "Symbol",
		"test":                        "Test",
		"testPlan":                    "TestPlan",
		"testResults":                 "TestResults",
		"tfvc":                        "TFVC",
		"tokenAdmin":                  "TokenAdmin",
		"tokenAdministration":         "TokenAdministration",
		"tokens":                      "Tokens",
		"wiki":                        "Wiki",
		"wit":                         "WorkItemTracking",
		"work":                        "Work",
	}
}

func defaultParamEnvOverrides() map[string]string {
	return map[string]string{
		"organization":      SkipParam,
		"api-version":       SkipParam,
		"project":           "PROJECT_ID",
		"repositoryId":      "REPO_ID",
		"buildId":           "BUILD_ID",
		"definitionId":      "DEFINITION_ID",
		"pipelineId":        "PIPELINE_ID",
		"runId":             "RUN_ID",
		"pullRequestId":     "PULL_REQUEST_ID",
		"commitId":          "COMMIT_ID",
		"threadId":          "THREAD_ID",
		"workItemId":        "WORK_ITEM_ID",
		"id":                "RESOURCE_ID",
		"queryId":           "QUERY_ID",
		"wikiIdentifier":    "WIKI_IDENTIFIER",
		"groupId":           "GROUP_ID",
		"environmentId":     "ENVIRONMENT_ID",
		"poolId":            "POOL_ID",
		"configurationId":   "CONFIGURATION_ID",
		"subscriptionId":    "SUBSCRIPTION_ID",
		"releaseId":         "RELEASE_ID",
		"iterationId":       "ITERATION_ID",
		"team":              "TEAM_ID",
		"feedId":            "FEED_ID",
		"packageId":         "PACKAGE_ID",
		"versionId":         "VERSION_ID",
		"planId":            "PLAN_ID",
		"suiteId":           "SUITE_ID",
		"testCaseId":        "TEST_CASE_ID",
		"testPointIds":      "TEST_POINT_IDS",
		"secretFieldName":   "SECRET_FIELD_NAME",
		"endpointId":        "ENDPOINT_ID",
		"typeId":            "TYPE_ID",
		"requestId":         "REQUEST_ID",
		"debugEntryId":      "DEBUG_ENTRY_ID",
		"designtimeId":      "DESIGNTIME_ID",
		"processId":         "PROCESS_ID",
		"witRefName":        "WIT_REF_NAME",
		"fieldRefName":      "FIELD_REF_NAME",
		"groupName":         "GROUP_NAME",
		"pageId":            "PAGE_ID",
		"sectionId":         "SECTION_ID",
		"stateId":           "STATE_ID",
		"ruleId":            "RULE_ID",
		"behaviorRefName":   "BEHAVIOR_REF_NAME",
		"listId":            "LIST_ID",
		"widgetId":          "WIDGET_ID",
		"ownerId":           "OWNER_ID",
		"memberId":          "MEMBER_ID",
		"$top":              "TOP",
		"$skip":             "SKIP",
	}
}
