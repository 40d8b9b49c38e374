package drift

import "fmt"

// Status is the terminal state of one domain check.
type Status string

const (
	StatusInSync     Status = "in-sync"
	StatusChanged    Status = "changed"
	StatusUnverified Status = "unverified"
)

// ChangeType classifies a detected change.
type ChangeType string

const (
	Breaking    ChangeType = "breaking"
	NonBreaking ChangeType = "non-breaking"
	InSync      ChangeType = "in-sync"
)

// Classification describes the structural delta between two spec versions.
type Classification struct {
	ChangeType         ChangeType `json:"change_type"`
	AddedPaths         []string   `json:"added_paths"`
	RemovedPaths       []string   `json:"removed_paths"`
	AddedDefinitions   []string   `json:"added_definitions"`
	RemovedDefinitions []string   `json:"removed_definitions"`
	TypeChanges        []string   `json:"type_changes"`
	Summary            string     `json:"summary"`
}

// Report is the change report for one domain.
type Report struct {
	Domain         string         `json:"domain"`
	LocalDir       string         `json:"local_dir"`
	PreviousHash   *string        `json:"previous_hash"`
	NewHash        string         `json:"new_hash"`
	ChangeType     ChangeType     `json:"change_type"`
	Classification Classification `json:"classification"`
	DetectedAt     string         `json:"detected_at"`
	SpecURL        string         `json:"spec_url"`
	// Opaque is set when the new content could not be parsed for diffing.
	Opaque bool `json:"opaque,omitempty"`
}

// Unverified names a domain whose spec could not be fetched.
type Unverified struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// RunReport is the document printed at the end of a sync check.
type RunReport struct {
	Status         string       `json:"status"`
	DomainsChecked []string     `json:"domains_checked"`
	Deltas         []Report     `json:"deltas"`
	Unverified     []Unverified `json:"unverified"`
}

// Run report statuses.
const (
	RunInSync          = "in-sync"
	RunChangesDetected = "changes-detected"
)

// NewRunReport assembles the run report from per-domain outcomes.
func NewRunReport(domains []string, outcomes []Outcome) RunReport {
	r := RunReport{
		Status:         RunInSync,
		DomainsChecked: append([]string{}, domains...),
		Deltas:         []Report{},
		Unverified:     []Unverified{},
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusChanged:
			r.Deltas = append(r.Deltas, *o.Report)
		case StatusUnverified:
			r.Unverified = append(r.Unverified, Unverified{Domain: o.Domain, Reason: o.Err.Error()})
		}
	}
	if len(r.Deltas) > 0 {
		r.Status = RunChangesDetected
	}
	return r
}

// StatusLine formats the per-domain progress line.
func StatusLine(o Outcome) string {
	switch o.Status {
	case StatusChanged:
		return fmt.Sprintf("  CHANGED  %-8s  %-13s  %s", o.Domain, o.Report.ChangeType, o.Report.Classification.Summary)
	case StatusUnverified:
		return fmt.Sprintf("  UNVERIFIED  %s  %v", o.Domain, o.Err)
	}
	return "  IN-SYNC  " + o.Domain
}
