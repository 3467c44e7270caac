package models

// Severity grades an Issue. It is advisory only; issues are never ranked.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue is a single finding recorded during a run.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Title    string   `json:"title" yaml:"title"`
	Details  string   `json:"details" yaml:"details"`
}

// Step is one completed interaction phase and the screenshot taken after it.
type Step struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Screenshot  string `json:"screenshot" yaml:"screenshot"`
	Notes       string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Analysis is the response for POST /api/v1/run.
type Analysis struct {
	RunID       string   `json:"run_id" yaml:"run_id"`
	Steps       []Step   `json:"steps" yaml:"steps"`
	Issues      []Issue  `json:"issues" yaml:"issues"`
	Summary     string   `json:"summary" yaml:"summary"`
	Screenshots []string `json:"screenshots" yaml:"screenshots"`
}

// NewAnalysis returns an empty Analysis whose slices encode as [] rather than null.
func NewAnalysis(runID string) *Analysis {
	return &Analysis{
		RunID:       runID,
		Steps:       []Step{},
		Issues:      []Issue{},
		Screenshots: []string{},
	}
}

// AddIssue appends a finding.
func (a *Analysis) AddIssue(sev Severity, title, details string) {
	a.Issues = append(a.Issues, Issue{Severity: sev, Title: title, Details: details})
}

// AddStep appends a completed step together with its screenshot reference.
func (a *Analysis) AddStep(step Step) {
	a.Steps = append(a.Steps, step)
	a.Screenshots = append(a.Screenshots, step.Screenshot)
}

// CountSeverity returns how many issues carry the given severity.
func (a *Analysis) CountSeverity(sev Severity) int {
	n := 0
	for _, is := range a.Issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}
