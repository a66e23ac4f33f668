package models

const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Finding is the result of one data-quality check.
type Finding struct {
	Check       string           `json:"check"`
	Description string           `json:"description,omitempty"`
	Severity    string           `json:"severity"`
	Count       int64            `json:"count"`
	Samples     []map[string]any `json:"samples,omitempty"`
	Skipped     bool             `json:"skipped,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// AuditReport collects every finding of an audit run.
type AuditReport struct {
	Findings []Finding `json:"findings"`
}

// Failed reports whether any error-severity check found rows or could not run.
// Skipped checks never fail a report.
func (r AuditReport) Failed() bool {
	for _, f := range r.Findings {
		if f.Skipped {
			continue
		}
		if f.Severity == SeverityError && (f.Count > 0 || f.Error != "") {
			return true
		}
	}
	return false
}

// VerifyResult compares one table between source and target.
type VerifyResult struct {
	Table       string   `json:"table"`
	Target      string   `json:"target"`
	SourceCount int64    `json:"source_count"`
	TargetCount int64    `json:"target_count"`
	Status      string   `json:"status"`
	MissingKeys []string `json:"missing_keys,omitempty"`
	Error       string   `json:"error,omitempty"`
}

const (
	VerifyMatch   = "match"
	VerifyMissing = "missing"
	VerifySurplus = "surplus"
	VerifyError   = "error"
)

type VerifyReport struct {
	Tables []VerifyResult `json:"tables"`
}

func (r VerifyReport) AllMatch() bool {
	for _, t := range r.Tables {
		if t.Status != VerifyMatch {
			return false
		}
	}
	return true
}
