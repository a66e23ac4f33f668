package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidIdentifier marks a table, column or schema name that is not a plain,
// unqualified SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_$]*$`)

// maxIdentifierLength is NAMEDATALEN-1 in bytes.
const maxIdentifierLength = 63

// CheckIdentifier returns an error wrapping ErrInvalidIdentifier unless name is a
// plain identifier. Schema-qualified names such as "public.users" are rejected.
func CheckIdentifier(name string) error {
	if len(name) > maxIdentifierLength || !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func identifierProblems(where string, names ...string) []string {
	var problems []string
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		if err := CheckIdentifier(n); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", where, err))
		}
	}
	return problems
}

const (
	ConflictSkip   = "skip"
	ConflictUpdate = "update"
)

// MigrationPlan lists the tables to copy from the source database to the target.
type MigrationPlan struct {
	RunKey     string      `yaml:"run_key"`
	BatchSize  int         `yaml:"batch_size"`
	OnConflict string      `yaml:"on_conflict"`
	Schema     string      `yaml:"schema"`
	Tables     []TablePlan `yaml:"tables"`
}

// TablePlan describes how rows of one source table are shaped before being written.
type TablePlan struct {
	Name            string            `yaml:"name"`
	Target          string            `yaml:"target"`
	Key             string            `yaml:"key"`
	Columns         []string          `yaml:"columns"`
	Exclude         []string          `yaml:"exclude"`
	Rename          map[string]string `yaml:"rename"`
	Defaults        map[string]any    `yaml:"defaults"`
	Static          map[string]any    `yaml:"static"`
	StashKeyAs      string            `yaml:"stash_key_as"`
	ConflictColumns []string          `yaml:"conflict_columns"`
	Where           string            `yaml:"where"`
	Limit           int               `yaml:"limit"`
}

func (t TablePlan) TargetName() string {
	if t.Target != "" {
		return t.Target
	}
	return t.Name
}

func (p MigrationPlan) validate() []string {
	var problems []string
	if p.BatchSize < 1 || p.BatchSize > 10000 {
		problems = append(problems, fmt.Sprintf("migration.batch_size %d must be between 1 and 10000", p.BatchSize))
	}
	if p.OnConflict != ConflictSkip && p.OnConflict != ConflictUpdate {
		problems = append(problems, fmt.Sprintf("migration.on_conflict %q must be %q or %q", p.OnConflict, ConflictSkip, ConflictUpdate))
	}
	problems = append(problems, identifierProblems("migration.schema", p.Schema)...)
	seen := make(map[string]bool)
	for i, t := range p.Tables {
		if t.Name == "" {
			problems = append(problems, fmt.Sprintf("migration.tables[%d] has no name", i))
			continue
		}
		where := "migration table " + t.Name
		problems = append(problems, identifierProblems(where, t.Name, t.Target, t.Key)...)
		problems = append(problems, identifierProblems(where+" columns", t.Columns...)...)
		problems = append(problems, identifierProblems(where+" exclude", t.Exclude...)...)
		problems = append(problems, identifierProblems(where+" conflict_columns", t.ConflictColumns...)...)
		for from, to := range t.Rename {
			problems = append(problems, identifierProblems(where+" rename", from, to)...)
		}
		if seen[t.Name] {
			problems = append(problems, fmt.Sprintf("migration table %s listed twice", t.Name))
		}
		seen[t.Name] = true
		for from, to := range t.Rename {
			if strings.TrimSpace(to) == "" {
				problems = append(problems, fmt.Sprintf("migration table %s renames %s to an empty column", t.Name, from))
			}
		}
		if t.StashKeyAs != "" && !strings.Contains(t.StashKeyAs, ".") {
			problems = append(problems, fmt.Sprintf("migration table %s stash_key_as must look like column.field", t.Name))
		}
		if t.Limit < 0 {
			problems = append(problems, fmt.Sprintf("migration table %s has negative limit", t.Name))
		}
	}
	return problems
}

// ProbePlan describes which Cloudinary URLs to guess and how hard to hit the CDN.
type ProbePlan struct {
	Concurrency    int            `yaml:"concurrency"`
	RequestsPerSec float64        `yaml:"requests_per_sec"`
	Timeout        time.Duration  `yaml:"timeout"`
	Patterns       []ProbePattern `yaml:"patterns"`
}

// ProbePattern expands to one candidate URL per combination of its lists.
type ProbePattern struct {
	Folder     string   `yaml:"folder"`
	Name       string   `yaml:"name"`
	IDs        []string `yaml:"ids"`
	IDFrom     int      `yaml:"id_from"`
	IDTo       int      `yaml:"id_to"`
	Prefixes   []string `yaml:"prefixes"`
	Versions   []string `yaml:"versions"`
	Transforms []string `yaml:"transforms"`
	Extensions []string `yaml:"extensions"`
}

func (p ProbePlan) validate() []string {
	var problems []string
	if p.Concurrency < 1 {
		problems = append(problems, "probe.concurrency must be at least 1")
	}
	if p.RequestsPerSec <= 0 {
		problems = append(problems, "probe.requests_per_sec must be positive")
	}
	for i, pat := range p.Patterns {
		if pat.Name == "" {
			problems = append(problems, fmt.Sprintf("probe.patterns[%d] has no name template", i))
		}
		if pat.IDTo < pat.IDFrom {
			problems = append(problems, fmt.Sprintf("probe.patterns[%d] id_to is before id_from", i))
		}
	}
	return problems
}

// AuditPlan holds operator-defined SQL checks run next to the built-in ones.
type AuditPlan struct {
	SampleSize int           `yaml:"sample_size"`
	Checks     []CustomCheck `yaml:"checks"`
}

type CustomCheck struct {
	Name     string `yaml:"name"`
	Severity string `yaml:"severity"`
	SQL      string `yaml:"sql"`
}

func (a AuditPlan) validate() []string {
	var problems []string
	for i, c := range a.Checks {
		if c.Name == "" {
			problems = append(problems, fmt.Sprintf("audit.checks[%d] has no name", i))
		}
		switch c.Severity {
		case "", "info", "warn", "error":
		default:
			problems = append(problems, fmt.Sprintf("audit check %s has unknown severity %q", c.Name, c.Severity))
		}
		if strings.TrimSpace(c.SQL) == "" {
			problems = append(problems, fmt.Sprintf("audit check %s has no sql", c.Name))
		}
	}
	return problems
}

// RLSPlan is the row level security `schema apply --enable-rls` sets up after the DDL.
type RLSPlan struct {
	// Tables to enable RLS on; empty means every base table of the schema.
	Tables   []string     `yaml:"tables"`
	Policies []PolicyPlan `yaml:"policies"`
}

type PolicyPlan struct {
	Name    string `yaml:"name"`
	Table   string `yaml:"table"`
	Command string `yaml:"command"`
	Using   string `yaml:"using"`
	Check   string `yaml:"check"`
}

// PolicyCommand returns the upper-cased command, ALL when unset.
func (p PolicyPlan) PolicyCommand() string {
	if p.Command == "" {
		return "ALL"
	}
	return strings.ToUpper(p.Command)
}

func (r RLSPlan) validate() []string {
	problems := identifierProblems("rls.tables", r.Tables...)
	for i, p := range r.Policies {
		if p.Name == "" || p.Table == "" {
			problems = append(problems, fmt.Sprintf("rls.policies[%d] needs a name and a table", i))
			continue
		}
		problems = append(problems, identifierProblems("rls policy "+p.Name, p.Table)...)
		switch p.PolicyCommand() {
		case "ALL", "UPDATE":
		case "SELECT", "DELETE":
			if p.Check != "" {
				problems = append(problems, fmt.Sprintf("rls policy %s: %s policies take no check expression", p.Name, p.PolicyCommand()))
			}
		case "INSERT":
			if p.Using != "" {
				problems = append(problems, fmt.Sprintf("rls policy %s: INSERT policies take no using expression", p.Name))
			}
		default:
			problems = append(problems, fmt.Sprintf("rls policy %s has unknown command %q", p.Name, p.Command))
		}
		if p.Using == "" && p.Check == "" {
			problems = append(problems, fmt.Sprintf("rls policy %s needs a using or check expression", p.Name))
		}
	}
	return problems
}
