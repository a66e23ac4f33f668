package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"sayu-ops/internal/config"
	"sayu-ops/internal/database"
	"sayu-ops/internal/metrics"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

var ErrQueryNotAllowed = errors.New("query not allowed")

const defaultAuditSampleSize = 5

// AuditQuerier runs read-only SQL against the audited database.
type AuditQuerier interface {
	Count(ctx context.Context, query string, args ...any) (int64, error)
	Sample(ctx context.Context, query string, limit int, args ...any) (*repositories.QueryResult, error)
}

// Catalog describes the tables of the audited database.
type Catalog interface {
	Describe(ctx context.Context, schema string) ([]models.Table, error)
}

type auditCheck struct {
	name        string
	description string
	severity    string
	requires    map[string][]string
	query       string
	args        []any
}

type AuditService struct {
	db      AuditQuerier
	catalog Catalog
	schema  string
	log     zerolog.Logger
	now     func() time.Time
}

func NewAuditService(db AuditQuerier, catalog Catalog, schema string, log zerolog.Logger) *AuditService {
	if schema == "" {
		schema = "public"
	}
	return &AuditService{db: db, catalog: catalog, schema: schema, log: log, now: time.Now}
}

var (
	sqlCommentPattern   = regexp.MustCompile(`--[^\n]*|/\*[\s\S]*?\*/`)
	sqlLiteralPattern   = regexp.MustCompile(`'(?:[^']|'')*'`)
	writeKeywordPattern = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|MERGE|DROP|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|COPY|VACUUM|CALL|REFRESH)\b`)
	// functions with side effects
	sideEffectPattern = regexp.MustCompile(`\b(NEXTVAL|SETVAL|PG_TERMINATE_BACKEND|PG_CANCEL_BACKEND|PG_RELOAD_CONF|PG_ROTATE_LOGFILE|PG_SLEEP\w*|PG_ADVISORY\w*|PG_NOTIFY|SET_CONFIG|LO_\w+|DBLINK\w*|PG_READ_\w+|PG_LS_\w+)\s*\(`)
)

// ValidateSelect accepts a single read-only SELECT (or WITH ... SELECT) statement and
// returns it without comments or a trailing semicolon.
func ValidateSelect(query string) (string, error) {
	cleaned := strings.TrimSpace(sqlCommentPattern.ReplaceAllString(query, " "))
	if cleaned == "" {
		return "", fmt.Errorf("%w: query cannot be empty", ErrQueryNotAllowed)
	}

	cleaned = strings.TrimSpace(strings.TrimRight(cleaned, "; \t\n"))
	normalized := strings.ToUpper(sqlLiteralPattern.ReplaceAllString(cleaned, "''"))

	if strings.Contains(normalized, ";") {
		return "", fmt.Errorf("%w: multiple statements are not allowed", ErrQueryNotAllowed)
	}
	if !strings.HasPrefix(normalized, "SELECT") && !strings.HasPrefix(normalized, "WITH") {
		return "", fmt.Errorf("%w: only SELECT statements can be used as checks", ErrQueryNotAllowed)
	}
	if kw := writeKeywordPattern.FindString(normalized); kw != "" {
		return "", fmt.Errorf("%w: operation '%s' is not allowed", ErrQueryNotAllowed, kw)
	}
	if fn := sideEffectPattern.FindStringSubmatch(normalized); fn != nil {
		return "", fmt.Errorf("%w: function %s() is not allowed", ErrQueryNotAllowed, strings.ToLower(fn[1]))
	}
	return cleaned, nil
}

// Run executes the built-in checks, the foreign key checks and plan's custom checks.
// Individual check failures end up in their Finding; the error is for catalog failures.
func (s *AuditService) Run(ctx context.Context, plan config.AuditPlan) (*models.AuditReport, error) {
	tables, err := s.catalog.Describe(ctx, s.schema)
	if err != nil {
		return nil, fmt.Errorf("describe audited database: %w", err)
	}
	byName := make(map[string]models.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	sampleSize := plan.SampleSize
	if sampleSize <= 0 {
		sampleSize = defaultAuditSampleSize
	}

	checks := s.builtinChecks()
	checks = append(checks, s.orphanChecks(tables)...)

	report := &models.AuditReport{Findings: []models.Finding{}}
	for _, c := range checks {
		if missing := missingRequirement(byName, c.requires); missing != "" {
			report.Findings = append(report.Findings, models.Finding{
				Check:       c.name,
				Description: c.description,
				Severity:    c.severity,
				Skipped:     true,
				Error:       missing + " not found",
			})
			s.log.Debug().Str("check", c.name).Str("missing", missing).Msg("audit check skipped")
			continue
		}
		report.Findings = append(report.Findings, s.runCheck(ctx, c, sampleSize))
	}

	for _, cc := range plan.Checks {
		severity := cc.Severity
		if severity == "" {
			severity = models.SeverityWarn
		}
		query, err := ValidateSelect(cc.SQL)
		if err != nil {
			report.Findings = append(report.Findings, models.Finding{
				Check:    cc.Name,
				Severity: severity,
				Error:    err.Error(),
			})
			continue
		}
		report.Findings = append(report.Findings, s.runCheck(ctx, auditCheck{
			name:     cc.Name,
			severity: severity,
			query:    query,
		}, sampleSize))
	}

	return report, nil
}

func (s *AuditService) runCheck(ctx context.Context, c auditCheck, sampleSize int) models.Finding {
	f := models.Finding{Check: c.name, Description: c.description, Severity: c.severity}

	count, err := s.db.Count(ctx, c.query, c.args...)
	if database.IsUndefined(err) {
		f.Skipped = true
		f.Error = err.Error()
		s.log.Debug().Str("check", c.name).Err(err).Msg("audit check skipped")
		return f
	}
	if err != nil {
		f.Error = err.Error()
		s.log.Warn().Str("check", c.name).Err(err).Msg("audit check failed")
		return f
	}
	f.Count = count
	if count == 0 {
		return f
	}

	metrics.AuditFindings.WithLabelValues(c.name, c.severity).Add(float64(count))
	sample, err := s.db.Sample(ctx, c.query, sampleSize, c.args...)
	if err != nil {
		s.log.Warn().Str("check", c.name).Err(err).Msg("audit sample failed")
	} else {
		f.Samples = sample.Rows
	}
	s.log.Info().Str("check", c.name).Str("severity", c.severity).Int64("count", count).Msg("audit finding")
	return f
}

func (s *AuditService) table(name string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(name)
}

func (s *AuditService) builtinChecks() []auditCheck {
	exhibitions := s.table("exhibitions")
	today := s.now().UTC().Format(models.DateLayout)

	return []auditCheck{
		{
			name:        "exhibitions_missing_required",
			description: "exhibitions without a title, venue or dates",
			severity:    models.SeverityError,
			requires:    map[string][]string{"exhibitions": {"id", "title_local", "title_en", "venue_name", "start_date", "end_date"}},
			query: `SELECT id, title_local, title_en, venue_name, start_date, end_date FROM ` + exhibitions + `
				WHERE COALESCE(NULLIF(btrim(title_local), ''), NULLIF(btrim(title_en), '')) IS NULL
					OR COALESCE(btrim(venue_name), '') = ''
					OR start_date IS NULL
					OR end_date IS NULL`,
		},
		{
			name:        "exhibitions_date_order",
			description: "exhibitions ending before they start",
			severity:    models.SeverityError,
			requires:    map[string][]string{"exhibitions": {"id", "title_local", "start_date", "end_date"}},
			query: `SELECT id, title_local, start_date, end_date FROM ` + exhibitions + `
				WHERE end_date < start_date`,
		},
		{
			name:        "exhibitions_status_mismatch",
			description: "exhibition status disagrees with its dates",
			severity:    models.SeverityWarn,
			requires:    map[string][]string{"exhibitions": {"id", "title_local", "status", "start_date", "end_date"}},
			query: `SELECT id, title_local, status, start_date, end_date FROM ` + exhibitions + `
				WHERE start_date IS NOT NULL AND end_date IS NOT NULL
					AND status IS DISTINCT FROM 'cancelled'
					AND status IS DISTINCT FROM CASE
						WHEN $1::date < start_date THEN 'upcoming'
						WHEN $1::date > end_date THEN 'ended'
						ELSE 'ongoing'
					END`,
			args: []any{today},
		},
		{
			name:        "exhibitions_duplicates",
			description: "exhibitions sharing title, venue and start date",
			severity:    models.SeverityWarn,
			requires:    map[string][]string{"exhibitions": {"title_local", "title_en", "venue_name", "start_date"}},
			query: `SELECT lower(COALESCE(title_local, title_en)) AS title, lower(venue_name) AS venue_name, start_date, COUNT(*) AS copies
				FROM ` + exhibitions + `
				GROUP BY 1, 2, 3
				HAVING COUNT(*) > 1`,
		},
		{
			name:        "artists_missing_name",
			description: "artists without a name",
			severity:    models.SeverityWarn,
			requires:    map[string][]string{"artists": {"id", "name"}},
			query: `SELECT id, name FROM ` + s.table("artists") + `
				WHERE name IS NULL OR btrim(name) = ''`,
		},
		{
			name:        "users_invalid_apt_type",
			description: "users whose personality_type is not an APT code",
			severity:    models.SeverityError,
			requires:    map[string][]string{"users": {"id", "personality_type"}},
			query: `SELECT id, personality_type FROM ` + s.table("users") + `
				WHERE personality_type IS NOT NULL AND NOT (personality_type = ANY($1))`,
			args: []any{pq.Array(models.APTTypes())},
		},
	}
}

// orphanChecks builds one check per foreign key constraint: child rows whose key has no parent.
func (s *AuditService) orphanChecks(tables []models.Table) []auditCheck {
	var checks []auditCheck
	for _, t := range tables {
		byConstraint := make(map[string][]models.ForeignKey)
		var names []string
		for _, fk := range t.ForeignKeys {
			if _, ok := byConstraint[fk.ConstraintName]; !ok {
				names = append(names, fk.ConstraintName)
			}
			byConstraint[fk.ConstraintName] = append(byConstraint[fk.ConstraintName], fk)
		}
		sort.Strings(names)

		for _, name := range names {
			fks := byConstraint[name]
			parent := fks[0].ToTable

			var childCols, join, notNull []string
			for _, fk := range fks {
				c, p := pq.QuoteIdentifier(fk.FromColumn), pq.QuoteIdentifier(fk.ToColumn)
				childCols = append(childCols, "c."+c)
				join = append(join, "p."+p+" = c."+c)
				notNull = append(notNull, "c."+c+" IS NOT NULL")
			}
			firstParent := pq.QuoteIdentifier(fks[0].ToColumn)

			checks = append(checks, auditCheck{
				name:        "orphan_foreign_keys",
				description: fmt.Sprintf("%s.%s references missing %s.%s", t.Name, fks[0].FromColumn, parent, fks[0].ToColumn),
				severity:    models.SeverityError,
				query: fmt.Sprintf(`SELECT %s FROM %s c LEFT JOIN %s p ON %s WHERE %s AND p.%s IS NULL`,
					strings.Join(childCols, ", "),
					s.table(t.Name), s.table(parent),
					strings.Join(join, " AND "),
					strings.Join(notNull, " AND "),
					firstParent,
				),
			})
		}
	}
	return checks
}

func missingRequirement(tables map[string]models.Table, requires map[string][]string) string {
	names := make([]string, 0, len(requires))
	for name := range requires {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, ok := tables[name]
		if !ok {
			return "table " + name
		}
		for _, col := range requires[name] {
			if !t.HasColumn(col) {
				return "column " + name + "." + col
			}
		}
	}
	return ""
}
