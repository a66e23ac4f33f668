package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var ErrEmptyScript = errors.New("script holds no statements")

type ApplyOptions struct {
	EnableRLS bool
	RLS       config.RLSPlan
	DryRun    bool
}

// SchemaApplier runs a DDL script against the target in a single transaction.
type SchemaApplier struct {
	pool   *pgxpool.Pool
	schema string
	log    zerolog.Logger
}

func NewSchemaApplier(pool *pgxpool.Pool, schema string, log zerolog.Logger) *SchemaApplier {
	if schema == "" {
		schema = "public"
	}
	return &SchemaApplier{pool: pool, schema: schema, log: log}
}

// Apply executes every statement of script, then with EnableRLS turns on row level
// security and (re)creates the configured policies. Any failure rolls the whole
// script back. A dry run executes everything and rolls back at the end.
func (a *SchemaApplier) Apply(ctx context.Context, name, script string, opts ApplyOptions) (*models.SchemaApplyResult, error) {
	if err := config.CheckIdentifier(a.schema); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	stmts := SplitStatements(script)
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyScript)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	res := &models.SchemaApplyResult{File: name, Schema: a.schema, DryRun: opts.DryRun}
	for i, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("statement %d (%s): %w", i+1, statementHead(stmt), err)
		}
		res.Statements++
		a.log.Debug().Int("statement", i+1).Str("sql", statementHead(stmt)).Msg("applied")
	}

	if opts.EnableRLS {
		if err := a.enableRLS(ctx, tx, opts.RLS, res); err != nil {
			return nil, err
		}
	}

	if opts.DryRun {
		a.log.Info().Int("statements", res.Statements).Msg("dry run, rolling back")
		return res, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	a.log.Info().
		Int("statements", res.Statements).
		Int("rls_tables", len(res.RLSEnabled)).
		Int("policies", len(res.Policies)).
		Msg("schema applied")
	return res, nil
}

func (a *SchemaApplier) enableRLS(ctx context.Context, tx pgx.Tx, plan config.RLSPlan, res *models.SchemaApplyResult) error {
	tables := plan.Tables
	if len(tables) == 0 {
		all, err := repositories.NewSchemaRepository(tx).GetTables(ctx, a.schema)
		if err != nil {
			return err
		}
		for _, t := range all {
			if !isOpsTable(t) {
				tables = append(tables, t)
			}
		}
	}

	for _, t := range tables {
		stmt := "ALTER TABLE " + pgx.Identifier{a.schema, t}.Sanitize() + " ENABLE ROW LEVEL SECURITY"
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("enable rls on %s: %w", t, err)
		}
		res.RLSEnabled = append(res.RLSEnabled, t)
	}

	for _, p := range plan.Policies {
		for _, stmt := range policyStatements(a.schema, p) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("policy %s on %s: %w", p.Name, p.Table, err)
			}
		}
		res.Policies = append(res.Policies, p.Table+"."+p.Name)
	}
	return nil
}

// policyStatements drops and recreates p so re-applying a script converges.
func policyStatements(schema string, p config.PolicyPlan) []string {
	name := pgx.Identifier{p.Name}.Sanitize()
	target := pgx.Identifier{schema, p.Table}.Sanitize()

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s FOR %s", name, target, p.PolicyCommand())
	if p.Using != "" {
		fmt.Fprintf(&b, " USING (%s)", p.Using)
	}
	if p.Check != "" {
		fmt.Fprintf(&b, " WITH CHECK (%s)", p.Check)
	}
	return []string{
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", name, target),
		b.String(),
	}
}

func statementHead(stmt string) string {
	return utils.Truncate(strings.Join(strings.Fields(stmt), " "), 80)
}

// SplitStatements cuts a SQL script on top-level semicolons. Quoted strings, quoted
// identifiers, dollar-quoted bodies and comments never split a statement. Comments in
// front of a statement and comment-only statements are dropped.
func SplitStatements(script string) []string {
	var (
		out   []string
		first = -1
	)
	flush := func(end int) {
		if first >= 0 {
			out = append(out, strings.TrimSpace(script[first:end]))
		}
		first = -1
	}
	mark := func(i int) {
		if first < 0 {
			first = i
		}
	}

	for i := 0; i < len(script); {
		c := script[i]
		switch {
		case c == ';':
			flush(i)
			i++
		case strings.HasPrefix(script[i:], "--"):
			if j := strings.IndexByte(script[i:], '\n'); j >= 0 {
				i += j + 1
			} else {
				i = len(script)
			}
		case strings.HasPrefix(script[i:], "/*"):
			i = skipBlockComment(script, i)
		case c == '\'':
			mark(i)
			escapes := i > 0 && (script[i-1] == 'E' || script[i-1] == 'e') && (i == 1 || !isIdentByte(script[i-2]))
			i = skipQuoted(script, i, '\'', escapes)
		case c == '"':
			mark(i)
			i = skipQuoted(script, i, '"', false)
		case c == '$':
			mark(i)
			tag, ok := dollarTag(script, i)
			if !ok {
				i++
				continue
			}
			if j := strings.Index(script[i+len(tag):], tag); j >= 0 {
				i += len(tag) + j + len(tag)
			} else {
				i = len(script)
			}
		default:
			if !unicode.IsSpace(rune(c)) {
				mark(i)
			}
			i++
		}
	}
	flush(len(script))
	return out
}

func skipQuoted(s string, i int, quote byte, escapes bool) int {
	for j := i + 1; j < len(s); j++ {
		switch {
		case escapes && s[j] == '\\':
			j++
		case s[j] == quote:
			if j+1 < len(s) && s[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

// skipBlockComment returns the index after the comment opened at i. Block comments nest.
func skipBlockComment(s string, i int) int {
	depth := 0
	for j := i; j < len(s); {
		switch {
		case strings.HasPrefix(s[j:], "/*"):
			depth++
			j += 2
		case strings.HasPrefix(s[j:], "*/"):
			depth--
			j += 2
			if depth == 0 {
				return j
			}
		default:
			j++
		}
	}
	return len(s)
}

// dollarTag returns the $tag$ opening at i. Positional parameters such as $1 are not tags.
func dollarTag(s string, i int) (string, bool) {
	if i > 0 && isIdentByte(s[i-1]) {
		return "", false
	}
	j := i + 1
	for j < len(s) && isIdentByte(s[j]) {
		if j == i+1 && s[j] >= '0' && s[j] <= '9' {
			return "", false
		}
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return "", false
	}
	return s[i : j+1], true
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
