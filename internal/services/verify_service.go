package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TableCounter returns exact row counts.
type TableCounter interface {
	Count(ctx context.Context, table string) (int64, error)
}

// FilteredCounter counts the rows a plan's where and limit select.
type FilteredCounter interface {
	CountWhere(ctx context.Context, table, where string, limit int) (int64, error)
}

// KeyReader lists and looks up key values; only Postgres endpoints provide it.
type KeyReader interface {
	FirstKeys(ctx context.Context, table, key, where string, n int) ([]string, error)
	ExistingKeys(ctx context.Context, table, key string, keys []string) (map[string]bool, error)
}

// PostgresTables adapts the row and schema repositories to TableCounter and KeyReader.
type PostgresTables struct {
	schemaName string
	schema     *repositories.SchemaRepository
	rows       *repositories.RowRepository
}

func NewPostgresTables(pool *pgxpool.Pool, schemaName string) *PostgresTables {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresTables{
		schemaName: schemaName,
		schema:     repositories.NewSchemaRepository(pool),
		rows:       repositories.NewRowRepository(pool),
	}
}

func (p *PostgresTables) Count(ctx context.Context, table string) (int64, error) {
	return p.schema.CountRows(ctx, p.schemaName, table)
}

func (p *PostgresTables) CountWhere(ctx context.Context, table, where string, limit int) (int64, error) {
	return p.rows.CountWhere(ctx, p.schemaName, table, where, limit)
}

func (p *PostgresTables) FirstKeys(ctx context.Context, table, key, where string, n int) ([]string, error) {
	return p.rows.FirstKeys(ctx, p.schemaName, table, key, where, n)
}

func (p *PostgresTables) ExistingKeys(ctx context.Context, table, key string, keys []string) (map[string]bool, error) {
	return p.rows.ExistingKeys(ctx, p.schemaName, table, key, keys)
}

// VerifyTable pairs a source table with its target. SourceKey and TargetKey are set
// when the key survives the migration and can be sampled. Where and Limit repeat the
// plan's filter so only migrated source rows are counted.
type VerifyTable struct {
	Source    string
	Target    string
	SourceKey string
	TargetKey string
	Where     string
	Limit     int
}

// VerifyTables derives the pairs to compare from a migration plan. With no tables in
// the plan every listed source table is compared under the same name.
func VerifyTables(plan config.MigrationPlan, sourceTables []models.Table) []VerifyTable {
	if len(plan.Tables) == 0 {
		var out []VerifyTable
		for _, t := range sourceTables {
			if isOpsTable(t.Name) {
				continue
			}
			vt := VerifyTable{Source: t.Name, Target: t.Name}
			if len(t.PrimaryKeys) == 1 {
				vt.SourceKey, vt.TargetKey = t.PrimaryKeys[0], t.PrimaryKeys[0]
			}
			out = append(out, vt)
		}
		return out
	}

	byName := make(map[string]models.Table, len(sourceTables))
	for _, t := range sourceTables {
		byName[t.Name] = t
	}

	out := make([]VerifyTable, 0, len(plan.Tables))
	for _, tp := range plan.Tables {
		vt := VerifyTable{Source: tp.Name, Target: tp.TargetName(), Where: tp.Where, Limit: tp.Limit}
		key := tp.Key
		if key == "" {
			if t, ok := byName[tp.Name]; ok && len(t.PrimaryKeys) == 1 {
				key = t.PrimaryKeys[0]
			}
		}
		excluded := utils.Contains(tp.Exclude, key) || (len(tp.Columns) > 0 && !utils.Contains(tp.Columns, key))
		if key != "" && !excluded {
			vt.SourceKey = key
			vt.TargetKey = key
			if renamed, ok := tp.Rename[key]; ok {
				vt.TargetKey = renamed
			}
		}
		out = append(out, vt)
	}
	return out
}

// VerifyService compares source and target after a migration.
type VerifyService struct {
	source TableCounter
	target TableCounter
}

func NewVerifyService(source, target TableCounter) *VerifyService {
	return &VerifyService{source: source, target: target}
}

// Compare counts rows on both sides. When sample is positive and both sides can read
// keys, the first sample source keys are looked up in the target as well.
func (s *VerifyService) Compare(ctx context.Context, tables []VerifyTable, sample int) models.VerifyReport {
	report := models.VerifyReport{Tables: make([]models.VerifyResult, 0, len(tables))}

	for _, vt := range tables {
		res := models.VerifyResult{Table: vt.Source, Target: vt.Target}

		src, err := s.sourceCount(ctx, vt)
		if err != nil {
			res.Status = models.VerifyError
			res.Error = "source: " + err.Error()
			report.Tables = append(report.Tables, res)
			continue
		}
		dst, err := s.target.Count(ctx, vt.Target)
		if err != nil {
			res.SourceCount = src
			res.Status = models.VerifyError
			res.Error = "target: " + err.Error()
			report.Tables = append(report.Tables, res)
			continue
		}
		res.SourceCount, res.TargetCount = src, dst

		switch {
		case dst < src:
			res.Status = models.VerifyMissing
		case dst > src:
			res.Status = models.VerifySurplus
		default:
			res.Status = models.VerifyMatch
		}

		if sample > 0 && vt.SourceKey != "" {
			missing, err := s.sampleKeys(ctx, vt, sample)
			if err != nil {
				res.Status = models.VerifyError
				res.Error = "sample: " + err.Error()
			} else if len(missing) > 0 {
				res.MissingKeys = missing
				if res.Status == models.VerifyMatch {
					res.Status = models.VerifyMissing
				}
			}
		}

		report.Tables = append(report.Tables, res)
	}

	return report
}

func (s *VerifyService) sourceCount(ctx context.Context, vt VerifyTable) (int64, error) {
	if strings.TrimSpace(vt.Where) == "" && vt.Limit <= 0 {
		return s.source.Count(ctx, vt.Source)
	}
	fc, ok := s.source.(FilteredCounter)
	if !ok {
		return 0, fmt.Errorf("cannot apply the plan's where/limit to %s", vt.Source)
	}
	return fc.CountWhere(ctx, vt.Source, vt.Where, vt.Limit)
}

func (s *VerifyService) sampleKeys(ctx context.Context, vt VerifyTable, n int) ([]string, error) {
	srcKeys, ok := s.source.(KeyReader)
	if !ok {
		return nil, nil
	}
	dstKeys, ok := s.target.(KeyReader)
	if !ok {
		return nil, nil
	}

	if vt.Limit > 0 && n > vt.Limit {
		n = vt.Limit
	}
	keys, err := srcKeys.FirstKeys(ctx, vt.Source, vt.SourceKey, vt.Where, n)
	if err != nil {
		return nil, err
	}
	found, err := dstKeys.ExistingKeys(ctx, vt.Target, vt.TargetKey, keys)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, k := range keys {
		if !found[k] {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// PlanVerifier compares every table a migration plan touches.
type PlanVerifier struct {
	Service *VerifyService
	Source  Source
	Plan    config.MigrationPlan
	Sample  int
}

func (v PlanVerifier) Verify(ctx context.Context) (*models.VerifyReport, error) {
	schema := v.Plan.Schema
	if schema == "" {
		schema = "public"
	}
	tables, err := v.Source.Tables(ctx, schema)
	if err != nil {
		return nil, err
	}
	report := v.Service.Compare(ctx, VerifyTables(v.Plan, tables), v.Sample)
	return &report, nil
}
