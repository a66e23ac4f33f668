package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"
	"sayu-ops/internal/utils"
)

const (
	maxJunctionTableColumns = 6
	minJunctionTableFKs     = 2
)

// SchemaReader is the introspection surface SchemaService needs.
type SchemaReader interface {
	GetTables(ctx context.Context, schema string) ([]string, error)
	GetColumns(ctx context.Context, schema, table string) ([]models.Column, error)
	GetPrimaryKeys(ctx context.Context, schema, table string) ([]string, error)
	GetForeignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error)
	GetUniqueConstraintsBatch(ctx context.Context, schema string, tableColumns []repositories.TableColumn) (map[string]bool, error)
}

type SchemaService struct {
	repo SchemaReader
}

func NewSchemaService(repo SchemaReader) *SchemaService {
	return &SchemaService{repo: repo}
}

// Describe returns every base table of schema with its columns and keys.
func (s *SchemaService) Describe(ctx context.Context, schema string) ([]models.Table, error) {
	if schema == "" {
		schema = "public"
	}

	tableNames, err := s.repo.GetTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	tables := make([]models.Table, 0, len(tableNames))

	for _, tableName := range tableNames {
		table := models.Table{Name: tableName}

		columns, err := s.repo.GetColumns(ctx, schema, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", tableName, err)
		}
		table.Columns = columns

		pks, err := s.repo.GetPrimaryKeys(ctx, schema, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to get primary keys for %s: %w", tableName, err)
		}
		table.PrimaryKeys = pks

		fks, err := s.repo.GetForeignKeys(ctx, schema, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for %s: %w", tableName, err)
		}
		table.ForeignKeys = fks

		tables = append(tables, table)
	}

	var tableColumns []repositories.TableColumn
	for _, t := range tables {
		for _, c := range t.Columns {
			tableColumns = append(tableColumns, repositories.TableColumn{Table: t.Name, Column: c.Name})
		}
	}
	unique, err := s.repo.GetUniqueConstraintsBatch(ctx, schema, tableColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique constraints: %w", err)
	}
	for i := range tables {
		for _, c := range tables[i].Columns {
			if unique[tables[i].Name+":"+c.Name] {
				tables[i].UniqueColumns = append(tables[i].UniqueColumns, c.Name)
			}
		}
	}

	return tables, nil
}

// Order sorts tables so that every table comes after the tables its foreign keys
// reference. Self references are ignored. Tables caught in a cycle are appended in
// name order and flagged HasCircular.
func Order(tables []models.Table) []models.TableDependency {
	byName := make(map[string]models.Table, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
		names = append(names, t.Name)
	}
	sort.Strings(names)

	deps := make(map[string][]string, len(tables))
	for _, name := range names {
		seen := make(map[string]bool)
		for _, fk := range byName[name].ForeignKeys {
			if fk.ToTable == name || seen[fk.ToTable] {
				continue
			}
			if _, known := byName[fk.ToTable]; !known {
				continue
			}
			seen[fk.ToTable] = true
			deps[name] = append(deps[name], fk.ToTable)
		}
		sort.Strings(deps[name])
	}

	level := make(map[string]int, len(tables))
	placed := make(map[string]bool, len(tables))
	var ordered []models.TableDependency

	for len(placed) < len(names) {
		var ready []string
		for _, name := range names {
			if placed[name] {
				continue
			}
			ok := true
			lvl := 0
			for _, d := range deps[name] {
				if !placed[d] {
					ok = false
					break
				}
				lvl = max(lvl, level[d]+1)
			}
			if ok {
				ready = append(ready, name)
				level[name] = lvl
			}
		}
		if len(ready) == 0 {
			break
		}
		for _, name := range ready {
			placed[name] = true
			ordered = append(ordered, models.TableDependency{
				TableName: name,
				DependsOn: deps[name],
				Level:     level[name],
			})
		}
	}

	maxLevel := 0
	for _, d := range ordered {
		maxLevel = max(maxLevel, d.Level)
	}
	for _, name := range names {
		if placed[name] {
			continue
		}
		ordered = append(ordered, models.TableDependency{
			TableName:   name,
			DependsOn:   deps[name],
			Level:       maxLevel + 1,
			HasCircular: true,
		})
	}

	// keep the order stable within a level
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level < ordered[j].Level
	})
	return ordered
}

// OrderTables returns tables rearranged by Order.
func OrderTables(tables []models.Table) []models.Table {
	byName := make(map[string]models.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	out := make([]models.Table, 0, len(tables))
	for _, d := range Order(tables) {
		out = append(out, byName[d.TableName])
	}
	return out
}

// Mermaid generates a Mermaid ER diagram for schema.
func (s *SchemaService) Mermaid(ctx context.Context, schema string) (string, error) {
	if schema == "" {
		schema = "public"
	}

	tables, err := s.Describe(ctx, schema)
	if err != nil {
		return "", fmt.Errorf("failed to parse tables: %w", err)
	}

	relationships, err := s.buildRelationships(ctx, schema, tables)
	if err != nil {
		return "", fmt.Errorf("failed to build relationships: %w", err)
	}

	return generateMermaid(tables, relationships), nil
}

func (s *SchemaService) buildRelationships(ctx context.Context, schema string, tables []models.Table) ([]models.Relationship, error) {
	var relationships []models.Relationship
	junctionTables := detectJunctionTables(tables)

	var tableColumns []repositories.TableColumn
	for _, table := range tables {
		if !junctionTables[table.Name] {
			for _, fk := range table.ForeignKeys {
				tableColumns = append(tableColumns, repositories.TableColumn{
					Table:  table.Name,
					Column: fk.FromColumn,
				})
			}
		}
	}

	uniqueMap, err := s.repo.GetUniqueConstraintsBatch(ctx, schema, tableColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique constraints: %w", err)
	}

	for _, table := range tables {
		// junction tables become many-to-many edges between the tables they join
		if junctionTables[table.Name] {
			for i := 0; i < len(table.ForeignKeys); i++ {
				for j := i + 1; j < len(table.ForeignKeys); j++ {
					relationships = append(relationships, models.Relationship{
						FromTable: table.ForeignKeys[i].ToTable,
						ToTable:   table.ForeignKeys[j].ToTable,
						Type:      "}o--o{",
					})
				}
			}
			continue
		}

		for _, fk := range table.ForeignKeys {
			relType := "||--o{"
			if uniqueMap[table.Name+":"+fk.FromColumn] {
				relType = "||--||"
			}
			relationships = append(relationships, models.Relationship{
				FromTable: table.Name,
				ToTable:   fk.ToTable,
				Type:      relType,
			})
		}
	}

	return relationships, nil
}

func detectJunctionTables(tables []models.Table) map[string]bool {
	junctionTables := make(map[string]bool)
	for _, table := range tables {
		if len(table.ForeignKeys) < minJunctionTableFKs ||
			len(table.PrimaryKeys) < minJunctionTableFKs ||
			len(table.Columns) > maxJunctionTableColumns {
			continue
		}

		allFKsInPK := true
		for _, fk := range table.ForeignKeys {
			if !utils.Contains(table.PrimaryKeys, fk.FromColumn) {
				allFKsInPK = false
				break
			}
		}
		if allFKsInPK {
			junctionTables[table.Name] = true
		}
	}
	return junctionTables
}

func generateMermaid(tables []models.Table, relationships []models.Relationship) string {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	if len(relationships) > 0 {
		seen := make(map[string]bool)
		for _, rel := range relationships {
			key := rel.FromTable + ":" + rel.Type + ":" + rel.ToTable
			if seen[key] {
				continue
			}
			seen[key] = true

			// Mermaid requires a label; an empty one hides it
			fmt.Fprintf(&sb, "    %s %s %s : \"\"\n",
				strings.ToUpper(rel.FromTable),
				rel.Type,
				strings.ToUpper(rel.ToTable))
		}
		sb.WriteString("\n")
	}

	for _, table := range tables {
		fmt.Fprintf(&sb, "    %s {\n", strings.ToUpper(table.Name))

		for _, col := range table.Columns {
			annotations := ""
			if utils.Contains(table.PrimaryKeys, col.Name) {
				annotations = " PK"
			}
			if isForeignKey(table.ForeignKeys, col.Name) {
				annotations += " FK"
			}

			fmt.Fprintf(&sb, "        %s %s%s\n", simplifyDataType(col.DataType), col.Name, annotations)
		}

		sb.WriteString("    }\n\n")
	}

	return sb.String()
}

func simplifyDataType(dataType string) string {
	dt := strings.ToLower(dataType)

	switch {
	case dt == "integer":
		return "int"
	case strings.HasPrefix(dt, "character varying"):
		return "varchar"
	case strings.HasPrefix(dt, "character"):
		return "char"
	case strings.HasPrefix(dt, "timestamp without time zone"):
		return "timestamp"
	case strings.HasPrefix(dt, "timestamp with time zone"):
		return "timestamptz"
	case strings.HasPrefix(dt, "time without time zone"):
		return "time"
	case strings.HasPrefix(dt, "numeric"):
		return "numeric"
	case dt == "double precision":
		return "double"
	case dt == "user-defined":
		return "enum"
	case strings.HasPrefix(dt, "array"):
		return "array"
	default:
		return strings.ReplaceAll(dt, " ", "_")
	}
}

func isForeignKey(fks []models.ForeignKey, colName string) bool {
	for _, fk := range fks {
		if fk.FromColumn == colName {
			return true
		}
	}
	return false
}
