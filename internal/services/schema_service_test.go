package services

import (
	"context"
	"strings"
	"testing"

	"sayu-ops/internal/models"
	"sayu-ops/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchemaReader struct {
	tables []models.Table
	unique map[string]bool
}

func (f *fakeSchemaReader) find(name string) models.Table {
	for _, t := range f.tables {
		if t.Name == name {
			return t
		}
	}
	return models.Table{}
}

func (f *fakeSchemaReader) GetTables(context.Context, string) ([]string, error) {
	var names []string
	for _, t := range f.tables {
		names = append(names, t.Name)
	}
	return names, nil
}

func (f *fakeSchemaReader) GetColumns(_ context.Context, _, table string) ([]models.Column, error) {
	return f.find(table).Columns, nil
}

func (f *fakeSchemaReader) GetPrimaryKeys(_ context.Context, _, table string) ([]string, error) {
	return f.find(table).PrimaryKeys, nil
}

func (f *fakeSchemaReader) GetForeignKeys(_ context.Context, _, table string) ([]models.ForeignKey, error) {
	return f.find(table).ForeignKeys, nil
}

func (f *fakeSchemaReader) GetUniqueConstraintsBatch(context.Context, string, []repositories.TableColumn) (map[string]bool, error) {
	if f.unique == nil {
		return map[string]bool{}, nil
	}
	return f.unique, nil
}

func fk(from, to string) models.ForeignKey {
	return models.ForeignKey{FromColumn: from, ToTable: to, ToColumn: "id"}
}

func sayuTables() []models.Table {
	return []models.Table{
		{Name: "users", Columns: []models.Column{{Name: "id", DataType: "uuid"}, {Name: "personality_type", DataType: "character varying"}}, PrimaryKeys: []string{"id"}},
		{Name: "venues", Columns: []models.Column{{Name: "id", DataType: "integer"}, {Name: "name", DataType: "text"}}, PrimaryKeys: []string{"id"}},
		{Name: "exhibitions", Columns: []models.Column{{Name: "id", DataType: "uuid"}, {Name: "venue_id", DataType: "integer"}, {Name: "start_date", DataType: "date"}},
			PrimaryKeys: []string{"id"}, ForeignKeys: []models.ForeignKey{fk("venue_id", "venues")}},
		{Name: "artists", Columns: []models.Column{{Name: "id", DataType: "uuid"}, {Name: "mentor_id", DataType: "uuid"}},
			PrimaryKeys: []string{"id"}, ForeignKeys: []models.ForeignKey{fk("mentor_id", "artists")}},
		{Name: "exhibition_artists", Columns: []models.Column{{Name: "exhibition_id", DataType: "uuid"}, {Name: "artist_id", DataType: "uuid"}},
			PrimaryKeys: []string{"exhibition_id", "artist_id"}, ForeignKeys: []models.ForeignKey{fk("exhibition_id", "exhibitions"), fk("artist_id", "artists")}},
		{Name: "profiles", Columns: []models.Column{{Name: "id", DataType: "uuid"}, {Name: "user_id", DataType: "uuid"}},
			PrimaryKeys: []string{"id"}, ForeignKeys: []models.ForeignKey{fk("user_id", "users")}},
	}
}

func position(order []models.TableDependency, name string) int {
	for i, d := range order {
		if d.TableName == name {
			return i
		}
	}
	return -1
}

func TestOrderParentsFirst(t *testing.T) {
	order := Order(sayuTables())
	require.Len(t, order, 6)

	for _, table := range sayuTables() {
		for _, f := range table.ForeignKeys {
			if f.ToTable == table.Name {
				continue
			}
			assert.Less(t, position(order, f.ToTable), position(order, table.Name), "%s before %s", f.ToTable, table.Name)
		}
	}

	artists := order[position(order, "artists")]
	assert.Equal(t, 0, artists.Level, "self references are ignored")
	assert.False(t, artists.HasCircular)
	assert.Equal(t, 2, order[position(order, "exhibition_artists")].Level)
}

func TestOrderCycle(t *testing.T) {
	tables := []models.Table{
		{Name: "b", ForeignKeys: []models.ForeignKey{fk("a_id", "a")}},
		{Name: "a", ForeignKeys: []models.ForeignKey{fk("b_id", "b")}},
		{Name: "root"},
		{Name: "leaf", ForeignKeys: []models.ForeignKey{fk("root_id", "root"), fk("gone_id", "missing")}},
	}

	order := Order(tables)
	require.Len(t, order, 4)
	assert.Equal(t, "root", order[0].TableName)
	assert.Equal(t, "leaf", order[1].TableName)
	assert.Equal(t, "a", order[2].TableName)
	assert.Equal(t, "b", order[3].TableName)
	assert.True(t, order[2].HasCircular)
	assert.True(t, order[3].HasCircular)
}

func TestMermaid(t *testing.T) {
	svc := NewSchemaService(&fakeSchemaReader{tables: sayuTables(), unique: map[string]bool{"profiles:user_id": true}})

	diagram, err := svc.Mermaid(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(diagram, "erDiagram\n"))
	assert.Contains(t, diagram, `EXHIBITIONS ||--o{ VENUES : ""`)
	assert.Contains(t, diagram, `PROFILES ||--|| USERS : ""`)
	assert.Contains(t, diagram, `EXHIBITIONS }o--o{ ARTISTS : ""`)
	assert.Contains(t, diagram, "        int id PK\n")
	assert.Contains(t, diagram, "        varchar personality_type\n")
	assert.Contains(t, diagram, "        int venue_id FK\n")
	assert.NotContains(t, diagram, "EXHIBITION_ARTISTS ||")
}

func TestDescribe(t *testing.T) {
	svc := NewSchemaService(&fakeSchemaReader{tables: sayuTables(), unique: map[string]bool{"venues:name": true}})

	tables, err := svc.Describe(context.Background(), "public")
	require.NoError(t, err)
	require.Len(t, tables, 6)
	assert.Equal(t, []string{"id"}, tables[0].PrimaryKeys)
	assert.Empty(t, tables[0].UniqueColumns)
	assert.Equal(t, []string{"name"}, tables[1].UniqueColumns)
}
