package models

type Column struct {
	Name     string
	DataType string
	UDTName  string
	Nullable bool
	Default  *string
}

type ForeignKey struct {
	ConstraintName string
	FromColumn     string
	ToTable        string
	ToColumn       string
}

type Table struct {
	Name        string
	Columns     []Column
	PrimaryKeys []string
	ForeignKeys []ForeignKey
	// UniqueColumns carry a single-column unique index.
	UniqueColumns []string
}

// IsUniqueKey reports whether every row has its own non-null value in column name:
// the single-column primary key, or a NOT NULL column with a unique index.
func (t Table) IsUniqueKey(name string) bool {
	if len(t.PrimaryKeys) == 1 && t.PrimaryKeys[0] == name {
		return true
	}
	col, ok := t.Column(name)
	if !ok || col.Nullable {
		return false
	}
	for _, u := range t.UniqueColumns {
		if u == name {
			return true
		}
	}
	return false
}

// HasColumn reports whether the table has a column called name.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

type Relationship struct {
	FromTable string
	ToTable   string
	Type      string // "||--o{", "||--||", etc.
}

// TableDependency places a table in the copy order.
type TableDependency struct {
	TableName   string   `json:"table_name"`
	DependsOn   []string `json:"depends_on"`
	Level       int      `json:"level"`
	HasCircular bool     `json:"has_circular"`
}

// SchemaApplyResult reports one `schema apply` run.
type SchemaApplyResult struct {
	File       string   `json:"file"`
	Schema     string   `json:"schema"`
	Statements int      `json:"statements"`
	RLSEnabled []string `json:"rls_enabled,omitempty"`
	Policies   []string `json:"policies,omitempty"`
	DryRun     bool     `json:"dry_run"`
}
