package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"sayu-ops/internal/config"
	"sayu-ops/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowTransformer shapes source rows into target rows following a TablePlan.
type rowTransformer struct {
	plan    config.TablePlan
	key     string
	allow   map[string]bool
	exclude map[string]bool
	target  map[string]bool // nil when the target columns are unknown
	order   []string
	types   map[string]string // source column -> udt name

	stashColumn string
	stashField  string

	dropped map[string]bool
}

func newRowTransformer(plan config.TablePlan, key string, targetColumns []string, sourceColumns []models.Column) *rowTransformer {
	t := &rowTransformer{
		plan:    plan,
		key:     key,
		exclude: make(map[string]bool, len(plan.Exclude)),
		order:   targetColumns,
		types:   make(map[string]string, len(sourceColumns)),
		dropped: make(map[string]bool),
	}
	for _, c := range sourceColumns {
		t.types[c.Name] = c.UDTName
	}
	if len(plan.Columns) > 0 {
		t.allow = make(map[string]bool, len(plan.Columns))
		for _, c := range plan.Columns {
			t.allow[c] = true
		}
	}
	for _, c := range plan.Exclude {
		t.exclude[c] = true
	}
	if targetColumns != nil {
		t.target = make(map[string]bool, len(targetColumns))
		for _, c := range targetColumns {
			t.target[c] = true
		}
	}
	if plan.StashKeyAs != "" {
		t.stashColumn, t.stashField, _ = strings.Cut(plan.StashKeyAs, ".")
	}
	return t
}

// Apply returns the target row for src. Columns the target does not have are
// dropped and remembered in t.dropped.
func (t *rowTransformer) Apply(src models.Row) (models.Row, error) {
	out := make(models.Row, len(src))
	for col, v := range src {
		if t.allow != nil && !t.allow[col] {
			continue
		}
		if t.exclude[col] {
			continue
		}
		name := col
		if renamed, ok := t.plan.Rename[col]; ok {
			name = renamed
		}
		out[name] = normalizeValue(v, t.types[col])
	}

	for col, v := range t.plan.Defaults {
		if cur, ok := out[col]; !ok || cur == nil {
			out[col] = v
		}
	}
	for col, v := range t.plan.Static {
		out[col] = v
	}

	if t.stashColumn != "" {
		merged, err := stashKey(out[t.stashColumn], t.stashField, normalizeValue(src[t.key], t.types[t.key]))
		if err != nil {
			return nil, fmt.Errorf("stash key into %s: %w", t.stashColumn, err)
		}
		out[t.stashColumn] = merged
	}

	if t.target != nil {
		for col := range out {
			if !t.target[col] {
				delete(out, col)
				t.dropped[col] = true
			}
		}
	}
	return out, nil
}

// Dropped lists the columns removed because the target lacks them.
func (t *rowTransformer) Dropped() []string {
	out := make([]string, 0, len(t.dropped))
	for c := range t.dropped {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Columns returns the column list for a batch: target order when known, otherwise sorted.
func (t *rowTransformer) Columns(rows []models.Row) []string {
	present := make(map[string]bool)
	for _, r := range rows {
		for c := range r {
			present[c] = true
		}
	}

	var cols []string
	if t.order != nil {
		for _, c := range t.order {
			if present[c] {
				cols = append(cols, c)
			}
		}
		return cols
	}
	for c := range present {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// stashKey merges field=value into the JSON object held in current.
func stashKey(current any, field string, value any) (map[string]any, error) {
	obj := map[string]any{}
	switch v := current.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			obj[k] = val
		}
	case json.RawMessage:
		if err := json.Unmarshal(v, &obj); err != nil {
			return nil, err
		}
	case string:
		if strings.TrimSpace(v) != "" {
			if err := json.Unmarshal([]byte(v), &obj); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported value of type %T", current)
	}
	obj[field] = value
	return obj, nil
}

// normalizeValue converts driver values into ones both sinks can encode. udt is the
// source column type; raw bytes stay bytes unless the column is json or jsonb.
func normalizeValue(v any, udt string) any {
	switch val := v.(type) {
	case []byte:
		if (udt == "json" || udt == "jsonb") && json.Valid(val) {
			return json.RawMessage(append([]byte(nil), val...))
		}
		return val
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		dv, err := val.Value()
		if err != nil {
			return nil
		}
		return dv
	case time.Time:
		return val
	default:
		return v
	}
}

// keyString renders a cursor value the way it is stored in a checkpoint.
func keyString(v any) string {
	switch val := normalizeValue(v, "").(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
