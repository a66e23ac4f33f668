package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const restPath = "/rest/v1"

// SupabaseRepository writes and counts rows through the Supabase REST API.
type SupabaseRepository struct {
	client *supabase.Client
	// ignore sends upserts as Prefer: resolution=ignore-duplicates
	ignore *postgrest.Client
}

func NewSupabaseRepository(url, serviceKey string) (*SupabaseRepository, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}

	ignore := postgrest.NewClient(strings.TrimRight(url, "/")+restPath, "public", map[string]string{
		"Authorization": "Bearer " + serviceKey,
		"apikey":        serviceKey,
	})
	if ignore.ClientError != nil {
		return nil, fmt.Errorf("create postgrest client: %w", ignore.ClientError)
	}
	ignore.Transport.Parent = ignoreDuplicates{next: http.DefaultTransport}

	return &SupabaseRepository{client: client, ignore: ignore}, nil
}

// ignoreDuplicates turns postgrest-go's merge-duplicates upsert into an insert that
// leaves conflicting rows alone.
type ignoreDuplicates struct {
	next http.RoundTripper
}

func (t ignoreDuplicates) RoundTrip(req *http.Request) (*http.Response, error) {
	prefs := req.Header.Values("Prefer")
	if len(prefs) > 0 {
		req = req.Clone(req.Context())
		req.Header.Del("Prefer")
		for _, p := range prefs {
			req.Header.Add("Prefer", strings.ReplaceAll(p, "resolution=merge-duplicates", "resolution=ignore-duplicates"))
		}
	}
	return t.next.RoundTrip(req)
}

// InsertRows posts rows to table and returns how many rows were written. Rows that
// collide on onConflict (the primary key when empty) are merged when onDuplicate is
// "update" and left untouched when it is "skip"; skipped rows are not counted.
func (r *SupabaseRepository) InsertRows(ctx context.Context, table string, rows []map[string]any, onDuplicate string, onConflict []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	from := r.client.From
	if onDuplicate != "update" {
		from = r.ignore.From
	}
	body, _, err := from(table).
		Insert(rows, true, strings.Join(onConflict, ","), "representation", "").
		Execute()
	if err != nil {
		return 0, err
	}

	var written []json.RawMessage
	if err := json.Unmarshal(body, &written); err != nil {
		return 0, fmt.Errorf("decode insert response: %w", err)
	}
	return int64(len(written)), nil
}

// Count returns the exact number of rows in table.
func (r *SupabaseRepository) Count(ctx context.Context, table string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, count, err := r.client.From(table).Select("*", "exact", true).Execute()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

var restCodePattern = regexp.MustCompile(`^\(([0-9A-Z]{5}|PGRST\d+)\)`)

// RESTErrorCode extracts the Postgres or PostgREST code from a REST error such as
// "(23505) duplicate key value violates unique constraint".
func RESTErrorCode(err error) string {
	if err == nil {
		return ""
	}
	m := restCodePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return ""
	}
	return m[1]
}
