package repositories

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTErrorCode(t *testing.T) {
	assert.Equal(t, "23505", RESTErrorCode(errors.New(`(23505) duplicate key value violates unique constraint "venues_pkey"`)))
	assert.Equal(t, "PGRST204", RESTErrorCode(errors.New("(PGRST204) Could not find the 'foo' column")))
	assert.Equal(t, "", RESTErrorCode(errors.New("connection refused")))
	assert.Equal(t, "", RESTErrorCode(nil))
}

type recordedInsert struct {
	path       string
	onConflict string
	prefer     string
	body       string
}

func postgrestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedInsert) {
	t.Helper()
	var seen []recordedInsert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedInsert{
			path:       r.URL.Path,
			onConflict: r.URL.Query().Get("on_conflict"),
			prefer:     strings.Join(r.Header.Values("Prefer"), ","),
			body:       string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestSupabaseInsertSkipIgnoresDuplicates(t *testing.T) {
	// two rows posted, the stored one is ignored and only MMCA comes back
	srv, seen := postgrestServer(t, http.StatusCreated, `[{"name":"MMCA"}]`)
	repo, err := NewSupabaseRepository(srv.URL, "service-key")
	require.NoError(t, err)

	rows := []map[string]any{{"name": "Leeum"}, {"name": "MMCA"}}
	n, err := repo.InsertRows(context.Background(), "venues", rows, "skip", []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, *seen, 1)
	got := (*seen)[0]
	assert.Equal(t, "/rest/v1/venues", got.path)
	assert.Equal(t, "name", got.onConflict)
	assert.Contains(t, got.prefer, "resolution=ignore-duplicates")
	assert.NotContains(t, got.prefer, "merge-duplicates")
	assert.Contains(t, got.prefer, "return=representation")
	assert.JSONEq(t, `[{"name":"Leeum"},{"name":"MMCA"}]`, got.body)
}

func TestSupabaseInsertUpdateMerges(t *testing.T) {
	srv, seen := postgrestServer(t, http.StatusCreated, `[{"name":"Leeum"},{"name":"MMCA"}]`)
	repo, err := NewSupabaseRepository(srv.URL, "service-key")
	require.NoError(t, err)

	n, err := repo.InsertRows(context.Background(), "venues", []map[string]any{{"name": "Leeum"}, {"name": "MMCA"}}, "update", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0].prefer, "resolution=merge-duplicates")
	assert.Empty(t, (*seen)[0].onConflict)
}

func TestSupabaseInsertError(t *testing.T) {
	srv, _ := postgrestServer(t, http.StatusBadRequest, `{"code":"23502","message":"null value in column \"name\""}`)
	repo, err := NewSupabaseRepository(srv.URL, "service-key")
	require.NoError(t, err)

	_, err = repo.InsertRows(context.Background(), "venues", []map[string]any{{"name": nil}}, "skip", nil)
	require.Error(t, err)
	assert.Equal(t, "23502", RESTErrorCode(err))
}
