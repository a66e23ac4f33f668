package metmuseum

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sayu-ops/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := NewClient(url, 0, 5*time.Second)
	c.Retry = utils.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 2}
	return c
}

func TestObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/objects/436535":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"objectID":436535,"isPublicDomain":true,"primaryImage":"https://images.metmuseum.org/a.jpg",
				"title":"Wheat Field with Cypresses","artistDisplayName":"Vincent van Gogh","objectBeginDate":1889,
				"tags":[{"term":"Landscapes"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	obj, err := c.Object(context.Background(), 436535)
	require.NoError(t, err)
	assert.Equal(t, "Wheat Field with Cypresses", obj.Title)
	assert.Equal(t, 1889, obj.ObjectBeginDate)
	assert.Equal(t, []Tag{{Term: "Landscapes"}}, obj.Tags)

	_, err = c.Object(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "sunflowers", q.Get("q"))
		assert.Equal(t, "true", q.Get("hasImages"))
		assert.Equal(t, "true", q.Get("isPublicDomain"))
		assert.Equal(t, "11", q.Get("departmentId"))
		w.Write([]byte(`{"total":2,"objectIDs":[436524,437980]}`))
	}))
	defer srv.Close()

	ids, err := testClient(srv.URL).Search(context.Background(), SearchQuery{Q: "sunflowers", HasImages: true, IsPublicDomain: true, DepartmentID: 11})
	require.NoError(t, err)
	assert.Equal(t, []int{436524, 437980}, ids)
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0,"objectIDs":null}`))
	}))
	defer srv.Close()

	ids, err := testClient(srv.URL).Search(context.Background(), SearchQuery{Q: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDepartmentsAndObjectIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/departments":
			w.Write([]byte(`{"departments":[{"departmentId":11,"displayName":"European Paintings"}]}`))
		case "/objects":
			assert.Equal(t, "11|21", r.URL.Query().Get("departmentIds"))
			w.Write([]byte(`{"total":1,"objectIDs":[436535]}`))
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	deps, err := c.Departments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Department{{DepartmentID: 11, DisplayName: "European Paintings"}}, deps)

	ids, err := c.ObjectIDs(context.Background(), []int{11, 21})
	require.NoError(t, err)
	assert.Equal(t, []int{436535}, ids)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"objectID":1}`))
	}))
	defer srv.Close()

	obj, err := testClient(srv.URL).Object(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, obj.ObjectID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Object(context.Background(), 1)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}
