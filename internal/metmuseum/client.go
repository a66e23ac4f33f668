// Package metmuseum is a small client for the Metropolitan Museum of Art collection API.
package metmuseum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sayu-ops/internal/utils"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://collectionapi.metmuseum.org/public/collection/v1"

var ErrNotFound = errors.New("met object not found")

// HTTPError is a non-2xx answer other than 404.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("met api %s: status %d", e.URL, e.StatusCode)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *rate.Limiter
	Retry   utils.RetryPolicy
}

// NewClient returns a client limited to requestsPerSec. A non-positive rate disables
// the limiter.
func NewClient(baseURL string, requestsPerSec float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if requestsPerSec > 0 {
		limit = rate.Limit(requestsPerSec)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(limit, 1),
		Retry:   utils.DefaultRetryPolicy(),
	}
}

func (c *Client) Object(ctx context.Context, id int) (*Object, error) {
	var obj Object
	if err := c.get(ctx, "/objects/"+strconv.Itoa(id), nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (c *Client) Search(ctx context.Context, q SearchQuery) ([]int, error) {
	params := url.Values{}
	params.Set("q", q.Q)
	if q.HasImages {
		params.Set("hasImages", "true")
	}
	if q.IsPublicDomain {
		params.Set("isPublicDomain", "true")
	}
	if q.DepartmentID > 0 {
		params.Set("departmentId", strconv.Itoa(q.DepartmentID))
	}
	if q.ArtistOrCulture {
		params.Set("artistOrCulture", "true")
	}

	var resp objectIDsResponse
	if err := c.get(ctx, "/search", params, &resp); err != nil {
		return nil, err
	}
	return resp.ObjectIDs, nil
}

func (c *Client) Departments(ctx context.Context) ([]Department, error) {
	var resp departmentsResponse
	if err := c.get(ctx, "/departments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Departments, nil
}

// ObjectIDs lists every object id, optionally restricted to departments.
func (c *Client) ObjectIDs(ctx context.Context, departmentIDs []int) ([]int, error) {
	var params url.Values
	if len(departmentIDs) > 0 {
		ids := make([]string, len(departmentIDs))
		for i, id := range departmentIDs {
			ids[i] = strconv.Itoa(id)
		}
		params = url.Values{"departmentIds": {strings.Join(ids, "|")}}
	}

	var resp objectIDsResponse
	if err := c.get(ctx, "/objects", params, &resp); err != nil {
		return nil, err
	}
	return resp.ObjectIDs, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	return utils.Retry(ctx, c.Retry, func() error {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return utils.Permanent(err)
			}
		}
		err := c.do(ctx, u, out)
		var httpErr *HTTPError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrNotFound):
			return utils.Permanent(err)
		case errors.As(err, &httpErr) && !httpErr.retryable():
			return utils.Permanent(err)
		default:
			return err
		}
	}, nil)
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return utils.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, URL: u}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Permanent(fmt.Errorf("decode %s: %w", u, err))
	}
	return nil
}
