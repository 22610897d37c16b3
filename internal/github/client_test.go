package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMeter struct {
	mu        sync.Mutex
	charged   int
	remaining []int
}

func (m *countingMeter) Charge(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charged += n
}

func (m *countingMeter) Observe(remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = append(m.remaining, remaining)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: "secret", Retries: 1}, opts...)
}

func TestClient_EventsChargesAndObserves(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/42/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("X-RateLimit-Remaining", "4321")
		fmt.Fprint(w, `[{"id":"300","type":"IssuesEvent","repo":{"id":42,"name":"foo/foo"},"payload":{}}]`)
	})
	meter := &countingMeter{}
	c := newTestClient(t, mux, WithMeter(meter))

	events, err := c.Events(context.Background(), 42, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(300), events[0].ID)
	assert.Equal(t, 1, meter.charged)
	assert.Equal(t, []int{4321}, meter.remaining)
}

func TestClient_EventsPaginationLimitIsEndOfStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"pagination is limited"}`)
	}))
	events, err := c.Events(context.Background(), 42, 11)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClient_NotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	_, err := c.PullRequest(context.Background(), 42, 7)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"forbidden"}`)
	}))
	_, err := c.Repository(context.Background(), 42)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.True(t, IsAPIError(err, http.StatusForbidden))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, Repository{ID: 42, FullName: "foo/foo"})
	}))
	r, err := c.Repository(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "foo/foo", r.FullName)
	assert.Equal(t, 2, calls)
}

func TestClient_ListFollowsPages(t *testing.T) {
	meter := &countingMeter{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		n := PerPage
		if page == 2 {
			n = 3
		}
		roster := make([]Contributor, n)
		for i := range roster {
			roster[i] = Contributor{ID: int64(page*1000 + i)}
		}
		writeJSON(w, roster)
	}), WithMeter(meter))

	roster, err := c.Contributors(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, roster, PerPage+3)
	assert.Equal(t, 2, meter.charged)
}

func TestClient_CommitsAndCompare(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/42/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "69a2", r.URL.Query().Get("sha"))
		writeJSON(w, []Commit{{SHA: "69a2"}})
	})
	mux.HandleFunc("/repositories/42/compare/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repositories/42/compare/0.0.1...0.0.5", r.URL.Path)
		writeJSON(w, Comparison{
			TotalCommits: 1,
			Commits:      []Commit{{SHA: "a50489", Author: &User{ID: 2566462}}},
			Files:        []File{{Filename: "README.md", Additions: 10, Deletions: 5}},
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	commits, err := c.Commits(ctx, 42, "69a2")
	require.NoError(t, err)
	assert.Equal(t, "69a2", commits[0].SHA)

	cmp, err := c.Compare(ctx, 42, "0.0.1", "0.0.5")
	require.NoError(t, err)
	require.Len(t, cmp.Commits, 1)
	assert.Equal(t, int64(2566462), cmp.Commits[0].Author.ID)
	assert.Equal(t, int64(15), cmp.Files[0].Additions+cmp.Files[0].Deletions)
}

func TestClient_ResolvedThreads(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req graphqlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "foo", req.Variables["owner"])
		assert.Equal(t, "bar", req.Variables["name"])
		fmt.Fprint(w, `{"data":{"repository":{"pullRequest":{"reviewThreads":{"nodes":[
			{"isResolved":true},{"isResolved":false},{"isResolved":true}]}}}}}`)
	}))
	n, err := c.ResolvedThreads(context.Background(), "foo/bar", 172)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClient_ResolvedThreadsNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"repository":null},"errors":[{"type":"NOT_FOUND","message":"gone"}]}`)
	}))
	_, err := c.ResolvedThreads(context.Background(), "foo/bar", 172)
	assert.True(t, IsNotFound(err))

	_, err = c.ResolvedThreads(context.Background(), "foobar", 172)
	assert.Error(t, err)
}

func TestClient_RateLimiterHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Repository{ID: 1})
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, Rate: 0.001, Burst: 1})

	_, err := c.Repository(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Repository(ctx, 1)
	assert.Error(t, err)
}

func TestClient_Releases(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/42/releases", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":2,"tag_name":"0.0.2","draft":true,"author":{"id":7}},
			{"id":1,"tag_name":"0.0.1","published_at":"2024-08-01T10:00:00Z","author":{"id":7}}
		]`)
	})
	c := newTestClient(t, mux)

	releases, err := c.Releases(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.True(t, releases[0].Draft)
	assert.Equal(t, "0.0.1", releases[1].TagName)
	assert.Equal(t, 2024, releases[1].PublishedAt.Year())
}
