package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/problems/algorithms/", r.URL.Path)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.NotEmpty(t, r.Header.Get("Origin"))
		assert.True(t, strings.HasSuffix(r.Header.Get("Referer"), "/accounts/login/"))
		w.Write([]byte(`{"stat_status_pairs":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0, 1)
	body, err := c.ListCategory(context.Background(), "algorithms")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stat_status_pairs":[]}`, string(body))
}

func TestQuestionPostsGraphQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.True(t, strings.HasSuffix(r.Header.Get("Referer"), "/problems/two-sum/description"))

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getQuestionDetail", req.OperationName)
		assert.Equal(t, "two-sum", req.Variables["titleSlug"])
		assert.Contains(t, req.Query, "similarQuestions")
		w.Write([]byte(`{"data":{"question":{"questionId":"1"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second, 0, 1)
	body, err := c.Question(context.Background(), "two-sum")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"questionId":"1"`)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, 0, 1).ListCategory(context.Background(), "shell")
	var serr *StatusError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, serr.Code)
	assert.Equal(t, http.MethodGet, serr.Method)
}

func TestBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 0, 1)
	c.MaxBodySize = 16
	_, err := c.ListCategory(context.Background(), "shell")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	c.MaxBodySize = 64
	body, err := c.ListCategory(context.Background(), "shell")
	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestLimiterHonorsContext(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// One request per minute: the second call has to wait and gives up.
	c := New(srv.URL, time.Second, 1.0/60, 1)
	_, err := c.ListCategory(context.Background(), "shell")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListCategory(ctx, "shell")
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}
