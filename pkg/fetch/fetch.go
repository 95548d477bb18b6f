package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public catalog host.
const DefaultBaseURL = "https://leetcode.com"

// Categories are the listing endpoints crawled by default.
var Categories = []string{"algorithms", "database", "shell", "concurrency"}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodySize bounds every response body. Listing documents are a few MB.
const maxBodySize = 32 * 1024 * 1024

const questionQuery = `query getQuestionDetail($titleSlug : String!) {
  question(titleSlug: $titleSlug) {
    questionId
    questionFrontendId
    title
    content
    stats
    difficulty
    isPaidOnly
    sampleTestCase
    enableRunCode
    translatedContent
    likes
    dislikes
    similarQuestions
    topicTags {
      name
      slug
    }
    hints
    solution {
      id
      url
      content
      contentTypeId
      canSeeDetail
      rating {
        id
        count
        average
      }
    }
  }
}`

// StatusError is returned for any non-200 response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Client fetches listing and detail documents. Every request waits on the
// shared limiter first.
type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Limiter     *rate.Limiter
	UserAgent   string
	MaxBodySize int64
}

// New returns a client allowing rps requests per second with the given burst.
// rps <= 0 disables rate limiting.
func New(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: timeout},
		Limiter:     rate.NewLimiter(limit, burst),
		UserAgent:   defaultUserAgent,
		MaxBodySize: maxBodySize,
	}
}

// ListCategory returns the raw listing document of one category.
func (c *Client) ListCategory(ctx context.Context, category string) ([]byte, error) {
	u := fmt.Sprintf("%s/api/problems/%s/", c.BaseURL, url.PathEscape(category))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Referer", c.BaseURL+"/accounts/login/")
	return c.do(req)
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Question returns the raw GraphQL detail document of one item.
func (c *Client) Question(ctx context.Context, slug string) ([]byte, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:         questionQuery,
		Variables:     map[string]any{"titleSlug": slug},
		OperationName: "getQuestionDetail",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", fmt.Sprintf("%s/problems/%s/description", c.BaseURL, url.PathEscape(slug)))
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Origin", c.BaseURL)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode}
	}

	limit := c.MaxBodySize
	if limit <= 0 {
		limit = maxBodySize
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, limit)
	}
	// Read one byte past the limit to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeded maximum size limit of %d bytes", limit)
	}
	return body, nil
}
