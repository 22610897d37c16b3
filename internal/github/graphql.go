package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const reviewThreadsQuery = `query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    pullRequest(number: $number) {
      reviewThreads(first: 100) {
        nodes { isResolved }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type reviewThreadsResponse struct {
	Data struct {
		Repository *struct {
			PullRequest *struct {
				ReviewThreads struct {
					Nodes []struct {
						IsResolved bool `json:"isResolved"`
					} `json:"nodes"`
				} `json:"reviewThreads"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ResolvedThreads counts resolved review threads of a pull request.
// TODO: follow reviewThreads.pageInfo for pull requests with more than 100 threads.
func (c *Client) ResolvedThreads(ctx context.Context, fullName string, number int64) (int, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return 0, fmt.Errorf("resolved threads: malformed repository name %q", fullName)
	}

	var resp reviewThreadsResponse
	err := c.do(ctx, http.MethodPost, "/graphql", nil, graphqlRequest{
		Query: reviewThreadsQuery,
		Variables: map[string]any{
			"owner":  owner,
			"name":   name,
			"number": number,
		},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("resolved threads %s#%d: %w", fullName, number, err)
	}
	for _, e := range resp.Errors {
		if e.Type == "NOT_FOUND" {
			return 0, fmt.Errorf("resolved threads %s#%d: %w", fullName, number, ErrNotFound)
		}
	}
	if len(resp.Errors) > 0 {
		return 0, fmt.Errorf("resolved threads %s#%d: %s", fullName, number, resp.Errors[0].Message)
	}
	if resp.Data.Repository == nil || resp.Data.Repository.PullRequest == nil {
		return 0, fmt.Errorf("resolved threads %s#%d: %w", fullName, number, ErrNotFound)
	}

	resolved := 0
	for _, n := range resp.Data.Repository.PullRequest.ReviewThreads.Nodes {
		if n.IsResolved {
			resolved++
		}
	}
	return resolved, nil
}
