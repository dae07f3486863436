package issues

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"bugtriage/pkg/signals"
)

// GitHubSource searches the issues of one GitHub repository through the search API.
type GitHubSource struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubSource creates a source authenticated with a personal access token.
func NewGitHubSource(token, owner, repo string) (*GitHubSource, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return NewGitHubSourceWithClient(github.NewClient(tc), owner, repo)
}

// NewGitHubSourceWithClient wraps an existing client. Tests point it at an httptest server.
func NewGitHubSourceWithClient(client *github.Client, owner, repo string) (*GitHubSource, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	return &GitHubSource{client: client, owner: owner, repo: repo}, nil
}

// Search runs "repo:<owner>/<repo> is:issue <terms>" and returns up to limit results.
// Terms are OR-ed so a single matching word is enough, as with the file source.
func (s *GitHubSource) Search(ctx context.Context, query string, limit int) ([]Issue, error) {
	q := s.searchQuery(query)
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: limit}}

	result, _, err := s.client.Search.Issues(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("search issues in %s/%s: %w", s.owner, s.repo, err)
	}

	out := make([]Issue, 0, len(result.Issues))
	for _, is := range result.Issues {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, Issue{
			ID:    is.GetNumber(),
			Title: is.GetTitle(),
			State: is.GetState(),
			URL:   is.GetHTMLURL(),
		})
	}
	return out, nil
}

func (s *GitHubSource) searchQuery(query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "repo:%s/%s is:issue", s.owner, s.repo)
	terms := signals.SearchTerms(query)
	if len(terms) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(terms, " OR "))
	}
	return b.String()
}
