package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amelia-orch/amelia/internal/errs"
)

// GitHubTracker posts comments via the GitHub REST API
// (POST /repos/{owner}/{repo}/issues/{number}/comments). No pack repo
// ships a GitHub SDK either, so this mirrors JiraTracker's direct
// net/http shape rather than pulling one in for three calls.
type GitHubTracker struct {
	cfg    Config
	client *http.Client
}

func NewGitHub(cfg Config) *GitHubTracker {
	return &GitHubTracker{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

type githubCommentBody struct {
	Body string `json:"body"`
}

func (t *GitHubTracker) PostComment(ctx context.Context, c Comment) error {
	body, err := json.Marshal(githubCommentBody{Body: c.Body})
	if err != nil {
		return err
	}

	base := t.cfg.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments", base, t.cfg.Owner, t.cfg.Repo, c.IssueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)

	resp, err := t.client.Do(req)
	if err != nil {
		return &errs.TransientProviderError{Provider: "github", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return &errs.TransientProviderError{Provider: "github", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("github comment post failed: status %d", resp.StatusCode)
	}
	return nil
}
