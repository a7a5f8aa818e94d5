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

// JiraTracker posts comments via the Jira Cloud REST API
// (POST /rest/api/2/issue/{key}/comment). No pack repo ships a Jira SDK,
// so this is a direct net/http call rather than a pulled-in client
// library (see DESIGN.md).
type JiraTracker struct {
	cfg    Config
	client *http.Client
}

func NewJira(cfg Config) *JiraTracker {
	return &JiraTracker{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

type jiraCommentBody struct {
	Body string `json:"body"`
}

func (t *JiraTracker) PostComment(ctx context.Context, c Comment) error {
	body, err := json.Marshal(jiraCommentBody{Body: c.Body})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", t.cfg.BaseURL, c.IssueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)

	resp, err := t.client.Do(req)
	if err != nil {
		return &errs.TransientProviderError{Provider: "jira", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return &errs.TransientProviderError{Provider: "jira", Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("jira comment post failed: status %d", resp.StatusCode)
	}
	return nil
}
