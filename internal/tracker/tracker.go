// Package tracker posts workflow progress back to whatever external issue
// tracker a profile names (spec.md §6.3 tracker: jira|github|noop), so a
// reviewer approval or a human-approval escalation shows up where the
// issue actually lives.
package tracker

import "context"

// Comment is one update to post against an issue.
type Comment struct {
	IssueID string
	Body    string
}

// Tracker is the boundary reviewer_node and the human-approval escalation
// path call through; which concrete client backs it is resolved from a
// profile's TrackerKind.
type Tracker interface {
	PostComment(ctx context.Context, c Comment) error
}

// New resolves kind to a concrete Tracker. Unknown kinds fall back to Noop
// rather than erroring, since a misconfigured tracker should never block a
// workflow from completing.
func New(kind string, cfg Config) Tracker {
	switch kind {
	case "jira":
		return NewJira(cfg)
	case "github":
		return NewGitHub(cfg)
	default:
		return Noop{}
	}
}

// Config carries the per-backend settings a Tracker needs to authenticate
// and address the right project/repo. Fields irrelevant to the selected
// kind are ignored.
type Config struct {
	BaseURL string
	Token   string
	Project string // Jira project key
	Owner   string // GitHub repo owner
	Repo    string // GitHub repo name
}

// Noop discards every comment. The default for profiles that don't name a
// tracker.
type Noop struct{}

func (Noop) PostComment(context.Context, Comment) error { return nil }
